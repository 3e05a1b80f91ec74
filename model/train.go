/*
 *	Copyright 2025 The scinet Authors
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package model

import (
	"fmt"

	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/scinetml/scinet/net"
	"github.com/scinetml/scinet/optimizers"
)

// Train starts the configuration of a training run over the given number of
// epochs (one minibatch per epoch). For batch methods the epoch count is
// ignored, use WithMaxIterations instead. Call Done to run.
func (m *Model) Train(epochs int) *TrainConfig {
	return &TrainConfig{
		model:           m,
		epochs:          epochs,
		validationEvery: 1000,
	}
}

// TrainConfig is the builder returned by Model.Train.
type TrainConfig struct {
	model           *Model
	epochs          int
	validationEvery int
	uncertainty     bool
	errStop         float64
	maxIterations   int
}

// WithValidationEvery sets the validation cadence: the held-out split is
// evaluated every n epochs, plus always on the final epoch. Default 1000.
func (c *TrainConfig) WithValidationEvery(n int) *TrainConfig {
	c.validationEvery = n
	return c
}

// WithUncertainty enables Monte Carlo dropout uncertainty estimation: each
// validation averages 1000 stochastic forward passes over the test split and
// records the per-element standard deviation alongside the mean prediction.
func (c *TrainConfig) WithUncertainty() *TrainConfig {
	c.uncertainty = true
	return c
}

// WithErrStop sets an early-stopping threshold. It is accepted for interface
// stability but currently has no effect on the run.
func (c *TrainConfig) WithErrStop(threshold float64) *TrainConfig {
	c.errStop = threshold
	return c
}

// WithMaxIterations caps the major iterations of a batch method. Zero lets
// the method run to its own convergence criteria. Stochastic optimizers
// ignore it.
func (c *TrainConfig) WithMaxIterations(n int) *TrainConfig {
	c.maxIterations = n
	return c
}

// Done runs the training. It returns the loss history and the final train
// state, which are the same objects Model.History and Model.State return.
//
// Each run starts from a fresh random state and freshly initialized
// variables: runs are reproducible given the compiled seed.
func (c *TrainConfig) Done() (*LossHistory, *TrainState, error) {
	m := c.model
	if m.compiled == nil {
		return nil, nil, errors.WithStack(ErrNotCompiled)
	}
	m.state = NewTrainState()

	// Graph building panics on error; convert to a returned error at this
	// boundary.
	var runErr error
	if err := exceptions.TryCatch[error](func() { runErr = m.run(c) }); err != nil {
		return m.history, m.state, errors.Wrap(err, "training run failed")
	}
	return m.history, m.state, runErr
}

func (m *Model) run(c *TrainConfig) error {
	sess, err := m.newSession()
	if err != nil {
		return err
	}
	defer sess.finalize()

	xTest, yTest := m.data.Test(m.compiled.nTest)
	m.state.updateDataTest(xTest, yTest)

	if m.compiled.batchMethod {
		return m.runBatch(sess, c)
	}
	return m.runStochastic(sess, c)
}

// session holds the compiled executables of one training run. They share one
// context, so the variables the training step updates are the ones the
// evaluation passes read.
type session struct {
	ctx *context.Context

	trainStep       *context.Exec // optimizer update, returns the loss components.
	evalTrain       *context.Exec // deterministic pass on the train batch.
	evalTest        *context.Exec // deterministic pass on the test split.
	evalTestDropout *context.Exec // stochastic pass on the test split.
	lossGrad        *context.Exec // loss and packed gradients, for batch methods.
}

func (m *Model) newSession() (*session, error) {
	klog.V(1).Infof("New training session: optimizer=%q seed=%d",
		m.compiled.optimizerName, m.compiled.seed)
	sess := &session{ctx: context.New()}
	sess.ctx.SetRNGStateFromSeed(int64(m.compiled.seed))

	// On a failed build, release whatever executables were already compiled.
	compiledOk := false
	defer func() {
		if !compiledOk {
			sess.finalize()
		}
	}()

	evalFn := func(mode net.Mode) func(ctx *context.Context, inputs []*Node) []*Node {
		return func(ctx *context.Context, inputs []*Node) []*Node {
			comps, outputs := m.lossNodes(ctx, inputs, mode)
			return append(comps, outputs...)
		}
	}

	var err error
	if m.compiled.batchMethod {
		sess.lossGrad, err = context.NewExecAny(m.backend, sess.ctx,
			func(ctx *context.Context, inputs []*Node) []*Node {
				comps, _ := m.lossNodes(ctx, inputs, net.Mode{Training: true, DataID: 0})
				total := sumNodes(comps)
				grads := ctx.BuildTrainableVariablesGradientsGraph(total)
				return append([]*Node{total}, grads...)
			})
		if err != nil {
			return nil, errors.Wrap(err, "compiling loss-and-gradients executable")
		}
	} else {
		sess.trainStep, err = context.NewExecAny(m.backend, sess.ctx,
			func(ctx *context.Context, inputs []*Node) []*Node {
				comps, _ := m.lossNodes(ctx, inputs,
					net.Mode{Training: true, Dropout: true, DataID: 0})
				m.compiled.optimizer.UpdateGraph(ctx, inputs[0].Graph(), sumNodes(comps))
				return comps
			})
		if err != nil {
			return nil, errors.Wrap(err, "compiling training step executable")
		}
	}

	sess.evalTrain, err = context.NewExecAny(m.backend, sess.ctx,
		evalFn(net.Mode{Training: false, Dropout: false, DataID: 0}))
	if err != nil {
		return nil, errors.Wrap(err, "compiling train evaluation executable")
	}
	sess.evalTest, err = context.NewExecAny(m.backend, sess.ctx, evalFn(net.Evaluation))
	if err != nil {
		return nil, errors.Wrap(err, "compiling test evaluation executable")
	}
	sess.evalTestDropout, err = context.NewExecAny(m.backend, sess.ctx,
		evalFn(net.Mode{Training: false, Dropout: true, DataID: 1}))
	if err != nil {
		return nil, errors.Wrap(err, "compiling dropout evaluation executable")
	}
	m.ctx = sess.ctx
	compiledOk = true
	return sess, nil
}

func (sess *session) finalize() {
	for _, e := range []*context.Exec{
		sess.trainStep, sess.evalTrain, sess.evalTest, sess.evalTestDropout, sess.lossGrad,
	} {
		if e != nil {
			e.Finalize()
		}
	}
}

// lossNodes builds the forward pass and the per-component loss nodes for one
// executable: the data-defined components reduced to scalars, then the
// network's regularization term if any, each scaled by the compiled loss
// weights. inputs is the x tensor followed by one target tensor per output.
func (m *Model) lossNodes(ctx *context.Context, inputs []*Node, mode net.Mode) (comps, outputs []*Node) {
	x, targets := inputs[0], inputs[1:]
	outputs = m.net.Apply(ctx, x, mode)
	comps = m.data.Losses(targets, outputs, m.compiled.lossFn)
	for i, comp := range comps {
		if !comp.Shape().IsScalar() {
			comps[i] = ReduceAllMean(comp)
		}
	}
	if reg := m.net.RegularizationLoss(ctx, x.Graph()); reg != nil {
		comps = append(comps, reg)
	}
	if weights := m.compiled.lossWeights; len(weights) > 0 {
		if len(weights) != len(comps) {
			exceptions.Panicf("model: %d loss weights for %d loss components", len(weights), len(comps))
		}
		for i := range comps {
			comps[i] = MulScalar(comps[i], weights[i])
		}
	}
	return comps, outputs
}

func sumNodes(nodes []*Node) *Node {
	total := nodes[0]
	for _, n := range nodes[1:] {
		total = Add(total, n)
	}
	return total
}

// feedArgs lays out one batch as executable arguments: x first, then the
// targets in output order.
func feedArgs(x *tensors.Tensor, y []*tensors.Tensor) []any {
	args := make([]any, 0, 1+len(y))
	args = append(args, x)
	for _, t := range y {
		args = append(args, t)
	}
	return args
}

// shouldValidate implements the validation cadence: every validationEvery
// epochs, plus always on the last one.
func shouldValidate(epoch, validationEvery, epochs int) bool {
	return epoch%validationEvery == 0 || epoch+1 == epochs
}

func (m *Model) runStochastic(sess *session, c *TrainConfig) error {
	m.hooks.fire(TrainBegin, m.state)
	for i := 0; i < c.epochs; i++ {
		m.hooks.fire(EpochBegin, m.state)
		m.hooks.fire(BatchBegin, m.state)

		x, y := m.data.TrainNextBatch(m.compiled.batchSize)
		m.state.updateDataTrain(x, y)
		if _, err := sess.trainStep.Exec(feedArgs(x, y)...); err != nil {
			return errors.Wrapf(err, "training step at epoch %d", i)
		}
		m.state.Epoch++
		m.state.Step++

		if shouldValidate(i, c.validationEvery, c.epochs) {
			if err := m.test(sess, c.uncertainty); err != nil {
				return err
			}
			m.history.Add(i, m.state.LossTrain, m.state.LossTest, m.state.MetricsTest)
			fmt.Fprintf(m.writer, "Epoch: %d, loss: %v, val_loss: %v, val_metric: %v\n",
				i, m.state.LossTrain, m.state.LossTest, m.state.MetricsTest)
		}

		m.hooks.fire(BatchEnd, m.state)
		m.hooks.fire(EpochEnd, m.state)
	}
	m.hooks.fire(TrainEnd, m.state)
	return nil
}

func (m *Model) runBatch(sess *session, c *TrainConfig) error {
	// Batch methods optimize over one fixed batch.
	x, y := m.data.TrainNextBatch(m.compiled.batchSize)
	m.state.updateDataTrain(x, y)
	args := feedArgs(x, y)

	m.hooks.fire(TrainBegin, m.state)

	// The first execution builds the graph and initializes the variables;
	// only then can they be enumerated and packed.
	_, g, err := sess.lossGrad.ExecWithGraph(args...)
	if err != nil {
		return errors.Wrap(err, "building loss-and-gradients graph")
	}
	vars := optimizers.TrainableVariables(sess.ctx, g)

	lossAndGrad := func() (float64, []float64, error) {
		results, err := sess.lossGrad.Exec(args...)
		if err != nil {
			return 0, nil, errors.Wrap(err, "evaluating loss and gradients")
		}
		loss := tensors.ToScalar[float64](results[0])
		var grad []float64
		for _, t := range results[1:] {
			if err := tensors.ConstFlatData(t, func(flat []float64) {
				grad = append(grad, flat...)
			}); err != nil {
				return 0, nil, errors.Wrap(err, "flattening gradients")
			}
		}
		return loss, grad, nil
	}

	finalLoss, err := optimizers.Minimize(m.compiled.optimizerName, vars, lossAndGrad, c.maxIterations)
	if err != nil {
		return err
	}
	klog.V(1).Infof("Batch method %q converged, loss=%g", m.compiled.optimizerName, finalLoss)
	m.state.Epoch = 1
	m.state.Step = 1

	if err := m.test(sess, c.uncertainty); err != nil {
		return err
	}
	m.history.Add(1, m.state.LossTrain, m.state.LossTest, m.state.MetricsTest)
	fmt.Fprintf(m.writer, "loss: %v, val_loss: %v, val_metric: %v\n",
		m.state.LossTrain, m.state.LossTest, m.state.MetricsTest)

	m.hooks.fire(TrainEnd, m.state)
	return nil
}
