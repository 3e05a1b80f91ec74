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

// Package model implements the training and evaluation harness: Model
// coordinates graph compilation, optimizer dispatch, the epoch loop,
// validation cadence, Monte Carlo dropout uncertainty and best-checkpoint
// tracking, accumulating results into a TrainState and a LossHistory.
//
// Typical use:
//
//	m := model.New(backend, dataset, network)
//	err := m.Compile("adam").WithLearningRate(0.001).WithBatchSize(16).
//		WithNTest(100).WithMetrics("l2 relative error").Done()
//	...
//	history, state, err := m.Train(50000).WithValidationEvery(1000).Done()
package model

import (
	"fmt"
	"io"
	"os"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train/losses"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/scinetml/scinet/data"
	"github.com/scinetml/scinet/metrics"
	"github.com/scinetml/scinet/net"
	"github.com/scinetml/scinet/optimizers"
)

// ErrUnknownLoss is returned by Compile for loss kinds not in the registry.
var ErrUnknownLoss = errors.New("unknown loss")

// ErrNotCompiled is returned by Train when no successful Compile preceded
// it.
var ErrNotCompiled = errors.New("model is not compiled")

// Model owns one TrainState and one LossHistory and orchestrates training
// runs over a data provider and a network definition, both supplied at
// construction and never mutated by the harness.
type Model struct {
	backend backends.Backend
	data    data.Data
	net     net.Network

	compiled *compiled
	history  *LossHistory
	state    *TrainState
	hooks    *hookSet
	writer   io.Writer

	// Context of the latest training session, kept for variable inspection.
	ctx *context.Context
}

// compiled holds everything a successful Compile fixed for the life of the
// model. A second Compile replaces it wholesale.
type compiled struct {
	optimizerName string
	batchMethod   bool
	optimizer     optimizers.Interface // nil for batch methods.
	learningRate  float64
	batchSize     int
	nTest         int
	lossFn        losses.LossFn
	metrics       []metrics.Metric
	lossWeights   []float64
	seed          uint64
}

// New creates a Model over the given backend, data provider and network.
func New(backend backends.Backend, d data.Data, n net.Network) *Model {
	return &Model{
		backend: backend,
		data:    d,
		net:     n,
		history: NewLossHistory(),
		state:   NewTrainState(),
		hooks:   newHookSet(),
		writer:  os.Stdout,
	}
}

// State returns the current train state. After a run it holds the final
// snapshot; hooks receive the same pointer during the run.
func (m *Model) State() *TrainState { return m.state }

// History returns the loss history accumulated so far.
func (m *Model) History() *LossHistory { return m.history }

// SetWriter redirects the per-validation progress lines. Default is
// os.Stdout.
func (m *Model) SetWriter(w io.Writer) { m.writer = w }

// PrintModel writes the trainable variables of the latest training run to w:
// scope and name, shape and current value, one per line. It returns an error
// before the first run, while no variables exist yet.
func (m *Model) PrintModel(w io.Writer) error {
	if m.ctx == nil {
		return errors.New("no trained variables yet, run training first")
	}
	for v := range m.ctx.IterVariables() {
		if !v.Trainable {
			continue
		}
		value, err := v.Value()
		if err != nil {
			return errors.Wrapf(err, "reading variable %q", v.ScopeAndName())
		}
		if _, err := fmt.Fprintf(w, "%s %s %s\n", v.ScopeAndName(), v.Shape(), value); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// Compile starts the compile configuration for the given optimizer name:
// either a stochastic optimizer ("sgd", "sgdnesterov", "adagrad",
// "adadelta", "rmsprop", "adam") or a batch method ("BFGS", "L-BFGS-B",
// "Nelder-Mead", "Powell", "CG", "Newton-CG"). Call Done to validate and
// commit.
func (m *Model) Compile(optimizer string) *CompileConfig {
	return &CompileConfig{
		model:        m,
		optimizer:    optimizer,
		learningRate: 0.001,
		batchSize:    16,
		nTest:        0,
		loss:         "MSE",
		seed:         42,
	}
}

// CompileConfig is the builder returned by Model.Compile.
type CompileConfig struct {
	model        *Model
	optimizer    string
	learningRate float64
	batchSize    int
	nTest        int
	loss         any
	metricNames  []any
	decay        *optimizers.Decay
	lossWeights  []float64
	seed         uint64
}

// WithLearningRate sets the learning rate of stochastic optimizers. Batch
// methods ignore it. Default 0.001.
func (c *CompileConfig) WithLearningRate(lr float64) *CompileConfig {
	c.learningRate = lr
	return c
}

// WithBatchSize sets the training minibatch size. Zero means the whole
// training split. Default 16.
func (c *CompileConfig) WithBatchSize(batchSize int) *CompileConfig {
	c.batchSize = batchSize
	return c
}

// WithNTest sets how many held-out examples to evaluate on. Zero means the
// whole test split.
func (c *CompileConfig) WithNTest(nTest int) *CompileConfig {
	c.nTest = nTest
	return c
}

// WithLoss selects the loss: a name ("MSE", "MAE", "softmax cross entropy")
// or a losses.LossFn directly. Default "MSE".
func (c *CompileConfig) WithLoss(loss any) *CompileConfig {
	c.loss = loss
	return c
}

// WithMetrics selects the test metrics, by name or as metrics.Metric
// values.
func (c *CompileConfig) WithMetrics(identifiers ...any) *CompileConfig {
	c.metricNames = identifiers
	return c
}

// WithDecay attaches a learning-rate decay schedule to a stochastic
// optimizer.
func (c *CompileConfig) WithDecay(decay *optimizers.Decay) *CompileConfig {
	c.decay = decay
	return c
}

// WithLossWeights scales the loss components elementwise before they are
// summed into the training objective. The weights are also recorded in the
// LossHistory for display weighting.
func (c *CompileConfig) WithLossWeights(weights ...float64) *CompileConfig {
	c.lossWeights = weights
	return c
}

// WithSeed sets the seed of the run's random state (weight initialization
// and dropout masks). Default 42.
func (c *CompileConfig) WithSeed(seed uint64) *CompileConfig {
	c.seed = seed
	return c
}

// Done validates the configuration and commits it, replacing any previous
// compilation wholesale. All registry lookups fail here, before any session
// or graph work.
func (c *CompileConfig) Done() error {
	m := c.model
	klog.V(1).Infof("Compiling model with optimizer %q", c.optimizer)

	lossFn, err := lossByName(c.loss)
	if err != nil {
		return err
	}
	metricFns := make([]metrics.Metric, 0, len(c.metricNames))
	for _, identifier := range c.metricNames {
		metric, err := metrics.Get(identifier)
		if err != nil {
			return err
		}
		metricFns = append(metricFns, metric)
	}

	cm := &compiled{
		optimizerName: c.optimizer,
		learningRate:  c.learningRate,
		batchSize:     c.batchSize,
		nTest:         c.nTest,
		lossFn:        lossFn,
		metrics:       metricFns,
		lossWeights:   append([]float64{}, c.lossWeights...),
		seed:          c.seed,
	}
	if optimizers.IsBatchMethod(c.optimizer) {
		cm.batchMethod = true
		if c.decay != nil {
			return errors.Errorf("batch method %q takes no learning-rate decay", c.optimizer)
		}
	} else {
		cm.optimizer, err = optimizers.ByName(c.optimizer, c.learningRate, c.decay)
		if err != nil {
			return err
		}
	}

	// Committing replaces all prior compile state, including the history.
	m.compiled = cm
	m.history = NewLossHistory()
	if len(cm.lossWeights) > 0 {
		m.history.UpdateLossWeights(cm.lossWeights)
	}
	return nil
}

// lossByName resolves a loss identifier: a registry name or a
// losses.LossFn.
func lossByName(identifier any) (losses.LossFn, error) {
	switch v := identifier.(type) {
	case string:
		switch v {
		case "MSE":
			return losses.MeanSquaredError, nil
		case "MAE":
			return losses.MeanAbsoluteError, nil
		case "softmax cross entropy":
			return losses.CategoricalCrossEntropyLogits, nil
		}
		return nil, errors.Wrapf(ErrUnknownLoss, "%q", v)
	case losses.LossFn:
		return v, nil
	case func(labels, predictions []*graph.Node) *graph.Node:
		return v, nil
	default:
		return nil, errors.Wrapf(ErrUnknownLoss, "cannot interpret loss identifier %v (%T)",
			identifier, identifier)
	}
}
