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

package optimizers

import (
	"fmt"

	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/initializers"
	gomlxopt "github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
)

const (
	// AdaDeltaDefaultScope is the scope name for the accumulators used by
	// AdaDelta.
	AdaDeltaDefaultScope = "AdaDeltaOptimizer"

	// AdaDeltaDefaultLearningRate is the AdaDelta base learning rate. The
	// method scales its own steps, so the rate stays small and fixed.
	AdaDeltaDefaultLearningRate = 0.001
)

// AdaDelta creates an AdaDelta optimizer configuration, following
// [Zeiler, 2012](https://arxiv.org/abs/1212.5701): two exponential moving
// accumulators, one of squared gradients and one of squared updates, with
// decay rho. Call Done to build the optimizer.
func AdaDelta() *AdaDeltaConfig {
	return &AdaDeltaConfig{
		scopeName:    AdaDeltaDefaultScope,
		learningRate: AdaDeltaDefaultLearningRate,
		rho:          0.95,
		epsilon:      1e-8,
	}
}

// AdaDeltaConfig holds the configuration for AdaDelta, created with
// AdaDelta(), and once configured call Done.
type AdaDeltaConfig struct {
	scopeName    string
	learningRate float64
	rho          float64
	epsilon      float64
}

// Scope sets the top-level scope used to store the accumulators. Defaults to
// AdaDeltaDefaultScope.
func (c *AdaDeltaConfig) Scope(name string) *AdaDeltaConfig {
	c.scopeName = name
	return c
}

// LearningRate sets the base learning rate. Defaults to
// AdaDeltaDefaultLearningRate.
func (c *AdaDeltaConfig) LearningRate(value float64) *AdaDeltaConfig {
	c.learningRate = value
	return c
}

// Rho sets the decay rate of both accumulators. Defaults to 0.95.
func (c *AdaDeltaConfig) Rho(rho float64) *AdaDeltaConfig {
	c.rho = rho
	return c
}

// Epsilon used inside the roots as a small constant for stability.
func (c *AdaDeltaConfig) Epsilon(epsilon float64) *AdaDeltaConfig {
	c.epsilon = epsilon
	return c
}

// Done finishes the configuration and builds the optimizer.
func (c *AdaDeltaConfig) Done() Interface {
	return &adaDelta{config: c}
}

type adaDelta struct {
	config *AdaDeltaConfig
}

// UpdateGraph builds the graph to update the weights for one training step.
// It implements optimizers.Interface.
func (o *adaDelta) UpdateGraph(ctx *context.Context, g *Graph, loss *Node) {
	if !loss.Shape().IsScalar() {
		Panicf("optimizer requires a scalar loss to optimize, got loss.shape=%s instead", loss.Shape())
	}
	grads := ctx.BuildTrainableVariablesGradientsGraph(loss)
	if len(grads) == 0 {
		Panicf("Context.BuildTrainableVariablesGradientsGraph returned 0 gradients, are there any trainable variables ?")
	}
	dtype := loss.DType()

	lrVar := gomlxopt.LearningRateVar(ctx, dtype, o.config.learningRate)
	learningRate := lrVar.ValueGraph(g)

	_ = gomlxopt.IncrementGlobalStepGraph(ctx, g, dtype)

	numTrainable := len(grads)
	varIdx := 0
	for v := range ctx.IterVariables() {
		if !v.Trainable || !v.InUseByGraph(g) {
			continue
		}
		if varIdx < numTrainable {
			o.applyGraph(ctx, g, v, grads[varIdx], learningRate, dtype)
		}
		varIdx++
	}
	if varIdx != numTrainable {
		Panicf("Context.BuildTrainableVariablesGradientsGraph returned gradients for %d variables, but "+
			"AdaDelta sees %d variables -- were new variables created in between ?",
			numTrainable, varIdx)
	}
}

func (o *adaDelta) applyGraph(ctx *context.Context, g *Graph, v *context.Variable,
	grad, learningRate *Node, dtype dtypes.DType) {
	if grad.DType() != dtype {
		grad = ConvertDType(grad, dtype)
	}
	gradAccumVar := o.accumulatorVariable(ctx, v, dtype, "accum_grad")
	updateAccumVar := o.accumulatorVariable(ctx, v, dtype, "accum_update")
	rho := o.config.rho

	gradAccum := gradAccumVar.ValueGraph(g)
	gradAccum = Add(MulScalar(gradAccum, rho), MulScalar(Square(grad), 1-rho))
	gradAccumVar.SetValueGraph(gradAccum)

	updateAccum := updateAccumVar.ValueGraph(g)
	update := Mul(grad,
		Div(Sqrt(AddScalar(updateAccum, o.config.epsilon)),
			Sqrt(AddScalar(gradAccum, o.config.epsilon))))
	updateAccum = Add(MulScalar(updateAccum, rho), MulScalar(Square(update), 1-rho))
	updateAccumVar.SetValueGraph(updateAccum)

	step := Mul(learningRate, update)

	value := v.ValueGraph(g)
	if value.DType() != dtype {
		value = ConvertDType(value, dtype)
	}
	updated := Sub(value, step)
	if v.Shape().DType != dtype {
		updated = ConvertDType(updated, v.Shape().DType)
	}
	v.SetValueGraph(updated)
}

func (o *adaDelta) accumulatorVariable(ctx *context.Context, trainable *context.Variable,
	dtype dtypes.DType, kind string) *context.Variable {
	scopePath := fmt.Sprintf("%s%s%s", context.ScopeSeparator, o.config.scopeName, trainable.Scope())
	name := fmt.Sprintf("%s_%s", trainable.Name(), kind)
	shape := trainable.Shape().Clone()
	shape.DType = dtype
	return ctx.Checked(false).InAbsPath(scopePath).
		WithInitializer(initializers.Zero).
		VariableWithShape(name, shape).
		SetTrainable(false)
}

// Clear all optimizer variables.
// It implements optimizers.Interface.
func (o *adaDelta) Clear(ctx *context.Context) error {
	return ctx.In(o.config.scopeName).DeleteVariablesInScope()
}
