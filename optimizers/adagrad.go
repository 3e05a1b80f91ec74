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
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	gomlxopt "github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
)

const (
	// AdaGradDefaultScope is the scope name for the gradient accumulators
	// used by AdaGrad.
	AdaGradDefaultScope = "AdaGradOptimizer"

	// AdaGradInitialAccumulator is the initial value of the squared-gradient
	// accumulators.
	AdaGradInitialAccumulator = 0.1
)

// AdaGrad creates an AdaGrad optimizer configuration: the learning rate of
// each weight is divided by the root of the accumulated squared gradients of
// that weight. Call Done to build the optimizer.
func AdaGrad(learningRate float64) *AdaGradConfig {
	return &AdaGradConfig{
		scopeName:    AdaGradDefaultScope,
		learningRate: learningRate,
		epsilon:      1e-7,
	}
}

// AdaGradConfig holds the configuration for AdaGrad, created with AdaGrad(),
// and once configured call Done.
type AdaGradConfig struct {
	scopeName    string
	learningRate float64
	epsilon      float64
}

// Scope sets the top-level scope used to store the accumulators. Defaults to
// AdaGradDefaultScope.
func (c *AdaGradConfig) Scope(name string) *AdaGradConfig {
	c.scopeName = name
	return c
}

// Epsilon used on the denominator as a small constant for stability.
func (c *AdaGradConfig) Epsilon(epsilon float64) *AdaGradConfig {
	c.epsilon = epsilon
	return c
}

// Done finishes the configuration and builds the optimizer.
func (c *AdaGradConfig) Done() Interface {
	return &adaGrad{config: c}
}

type adaGrad struct {
	config *AdaGradConfig
}

// UpdateGraph builds the graph to update the weights for one training step.
// It implements optimizers.Interface.
func (o *adaGrad) UpdateGraph(ctx *context.Context, g *Graph, loss *Node) {
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
			"AdaGrad sees %d variables -- were new variables created in between ?",
			numTrainable, varIdx)
	}
}

func (o *adaGrad) applyGraph(ctx *context.Context, g *Graph, v *context.Variable,
	grad, learningRate *Node, dtype dtypes.DType) {
	if grad.DType() != dtype {
		grad = ConvertDType(grad, dtype)
	}
	accumVar := o.accumulatorVariable(ctx, v, dtype)
	accum := accumVar.ValueGraph(g)
	accum = Add(accum, Square(grad))
	accumVar.SetValueGraph(accum)

	denominator := AddScalar(Sqrt(accum), o.config.epsilon)
	step := Div(Mul(learningRate, grad), denominator)

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

func (o *adaGrad) accumulatorVariable(ctx *context.Context, trainable *context.Variable, dtype dtypes.DType) *context.Variable {
	scopePath := fmt.Sprintf("%s%s%s", context.ScopeSeparator, o.config.scopeName, trainable.Scope())
	name := fmt.Sprintf("%s_accumulator", trainable.Name())
	shape := trainable.Shape().Clone()
	shape.DType = dtype
	initialAccumulator := func(g *Graph, shape shapes.Shape) *Node {
		return AddScalar(Zeros(g, shape), AdaGradInitialAccumulator)
	}
	return ctx.Checked(false).InAbsPath(scopePath).
		WithInitializer(initialAccumulator).
		VariableWithShape(name, shape).
		SetTrainable(false)
}

// Clear all optimizer variables.
// It implements optimizers.Interface.
func (o *adaGrad) Clear(ctx *context.Context) error {
	return ctx.In(o.config.scopeName).DeleteVariablesInScope()
}
