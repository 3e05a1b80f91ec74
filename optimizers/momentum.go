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

// MomentumDefaultScope is the scope name for the accumulator variables used
// by the momentum optimizer.
const MomentumDefaultScope = "MomentumOptimizer"

// Momentum creates a gradient-descent-with-momentum optimizer configuration.
// With Nesterov(true) it applies Nesterov accelerated gradient. Call Done to
// build the optimizer.
//
// The accumulator update is accum = momentum*accum + grad, and the step taken
// is lr*accum, or lr*(grad + momentum*accum) for the Nesterov variant.
func Momentum(learningRate, momentum float64) *MomentumConfig {
	return &MomentumConfig{
		scopeName:    MomentumDefaultScope,
		learningRate: learningRate,
		momentum:     momentum,
	}
}

// MomentumConfig holds the configuration for a momentum optimizer, created
// with Momentum(), and once configured call Done.
type MomentumConfig struct {
	scopeName    string
	learningRate float64
	momentum     float64
	nesterov     bool
}

// Scope sets the top-level scope used to store the accumulators. Defaults to
// MomentumDefaultScope.
func (c *MomentumConfig) Scope(name string) *MomentumConfig {
	c.scopeName = name
	return c
}

// Nesterov selects the Nesterov accelerated gradient variant.
func (c *MomentumConfig) Nesterov(enabled bool) *MomentumConfig {
	c.nesterov = enabled
	return c
}

// Done finishes the configuration and builds the optimizer.
func (c *MomentumConfig) Done() Interface {
	return &momentum{config: c}
}

type momentum struct {
	config *MomentumConfig
}

// UpdateGraph builds the graph to update the weights for one training step.
// It implements optimizers.Interface.
func (o *momentum) UpdateGraph(ctx *context.Context, g *Graph, loss *Node) {
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
			"the momentum optimizer sees %d variables -- were new variables created in between ?",
			numTrainable, varIdx)
	}
}

func (o *momentum) applyGraph(ctx *context.Context, g *Graph, v *context.Variable,
	grad, learningRate *Node, dtype dtypes.DType) {
	if grad.DType() != dtype {
		grad = ConvertDType(grad, dtype)
	}
	accumVar := o.accumulatorVariable(ctx, v, dtype)
	accum := accumVar.ValueGraph(g)
	accum = Add(MulScalar(accum, o.config.momentum), grad)
	accumVar.SetValueGraph(accum)

	step := accum
	if o.config.nesterov {
		step = Add(grad, MulScalar(accum, o.config.momentum))
	}
	step = Mul(learningRate, step)

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

func (o *momentum) accumulatorVariable(ctx *context.Context, trainable *context.Variable, dtype dtypes.DType) *context.Variable {
	scopePath := fmt.Sprintf("%s%s%s", context.ScopeSeparator, o.config.scopeName, trainable.Scope())
	name := fmt.Sprintf("%s_momentum", trainable.Name())
	shape := trainable.Shape().Clone()
	shape.DType = dtype
	return ctx.Checked(false).InAbsPath(scopePath).
		WithInitializer(initializers.Zero).
		VariableWithShape(name, shape).
		SetTrainable(false)
}

// Clear all optimizer variables.
// It implements optimizers.Interface.
func (o *momentum) Clear(ctx *context.Context) error {
	return ctx.In(o.config.scopeName).DeleteVariablesInScope()
}
