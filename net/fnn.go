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

package net

import (
	"fmt"

	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/pkg/errors"

	"github.com/scinetml/scinet/initializers"
)

// ErrUnknownActivation is returned by NewFNN for activation names not in the
// registry.
var ErrUnknownActivation = errors.New("unknown activation")

// FNN is a fully-connected feed-forward network: len(layerSizes)-2 hidden
// layers with the given activation, a linear output layer, optional dropout
// after each hidden layer and optional L2 regularization of the dense
// weights. It implements Network.
type FNN struct {
	layerSizes  []int
	activation  func(x *Node) *Node
	initializer string
	dropoutRate float64
	l2          float64
}

// NewFNN creates a fully-connected network with the given layer sizes, from
// input dimension to output dimension. Known activations: "elu", "relu",
// "selu", "sigmoid", "sin", "tanh". The kernel initializer is resolved by
// name through the initializers registry.
func NewFNN(layerSizes []int, activation, initializer string) (*FNN, error) {
	if len(layerSizes) < 2 {
		return nil, errors.Errorf("an FNN needs at least input and output layer sizes, got %v", layerSizes)
	}
	act, err := activationByName(activation)
	if err != nil {
		return nil, err
	}
	// Validate the initializer name up front, before any session exists.
	if _, err := initializers.Get(context.New(), initializer); err != nil {
		return nil, err
	}
	return &FNN{
		layerSizes:  layerSizes,
		activation:  act,
		initializer: initializer,
	}, nil
}

// WithDropout sets the dropout rate applied after every hidden layer. The
// masks are active when the Mode enables them, which includes Monte Carlo
// dropout at evaluation time.
func (f *FNN) WithDropout(rate float64) *FNN {
	f.dropoutRate = rate
	return f
}

// WithL2Regularization adds amount*sum(weights²) over the dense kernels to
// the training objective. Biases are not regularized.
func (f *FNN) WithL2Regularization(amount float64) *FNN {
	f.l2 = amount
	return f
}

// Targets implements Network. An FNN always predicts a single output node.
func (f *FNN) Targets() Targets {
	return SingleTarget()
}

// Apply implements Network, building the forward pass for x.
func (f *FNN) Apply(ctx *context.Context, x *Node, mode Mode) []*Node {
	g := x.Graph()
	init, err := initializers.Get(ctx, f.initializer)
	if err != nil {
		Panicf("FNN: %v", err)
	}
	ctx = ctx.In("fnn").WithInitializer(init)

	hidden := x
	numLayers := len(f.layerSizes) - 1
	for ii := 1; ii < numLayers; ii++ {
		layerCtx := ctx.In(fmt.Sprintf("layer_%d", ii-1))
		hidden = layers.Dense(layerCtx, hidden, true, f.layerSizes[ii])
		hidden = f.activation(hidden)
		if f.dropoutRate > 0 && mode.Dropout {
			hidden = f.dropout(layerCtx, hidden, g)
		}
	}
	output := layers.Dense(ctx.In("output"), hidden, true, f.layerSizes[numLayers])
	return []*Node{output}
}

// dropout zeroes random entries of input and rescales the survivors by
// 1/(1-rate), so the expected activation is unchanged. Unlike the stock
// layer, it is not gated on ctx.IsTraining: the caller decides through Mode.
func (f *FNN) dropout(ctx *context.Context, input *Node, g *Graph) *Node {
	dims := input.Shape().Dimensions
	rnd := ctx.RandomUniform(g, shapes.Make(input.DType(), dims...))
	rate := Scalar(g, input.DType(), f.dropoutRate)
	kept := Where(LessOrEqual(rnd, BroadcastToDims(rate, dims...)), ZerosLike(input), input)
	return DivScalar(kept, 1-f.dropoutRate)
}

// RegularizationLoss implements Network: amount*sum(w²) over the dense
// kernel variables created by Apply, nil when no regularization was
// requested.
func (f *FNN) RegularizationLoss(ctx *context.Context, g *Graph) *Node {
	if f.l2 <= 0 {
		return nil
	}
	var loss *Node
	for v := range ctx.IterVariables() {
		if v.Name() != "weights" || !v.InUseByGraph(g) {
			continue
		}
		l2 := ReduceAllSum(Square(v.ValueGraph(g)))
		if loss == nil {
			loss = l2
		} else {
			loss = Add(loss, l2)
		}
	}
	if loss == nil {
		return nil
	}
	return MulScalar(loss, f.l2)
}

func activationByName(name string) (func(x *Node) *Node, error) {
	switch name {
	case "relu":
		return func(x *Node) *Node { return activations.Apply(activations.TypeRelu, x) }, nil
	case "selu":
		return func(x *Node) *Node { return activations.Apply(activations.TypeSelu, x) }, nil
	case "sigmoid":
		return func(x *Node) *Node { return activations.Apply(activations.TypeSigmoid, x) }, nil
	case "tanh":
		return func(x *Node) *Node { return activations.Apply(activations.TypeTanh, x) }, nil
	case "elu":
		// elu(x) = x for x>0, exp(x)-1 otherwise.
		return func(x *Node) *Node {
			return Where(GreaterThan(x, ZerosLike(x)), x, Expm1(x))
		}, nil
	case "sin":
		return func(x *Node) *Node { return Sin(x) }, nil
	}
	return nil, errors.Wrapf(ErrUnknownActivation, "%q", name)
}
