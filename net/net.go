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

// Package net defines the network contract of the training harness and a
// fully-connected implementation.
//
// A Network is a graph-building function over a GoMLX context: the harness
// calls Apply once per compiled executable (training step, deterministic
// evaluation, dropout evaluation), each time with a different Mode. Variables
// live in the context, so all executables share the same weights.
package net

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
)

// Mode carries the per-call flags of a network application.
//
// Training selects the training-time forward pass. Dropout enables the
// dropout masks independently of Training, which is how Monte Carlo dropout
// keeps them active at evaluation time. DataID distinguishes the train-time
// pass (0) from the test-time pass (1) for networks that build different
// graphs for each.
type Mode struct {
	Training bool
	Dropout  bool
	DataID   int
}

// Evaluation is the deterministic test-time mode.
var Evaluation = Mode{Training: false, Dropout: false, DataID: 1}

// Targets describes how many target components a network predicts: a single
// output node or an ordered list of them.
type Targets struct {
	outputs int
	multi   bool
}

// SingleTarget is a network with one output node.
func SingleTarget() Targets {
	return Targets{outputs: 1, multi: false}
}

// MultiTarget is a network with the given number of output nodes, matched
// positionally against target slices.
func MultiTarget(outputs int) Targets {
	return Targets{outputs: outputs, multi: true}
}

// NumOutputs returns the number of output nodes of the network.
func (t Targets) NumOutputs() int {
	return t.outputs
}

// Multi reports whether the network declares an ordered list of outputs
// rather than a single one.
func (t Targets) Multi() bool {
	return t.multi
}

// Network is the model-definition collaborator of the harness.
type Network interface {
	// Apply builds the forward pass for input x under the given mode and
	// returns one output node per target, in target order. It is a
	// graph-building function and panics on error.
	Apply(ctx *context.Context, x *Node, mode Mode) []*Node

	// Targets describes the output arity of the network.
	Targets() Targets

	// RegularizationLoss builds the weight-regularization term to add to
	// the training objective, or returns nil if the network declares no
	// regularizer.
	RegularizationLoss(ctx *context.Context, g *Graph) *Node
}
