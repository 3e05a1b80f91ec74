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

// Package data defines the data-provider contract of the training harness
// and an in-memory supervised dataset.
//
// A Data implementation owns the sampling of training minibatches, the fixed
// held-out test split and the translation of network outputs into loss
// components. The harness never looks inside the tensors it is handed, it
// only feeds them to the compiled executables.
package data

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train/losses"
)

// Data provides training batches, the test set and the loss components of a
// problem.
type Data interface {
	// Losses builds the per-component loss nodes from the target and output
	// nodes, matched positionally, using the compiled loss function. It is
	// a graph-building function and panics on error.
	Losses(targets, outputs []*Node, loss losses.LossFn) []*Node

	// TrainNextBatch returns the next training minibatch: the input tensor
	// and one target tensor per network output. Implementations reshuffle
	// when they exhaust the training set.
	TrainNextBatch(batchSize int) (x *tensors.Tensor, y []*tensors.Tensor)

	// Test returns up to n held-out test examples. The split is fixed: every
	// call returns the same examples.
	Test(n int) (x *tensors.Tensor, y []*tensors.Tensor)
}
