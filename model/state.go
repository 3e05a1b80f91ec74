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
	"math"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"gonum.org/v1/gonum/floats"
)

// TrainState is the mutable snapshot of the current training moment: the
// batches in flight, the latest evaluation results and the best result seen
// so far. One fresh instance exists per training run; hooks receive it and
// must treat it as read-only.
//
// The train fields are replaced wholesale each epoch, never partially
// mutated. The Best* fields only move when a strictly lower summed train
// loss is observed, so BestLossTrain is non-increasing across a run.
type TrainState struct {
	Epoch int
	Step  int

	// Current training minibatch and the fixed held-out test split.
	XTrain *tensors.Tensor
	YTrain []*tensors.Tensor
	XTest  *tensors.Tensor
	YTest  []*tensors.Tensor

	// Results of the latest evaluation.
	LossTrain   []float64
	LossTest    []float64
	YPredTrain  []*tensors.Tensor
	YPredTest   []*tensors.Tensor
	YStdTest    []*tensors.Tensor // nil without uncertainty estimation.
	MetricsTest []float64

	// Best snapshot, keyed on the minimum summed train loss.
	BestLossTrain float64
	BestLossTest  float64
	BestYPred     []*tensors.Tensor
	BestYStd      []*tensors.Tensor
	BestMetrics   []float64
}

// NewTrainState creates a fresh state with zeroed counters and no best
// snapshot yet.
func NewTrainState() *TrainState {
	return &TrainState{
		BestLossTrain: math.Inf(1),
		BestLossTest:  math.Inf(1),
	}
}

func (s *TrainState) updateDataTrain(x *tensors.Tensor, y []*tensors.Tensor) {
	s.XTrain, s.YTrain = x, y
}

func (s *TrainState) updateDataTest(x *tensors.Tensor, y []*tensors.Tensor) {
	s.XTest, s.YTest = x, y
}

// updateBest adopts the current evaluation as the best snapshot when its
// summed train loss is strictly lower than the best seen so far.
func (s *TrainState) updateBest() {
	if s.BestLossTrain <= floats.Sum(s.LossTrain) {
		return
	}
	s.BestLossTrain = floats.Sum(s.LossTrain)
	s.BestLossTest = floats.Sum(s.LossTest)
	s.BestYPred = s.YPredTest
	s.BestYStd = s.YStdTest
	s.BestMetrics = s.MetricsTest
}
