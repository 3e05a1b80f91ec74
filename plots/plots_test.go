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

package plots

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scinetml/scinet/model"
)

func TestLosses(t *testing.T) {
	h := model.NewLossHistory()
	h.Add(0, []float64{1.0}, []float64{1.2}, []float64{0.9})
	h.Add(10, []float64{0.1}, []float64{0.15}, []float64{0.3})
	h.Add(19, []float64{0.01}, []float64{0.02}, []float64{0.1})

	path := filepath.Join(t.TempDir(), "loss.png")
	require.NoError(t, Losses(h, path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	require.Error(t, Losses(model.NewLossHistory(), path))
}

func TestBestPrediction(t *testing.T) {
	s := model.NewTrainState()
	s.XTest = tensors.FromFlatDataAndDimensions([]float64{0.3, 0.1, 0.2}, 3, 1)
	s.YTest = []*tensors.Tensor{
		tensors.FromFlatDataAndDimensions([]float64{0.9, 0.3, 0.6}, 3, 1),
	}
	s.BestYPred = []*tensors.Tensor{
		tensors.FromFlatDataAndDimensions([]float64{0.8, 0.35, 0.55}, 3, 1),
	}
	s.BestYStd = []*tensors.Tensor{
		tensors.FromFlatDataAndDimensions([]float64{0.05, 0.02, 0.03}, 3, 1),
	}

	path := filepath.Join(t.TempDir(), "best.png")
	require.NoError(t, BestPrediction(s, path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	// Without a run there is nothing to plot.
	require.Error(t, BestPrediction(model.NewTrainState(), path))
}
