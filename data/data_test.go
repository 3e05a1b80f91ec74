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

package data

import (
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func rampSet(t *testing.T, opts ...SetOption) *Set {
	const n = 10
	trainX := make([][]float64, n)
	trainY := make([][]float64, n)
	for i := range trainX {
		trainX[i] = []float64{float64(i)}
		trainY[i] = []float64{2 * float64(i)}
	}
	s, err := NewSet(trainX, trainY,
		[][]float64{{0.5}, {1.5}, {2.5}},
		[][]float64{{1}, {3}, {5}}, opts...)
	require.NoError(t, err)
	return s
}

func TestNewSetErrors(t *testing.T) {
	_, err := NewSet([][]float64{{1}}, [][]float64{{1}, {2}}, [][]float64{{1}}, [][]float64{{1}})
	require.Error(t, err)

	// Ragged rows.
	_, err = NewSet([][]float64{{1, 2}, {3}}, [][]float64{{1}, {2}},
		[][]float64{{1, 2}}, [][]float64{{1}})
	require.Error(t, err)

	// Train and test input widths must agree.
	_, err = NewSet([][]float64{{1, 2}}, [][]float64{{1}},
		[][]float64{{1}}, [][]float64{{1}})
	require.Error(t, err)
}

func TestTrainNextBatchCyclesAllExamples(t *testing.T) {
	s := rampSet(t)

	// Two batches of 5 cover one full permutation of the 10 examples.
	seen := map[float64]bool{}
	for range 2 {
		x, y := s.TrainNextBatch(5)
		require.Equal(t, []int{5, 1}, x.Shape().Dimensions)
		require.Len(t, y, 1)
		xs := tensors.MustCopyFlatData[float64](x)
		ys := tensors.MustCopyFlatData[float64](y[0])
		for i, v := range xs {
			assert.Equal(t, 2*v, ys[i]) // Pairing survives the shuffle.
			seen[v] = true
		}
	}
	assert.Len(t, seen, 10)
}

func TestTrainNextBatchReshuffles(t *testing.T) {
	s := rampSet(t)
	x1, _ := s.TrainNextBatch(10)
	x2, _ := s.TrainNextBatch(10)
	a := tensors.MustCopyFlatData[float64](x1)
	b := tensors.MustCopyFlatData[float64](x2)

	sorted := func(v []float64) []float64 {
		out := append([]float64{}, v...)
		sort.Float64s(out)
		return out
	}
	assert.Equal(t, sorted(a), sorted(b))
}

func TestTestSplitIsFixed(t *testing.T) {
	s := rampSet(t)
	x1, y1 := s.Test(2)
	x2, y2 := s.Test(2)
	assert.Equal(t, tensors.MustCopyFlatData[float64](x1), tensors.MustCopyFlatData[float64](x2))
	assert.Equal(t, tensors.MustCopyFlatData[float64](y1[0]), tensors.MustCopyFlatData[float64](y2[0]))

	// n larger than the split clamps.
	x3, _ := s.Test(100)
	assert.Equal(t, []int{3, 1}, x3.Shape().Dimensions)
}

func TestStandardization(t *testing.T) {
	s := rampSet(t, WithStandardization())
	cols := s.trainX.col(0)
	mean, std := stat.MeanStdDev(cols, nil)
	assert.InDelta(t, 0.0, mean, 1e-12)
	assert.InDelta(t, 1.0, std, 1e-12)

	// Test inputs are transformed with the train statistics, not their own.
	testCol := s.testX.col(0)
	testMean, _ := stat.MeanStdDev(testCol, nil)
	assert.Greater(t, math.Abs(testMean-0.0), 1e-6)
}

func TestFromFiles(t *testing.T) {
	dir := t.TempDir()
	trainPath := filepath.Join(dir, "train.dat")
	testPath := filepath.Join(dir, "test.dat")

	// Whitespace-separated with a comment line.
	require.NoError(t, os.WriteFile(trainPath, []byte(
		"# x0 x1 y\n0 10 0\n1 11 2\n2 12 4\n3 13 6\n"), 0o644))
	require.NoError(t, os.WriteFile(testPath, []byte(
		"0.5,10.5,1\n1.5,11.5,3\n"), 0o644))

	s, err := FromFiles(trainPath, testPath, []int{0}, []int{2})
	require.NoError(t, err)
	assert.Equal(t, 4, s.NumTrain())
	assert.Equal(t, 2, s.NumTest())

	x, y := s.Test(0)
	assert.Equal(t, []float64{0.5, 1.5}, tensors.MustCopyFlatData[float64](x))
	assert.Equal(t, []float64{1, 3}, tensors.MustCopyFlatData[float64](y[0]))

	_, err = FromFiles(trainPath, testPath, []int{0}, []int{7})
	require.Error(t, err)

	_, err = FromFiles(filepath.Join(dir, "missing.dat"), testPath, []int{0}, []int{2})
	require.Error(t, err)
}
