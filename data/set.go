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
	"math/rand/v2"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train/losses"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// Set is an in-memory supervised fitting dataset with a fixed train/test
// split. It implements Data with a single target component.
//
// Minibatches are drawn without replacement from a shuffled permutation of
// the training rows; when the permutation is exhausted it is reshuffled
// wholesale. Optionally the inputs are standardized column-wise, with mean
// and standard deviation fitted on the training split and applied to both.
type Set struct {
	trainX, trainY matrix
	testX, testY   matrix

	rng    *rand.Rand
	perm   []int
	cursor int
}

// matrix is a dense row-major [rows][cols] block.
type matrix struct {
	rows, cols int
	flat       []float64
}

func newMatrix(rows [][]float64) (matrix, error) {
	if len(rows) == 0 {
		return matrix{}, errors.New("empty matrix")
	}
	cols := len(rows[0])
	if cols == 0 {
		return matrix{}, errors.New("matrix rows need at least one column")
	}
	flat := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return matrix{}, errors.Errorf("ragged matrix: row 0 has %d columns, row %d has %d",
				cols, i, len(row))
		}
		flat = append(flat, row...)
	}
	return matrix{rows: len(rows), cols: cols, flat: flat}, nil
}

func (m matrix) row(i int) []float64 {
	return m.flat[i*m.cols : (i+1)*m.cols]
}

func (m matrix) col(j int) []float64 {
	out := make([]float64, m.rows)
	for i := range out {
		out[i] = m.flat[i*m.cols+j]
	}
	return out
}

// gather copies the given rows into a new matrix.
func (m matrix) gather(rows []int) matrix {
	flat := make([]float64, 0, len(rows)*m.cols)
	for _, i := range rows {
		flat = append(flat, m.row(i)...)
	}
	return matrix{rows: len(rows), cols: m.cols, flat: flat}
}

func (m matrix) tensor() *tensors.Tensor {
	return tensors.FromFlatDataAndDimensions(m.flat, m.rows, m.cols)
}

// NewSet creates a dataset from in-memory train and test rows. Each element
// of trainX/testX is one input row, each element of trainY/testY the
// matching target row. Train and test must agree on dimensions.
func NewSet(trainX, trainY, testX, testY [][]float64, opts ...SetOption) (*Set, error) {
	if len(trainX) != len(trainY) {
		return nil, errors.Errorf("train split has %d inputs but %d targets", len(trainX), len(trainY))
	}
	if len(testX) != len(testY) {
		return nil, errors.Errorf("test split has %d inputs but %d targets", len(testX), len(testY))
	}
	s := &Set{}
	var err error
	if s.trainX, err = newMatrix(trainX); err != nil {
		return nil, errors.Wrap(err, "train inputs")
	}
	if s.trainY, err = newMatrix(trainY); err != nil {
		return nil, errors.Wrap(err, "train targets")
	}
	if s.testX, err = newMatrix(testX); err != nil {
		return nil, errors.Wrap(err, "test inputs")
	}
	if s.testY, err = newMatrix(testY); err != nil {
		return nil, errors.Wrap(err, "test targets")
	}
	if s.trainX.cols != s.testX.cols {
		return nil, errors.Errorf("train inputs have %d columns, test inputs %d", s.trainX.cols, s.testX.cols)
	}
	if s.trainY.cols != s.testY.cols {
		return nil, errors.Errorf("train targets have %d columns, test targets %d", s.trainY.cols, s.testY.cols)
	}

	cfg := setConfig{seed: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	s.rng = rand.New(rand.NewPCG(cfg.seed, cfg.seed^0xA5A5A5A5A5A5A5A5))
	if cfg.standardize {
		s.standardize()
	}
	return s, nil
}

type setConfig struct {
	seed        uint64
	standardize bool
}

// SetOption configures a Set under construction.
type SetOption func(*setConfig)

// WithSeed sets the seed of the minibatch shuffler. The default is 1.
func WithSeed(seed uint64) SetOption {
	return func(cfg *setConfig) { cfg.seed = seed }
}

// WithStandardization standardizes the input columns to zero mean and unit
// standard deviation, fitted on the training split and applied to both
// splits. Constant columns are left centered but unscaled.
func WithStandardization() SetOption {
	return func(cfg *setConfig) { cfg.standardize = true }
}

func (s *Set) standardize() {
	for j := 0; j < s.trainX.cols; j++ {
		mean, std := stat.MeanStdDev(s.trainX.col(j), nil)
		if std == 0 {
			std = 1
		}
		for i := 0; i < s.trainX.rows; i++ {
			s.trainX.flat[i*s.trainX.cols+j] = (s.trainX.flat[i*s.trainX.cols+j] - mean) / std
		}
		for i := 0; i < s.testX.rows; i++ {
			s.testX.flat[i*s.testX.cols+j] = (s.testX.flat[i*s.testX.cols+j] - mean) / std
		}
	}
}

// NumTrain returns the number of training examples.
func (s *Set) NumTrain() int { return s.trainX.rows }

// NumTest returns the number of test examples.
func (s *Set) NumTest() int { return s.testX.rows }

// Losses implements Data: one loss component per output, matched
// positionally against the targets.
func (s *Set) Losses(targets, outputs []*Node, loss losses.LossFn) []*Node {
	components := make([]*Node, len(outputs))
	for i := range outputs {
		components[i] = loss([]*Node{targets[i]}, []*Node{outputs[i]})
	}
	return components
}

// TrainNextBatch implements Data. A batchSize of zero or more than the
// training size returns the whole training split in permutation order.
func (s *Set) TrainNextBatch(batchSize int) (*tensors.Tensor, []*tensors.Tensor) {
	if batchSize <= 0 || batchSize > s.trainX.rows {
		batchSize = s.trainX.rows
	}
	rows := make([]int, 0, batchSize)
	for len(rows) < batchSize {
		if s.cursor >= len(s.perm) {
			s.perm = s.rng.Perm(s.trainX.rows)
			s.cursor = 0
		}
		take := batchSize - len(rows)
		if remaining := len(s.perm) - s.cursor; take > remaining {
			take = remaining
		}
		rows = append(rows, s.perm[s.cursor:s.cursor+take]...)
		s.cursor += take
	}
	return s.trainX.gather(rows).tensor(), []*tensors.Tensor{s.trainY.gather(rows).tensor()}
}

// Test implements Data: the first n test examples, or all of them when n is
// zero, negative or larger than the split.
func (s *Set) Test(n int) (*tensors.Tensor, []*tensors.Tensor) {
	if n <= 0 || n > s.testX.rows {
		n = s.testX.rows
	}
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return s.testX.gather(rows).tensor(), []*tensors.Tensor{s.testY.gather(rows).tensor()}
}
