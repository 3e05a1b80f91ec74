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
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// SaveText writes the final training batch and the best test predictions as
// two plain-text files: trainPath gets the inputs and targets of the last
// minibatch, testPath gets the test inputs, targets, best predictions and,
// when uncertainty was estimated, the prediction standard deviations.
func (s *TrainState) SaveText(trainPath, testPath string) error {
	if err := saveTo(trainPath, s.WriteTrainText); err != nil {
		return err
	}
	return saveTo(testPath, s.WriteTestText)
}

// WriteTrainText writes the last training minibatch, one example per row:
// the input columns followed by the target columns.
func (s *TrainState) WriteTrainText(w io.Writer) error {
	cols, err := columnBlocks(s.XTrain, s.YTrain, nil, nil)
	if err != nil {
		return err
	}
	return writeRows(w, "# x, y", cols)
}

// WriteTestText writes the test split with the best predictions, one example
// per row: inputs, true targets, predicted targets and, when present, the
// prediction standard deviations.
func (s *TrainState) WriteTestText(w io.Writer) error {
	cols, err := columnBlocks(s.XTest, s.YTest, s.BestYPred, s.BestYStd)
	if err != nil {
		return err
	}
	return writeRows(w, "# x, y_true, y_pred, y_std", cols)
}

// columnBlocks flattens x and the target/prediction/std tensor lists into one
// row-major matrix, stacked left to right. Nil blocks are skipped.
func columnBlocks(x *tensors.Tensor, blocks ...[]*tensors.Tensor) ([][]float64, error) {
	if x == nil {
		return nil, errors.New("no data recorded yet, run training first")
	}
	rows := x.Shape().Dimensions[0]
	out := make([][]float64, rows)
	appendTensor := func(t *tensors.Tensor) error {
		if t.Shape().Dimensions[0] != rows {
			return errors.Errorf("tensor with %d rows in an export of %d rows",
				t.Shape().Dimensions[0], rows)
		}
		cols := t.Shape().Size() / rows
		return errors.WithStack(tensors.ConstFlatData(t, func(flat []float64) {
			for i := range rows {
				out[i] = append(out[i], flat[i*cols:(i+1)*cols]...)
			}
		}))
	}
	if err := appendTensor(x); err != nil {
		return nil, err
	}
	for _, block := range blocks {
		for _, t := range block {
			if t == nil {
				continue
			}
			if err := appendTensor(t); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func writeRows(w io.Writer, header string, rows [][]float64) error {
	if _, err := fmt.Fprintln(w, header); err != nil {
		return errors.WithStack(err)
	}
	for _, row := range rows {
		fields := make([]string, len(row))
		for i, v := range row {
			fields[i] = formatValue(v)
		}
		if _, err := fmt.Fprintln(w, strings.Join(fields, " ")); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

func saveTo(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()
	if err := write(f); err != nil {
		return err
	}
	return errors.WithStack(f.Close())
}
