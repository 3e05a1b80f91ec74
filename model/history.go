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

	"github.com/pkg/errors"
)

// LossHistory is the append-only series of validation records of a training
// run: for each validation point, the step, the per-component train and test
// losses and the flattened test metrics.
//
// The four series always have equal length; Add appends to all of them
// atomically and nothing ever shrinks. The public fields are for reading.
type LossHistory struct {
	Steps       []int
	LossTrain   [][]float64
	LossTest    [][]float64
	MetricsTest [][]float64

	lossWeights []float64
}

// NewLossHistory creates an empty history.
func NewLossHistory() *LossHistory {
	return &LossHistory{}
}

// UpdateLossWeights records the per-component loss weights, used only when
// displaying summed losses.
func (h *LossHistory) UpdateLossWeights(weights []float64) {
	h.lossWeights = append([]float64{}, weights...)
}

// Add appends one validation record. The slices are copied.
func (h *LossHistory) Add(step int, lossTrain, lossTest, metricsTest []float64) {
	h.Steps = append(h.Steps, step)
	h.LossTrain = append(h.LossTrain, append([]float64{}, lossTrain...))
	h.LossTest = append(h.LossTest, append([]float64{}, lossTest...))
	h.MetricsTest = append(h.MetricsTest, append([]float64{}, metricsTest...))
}

// Len returns the number of validation records.
func (h *LossHistory) Len() int {
	return len(h.Steps)
}

// weightedSum sums the components of one record, scaled by the display loss
// weights when they were set.
func (h *LossHistory) weightedSum(components []float64) float64 {
	total := 0.0
	for i, v := range components {
		if i < len(h.lossWeights) {
			v *= h.lossWeights[i]
		}
		total += v
	}
	return total
}

// SummedLossTrain returns the display-weighted summed train loss per record.
func (h *LossHistory) SummedLossTrain() []float64 {
	out := make([]float64, h.Len())
	for i, components := range h.LossTrain {
		out[i] = h.weightedSum(components)
	}
	return out
}

// SummedLossTest returns the display-weighted summed test loss per record.
func (h *LossHistory) SummedLossTest() []float64 {
	out := make([]float64, h.Len())
	for i, components := range h.LossTest {
		out[i] = h.weightedSum(components)
	}
	return out
}

// SaveText writes the history as plain text, one record per row: the step,
// the train loss components, the test loss components and the test metrics.
func (h *LossHistory) SaveText(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()
	if err := h.WriteText(f); err != nil {
		return err
	}
	return errors.WithStack(f.Close())
}

// WriteText writes the history rows to w with the standard header.
func (h *LossHistory) WriteText(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "# step, loss_train, loss_test, metrics_test"); err != nil {
		return errors.WithStack(err)
	}
	for i, step := range h.Steps {
		row := []string{fmt.Sprintf("%d", step)}
		for _, v := range h.LossTrain[i] {
			row = append(row, formatValue(v))
		}
		for _, v := range h.LossTest[i] {
			row = append(row, formatValue(v))
		}
		for _, v := range h.MetricsTest[i] {
			row = append(row, formatValue(v))
		}
		if _, err := fmt.Fprintln(w, strings.Join(row, " ")); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

func formatValue(v float64) string {
	return fmt.Sprintf("%.18e", v)
}
