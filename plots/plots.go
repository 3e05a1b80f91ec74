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

// Package plots renders training results to image files with gonum/plot:
// the loss and metric curves of a LossHistory and the best test predictions
// of a TrainState, with uncertainty bands when they were estimated.
package plots

import (
	"sort"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/scinetml/scinet/model"
)

// Losses plots the summed train and test losses and the test metrics of a
// history against the training step, on a logarithmic Y axis, and saves the
// result as an image (the format follows the path extension, e.g. ".png").
func Losses(h *model.LossHistory, path string) error {
	if h.Len() == 0 {
		return errors.New("empty loss history, nothing to plot")
	}
	p := plot.New()
	p.Title.Text = "Training history"
	p.X.Label.Text = "step"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{}

	series := []struct {
		name   string
		values []float64
	}{
		{"loss_train", h.SummedLossTrain()},
		{"loss_test", h.SummedLossTest()},
	}
	for i := range h.MetricsTest[0] {
		values := make([]float64, h.Len())
		for j, record := range h.MetricsTest {
			values[j] = record[i]
		}
		series = append(series, struct {
			name   string
			values []float64
		}{"metric_test", values})
	}

	for i, s := range series {
		line, err := plotter.NewLine(positiveXYs(h.Steps, s.values))
		if err != nil {
			return errors.Wrapf(err, "plotting %s", s.name)
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(s.name, line)
	}
	p.Legend.Top = true
	return errors.Wrapf(p.Save(8*vg.Inch, 5*vg.Inch, path), "saving loss plot to %q", path)
}

// BestPrediction plots the best test predictions of a one-input problem
// against the true targets, one curve per output component, with a two
// standard deviation band when uncertainty was estimated, and saves the
// result as an image.
//
// The test inputs may be multi-dimensional; the first input column is the
// plot abscissa.
func BestPrediction(s *model.TrainState, path string) error {
	if s.XTest == nil || len(s.BestYPred) == 0 {
		return errors.New("no best predictions recorded, train with validation first")
	}
	x, err := column(s.XTest, 0)
	if err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = "Best prediction"
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"

	colorIdx := 0
	for i, pred := range s.BestYPred {
		yTrue, err := column(s.YTest[i], 0)
		if err != nil {
			return err
		}
		yPred, err := column(pred, 0)
		if err != nil {
			return err
		}

		truth, err := plotter.NewScatter(sortedXYs(x, yTrue))
		if err != nil {
			return errors.Wrap(err, "plotting true targets")
		}
		truth.Color = plotutil.Color(colorIdx)
		p.Add(truth)
		p.Legend.Add("y_true", truth)
		colorIdx++

		line, err := plotter.NewLine(sortedXYs(x, yPred))
		if err != nil {
			return errors.Wrap(err, "plotting predictions")
		}
		line.Color = plotutil.Color(colorIdx)
		p.Add(line)
		p.Legend.Add("y_pred", line)
		colorIdx++

		if i < len(s.BestYStd) && s.BestYStd[i] != nil {
			yStd, err := column(s.BestYStd[i], 0)
			if err != nil {
				return err
			}
			for _, sign := range []float64{2, -2} {
				band := make([]float64, len(yPred))
				for j := range band {
					band[j] = yPred[j] + sign*yStd[j]
				}
				edge, err := plotter.NewLine(sortedXYs(x, band))
				if err != nil {
					return errors.Wrap(err, "plotting uncertainty band")
				}
				edge.Color = plotutil.Color(colorIdx)
				edge.Dashes = plotutil.Dashes(1)
				p.Add(edge)
			}
			p.Legend.Add("y_pred ± 2σ", line)
			colorIdx++
		}
	}
	p.Legend.Top = true
	return errors.Wrapf(p.Save(8*vg.Inch, 5*vg.Inch, path), "saving prediction plot to %q", path)
}

// positiveXYs builds the plot points of one curve, dropping non-positive
// values that a logarithmic axis cannot show.
func positiveXYs(steps []int, values []float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(steps))
	for i, step := range steps {
		if values[i] <= 0 {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(step), Y: values[i]})
	}
	return pts
}

// sortedXYs pairs x with y and sorts by x, so line plots do not zigzag over
// unsorted test examples.
func sortedXYs(x, y []float64) plotter.XYs {
	pts := make(plotter.XYs, len(x))
	for i := range x {
		pts[i] = plotter.XY{X: x[i], Y: y[i]}
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i].X < pts[j].X })
	return pts
}

// column extracts one column of a row-major rank-2 tensor (or the whole of a
// rank-1 tensor) as float64.
func column(t *tensors.Tensor, col int) ([]float64, error) {
	rows := t.Shape().Dimensions[0]
	cols := t.Shape().Size() / rows
	if col >= cols {
		return nil, errors.Errorf("column %d out of range, tensor has %d columns", col, cols)
	}
	out := make([]float64, rows)
	err := tensors.ConstFlatData(t, func(flat []float64) {
		for i := range rows {
			out[i] = flat[i*cols+col]
		}
	})
	return out, errors.WithStack(err)
}
