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

// Package metrics implements the evaluation metrics reported during training,
// along with a registry to select them by name.
//
// Metrics run on the host, on flattened float64 views of the target and
// prediction tensors, once per validation point -- they are not part of any
// computation graph.
package metrics

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Metric computes a scalar quality measure from true and predicted values.
// Both slices have the same length (the flattened values of one output).
type Metric func(yTrue, yPred []float64) float64

// ErrUnknownMetric is returned by Get for names not in the registry.
var ErrUnknownMetric = errors.New("unknown metric")

// Known maps metric names to their implementations.
var Known = map[string]Metric{
	"l2 relative error":      L2RelativeError,
	"mean l2 relative error": MeanL2RelativeError,
	"MSE":                    MeanSquaredError,
	"MAE":                    MeanAbsoluteError,
	"MAPE":                   MeanAbsolutePercentageError,
	"max APE":                MaxAbsolutePercentageError,
	"accuracy":               Accuracy,
}

// Get resolves an identifier to a Metric: a string is looked up in Known
// (unknown names return ErrUnknownMetric), and a Metric value is passed
// through unchanged.
func Get(identifier any) (Metric, error) {
	switch v := identifier.(type) {
	case string:
		m, found := Known[v]
		if !found {
			return nil, errors.Wrapf(ErrUnknownMetric, "%q", v)
		}
		return m, nil
	case Metric:
		return v, nil
	case func(yTrue, yPred []float64) float64:
		return v, nil
	default:
		return nil, errors.Wrapf(ErrUnknownMetric, "cannot interpret metric identifier %v (%T)", identifier, identifier)
	}
}

// L2RelativeError returns ||yTrue-yPred||_2 / ||yTrue||_2.
func L2RelativeError(yTrue, yPred []float64) float64 {
	diff := make([]float64, len(yTrue))
	floats.SubTo(diff, yTrue, yPred)
	return floats.Norm(diff, 2) / floats.Norm(yTrue, 2)
}

// MeanL2RelativeError treats yTrue/yPred as flattened rows of scalars and
// returns the mean of the per-element relative errors.
func MeanL2RelativeError(yTrue, yPred []float64) float64 {
	var sum float64
	for i := range yTrue {
		sum += math.Abs(yTrue[i]-yPred[i]) / math.Abs(yTrue[i])
	}
	return sum / float64(len(yTrue))
}

// MeanSquaredError returns mean((yTrue-yPred)^2).
func MeanSquaredError(yTrue, yPred []float64) float64 {
	var sum float64
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		sum += d * d
	}
	return sum / float64(len(yTrue))
}

// MeanAbsoluteError returns mean(|yTrue-yPred|).
func MeanAbsoluteError(yTrue, yPred []float64) float64 {
	var sum float64
	for i := range yTrue {
		sum += math.Abs(yTrue[i] - yPred[i])
	}
	return sum / float64(len(yTrue))
}

// MeanAbsolutePercentageError returns 100 * mean(|yTrue-yPred| / |yTrue|).
func MeanAbsolutePercentageError(yTrue, yPred []float64) float64 {
	var sum float64
	for i := range yTrue {
		sum += math.Abs((yTrue[i] - yPred[i]) / yTrue[i])
	}
	return 100 * sum / float64(len(yTrue))
}

// MaxAbsolutePercentageError returns 100 * max(|yTrue-yPred| / |yTrue|).
func MaxAbsolutePercentageError(yTrue, yPred []float64) float64 {
	var maxAPE float64
	for i := range yTrue {
		ape := math.Abs((yTrue[i] - yPred[i]) / yTrue[i])
		if ape > maxAPE {
			maxAPE = ape
		}
	}
	return 100 * maxAPE
}

// Accuracy rounds predictions to the nearest integer and returns the fraction
// that matches the true labels.
func Accuracy(yTrue, yPred []float64) float64 {
	var hits int
	for i := range yTrue {
		if math.Round(yPred[i]) == yTrue[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(yTrue))
}
