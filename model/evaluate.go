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
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// uncertaintySamples is the number of stochastic forward passes averaged per
// Monte Carlo dropout evaluation.
const uncertaintySamples = 1000

// test runs one full evaluation: a deterministic pass over the current
// training minibatch, a test-split pass (deterministic, or averaged over
// dropout samples when uncertainty is on), the configured metrics and the
// best-snapshot update. Results land in m.state.
func (m *Model) test(sess *session, uncertainty bool) error {
	numOutputs := m.net.Targets().NumOutputs()

	results, err := sess.evalTrain.Exec(feedArgs(m.state.XTrain, m.state.YTrain)...)
	if err != nil {
		return errors.Wrap(err, "evaluating train batch")
	}
	numComps := len(results) - numOutputs
	m.state.LossTrain = scalarValues(results[:numComps])
	m.state.YPredTrain = results[numComps:]

	if uncertainty {
		err = m.testWithUncertainty(sess, numComps)
	} else {
		var results []*tensors.Tensor
		results, err = sess.evalTest.Exec(feedArgs(m.state.XTest, m.state.YTest)...)
		if err == nil {
			m.state.LossTest = scalarValues(results[:numComps])
			m.state.YPredTest = results[numComps:]
			m.state.YStdTest = nil
		}
	}
	if err != nil {
		return err
	}

	// Metrics are flattened metric-major: for each metric, one value per
	// output component. A fresh slice, the previous one may live on as the
	// best snapshot.
	metricsTest := make([]float64, 0, len(m.compiled.metrics)*numOutputs)
	for _, metric := range m.compiled.metrics {
		for i := range numOutputs {
			yTrue := tensors.MustCopyFlatData[float64](m.state.YTest[i])
			yPred := tensors.MustCopyFlatData[float64](m.state.YPredTest[i])
			metricsTest = append(metricsTest, metric(yTrue, yPred))
		}
	}
	m.state.MetricsTest = metricsTest

	if math.IsNaN(floats.Sum(m.state.LossTrain)) {
		return errors.New("training loss is NaN")
	}
	m.state.updateBest()
	return nil
}

// testWithUncertainty estimates the test predictions by Monte Carlo dropout:
// the mean over stochastic passes becomes the prediction, the standard
// deviation the uncertainty, and the loss components are averaged the same
// way.
func (m *Model) testWithUncertainty(sess *session, numComps int) error {
	args := feedArgs(m.state.XTest, m.state.YTest)

	lossSum := make([]float64, numComps)
	var predSum, predSumSq [][]float64
	var dims [][]int
	for pass := range uncertaintySamples {
		results, err := sess.evalTestDropout.Exec(args...)
		if err != nil {
			return errors.Wrapf(err, "dropout evaluation pass %d", pass)
		}
		floats.Add(lossSum, scalarValues(results[:numComps]))
		outputs := results[numComps:]
		if predSum == nil {
			predSum = make([][]float64, len(outputs))
			predSumSq = make([][]float64, len(outputs))
			dims = make([][]int, len(outputs))
			for i, t := range outputs {
				predSum[i] = make([]float64, t.Shape().Size())
				predSumSq[i] = make([]float64, t.Shape().Size())
				dims[i] = t.Shape().Dimensions
			}
		}
		for i, t := range outputs {
			err := tensors.ConstFlatData(t, func(flat []float64) {
				for j, v := range flat {
					predSum[i][j] += v
					predSumSq[i][j] += v * v
				}
			})
			if err != nil {
				return errors.Wrap(err, "reading dropout evaluation outputs")
			}
		}
	}

	floats.Scale(1.0/uncertaintySamples, lossSum)
	m.state.LossTest = lossSum
	m.state.YPredTest = make([]*tensors.Tensor, len(predSum))
	m.state.YStdTest = make([]*tensors.Tensor, len(predSum))
	for i := range predSum {
		mean := make([]float64, len(predSum[i]))
		std := make([]float64, len(predSum[i]))
		for j := range predSum[i] {
			mean[j] = predSum[i][j] / uncertaintySamples
			variance := predSumSq[i][j]/uncertaintySamples - mean[j]*mean[j]
			std[j] = math.Sqrt(math.Max(0, variance))
		}
		m.state.YPredTest[i] = tensors.FromFlatDataAndDimensions(mean, dims[i]...)
		m.state.YStdTest[i] = tensors.FromFlatDataAndDimensions(std, dims[i]...)
	}
	return nil
}

func scalarValues(ts []*tensors.Tensor) []float64 {
	out := make([]float64, len(ts))
	for i, t := range ts {
		out[i] = tensors.ToScalar[float64](t)
	}
	return out
}
