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

package metrics

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	m, err := Get("MSE")
	require.NoError(t, err)
	assert.InDelta(t, 0.25, m([]float64{0, 0}, []float64{0.5, 0.5}), 1e-12)

	_, err = Get("made-up")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownMetric))

	// A callable passes through unchanged.
	custom := func(yTrue, yPred []float64) float64 { return 7 }
	m, err = Get(custom)
	require.NoError(t, err)
	assert.Equal(t, 7.0, m(nil, nil))

	_, err = Get(42)
	require.Error(t, err)
}

func TestL2RelativeError(t *testing.T) {
	yTrue := []float64{3, 4}
	assert.Equal(t, 0.0, L2RelativeError(yTrue, yTrue))

	// ||(3,4)-(0,0)|| / ||(3,4)|| == 1.
	assert.InDelta(t, 1.0, L2RelativeError(yTrue, []float64{0, 0}), 1e-12)
}

func TestElementwiseMetrics(t *testing.T) {
	yTrue := []float64{1, 2, 4}
	yPred := []float64{1, 1, 2}
	assert.InDelta(t, 5.0/3.0, MeanSquaredError(yTrue, yPred), 1e-12)
	assert.InDelta(t, 1.0, MeanAbsoluteError(yTrue, yPred), 1e-12)
	assert.InDelta(t, 100*(0+0.5+0.5)/3, MeanAbsolutePercentageError(yTrue, yPred), 1e-12)
	assert.InDelta(t, 50.0, MaxAbsolutePercentageError(yTrue, yPred), 1e-12)
}

func TestAccuracy(t *testing.T) {
	yTrue := []float64{0, 1, 1, 0}
	yPred := []float64{0.2, 0.9, 0.4, 0.1}
	assert.InDelta(t, 0.75, Accuracy(yTrue, yPred), 1e-12)
}
