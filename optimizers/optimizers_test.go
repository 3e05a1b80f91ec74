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

package optimizers

import (
	"math"
	"testing"

	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/simplego"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/initializers"
	gomlxopt "github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/optimize"
)

func TestByName(t *testing.T) {
	for _, name := range []string{"sgd", "sgdnesterov", "adagrad", "adadelta", "rmsprop", "adam"} {
		opt, err := ByName(name, 0.01, nil)
		require.NoErrorf(t, err, "optimizer %q", name)
		require.NotNil(t, opt)
	}

	_, err := ByName("made-up", 0.01, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownOptimizer))

	// Batch methods are not stochastic optimizers.
	_, err = ByName("L-BFGS-B", 0.01, nil)
	require.Error(t, err)
}

func TestByNameWithDecay(t *testing.T) {
	opt, err := ByName("sgd", 0.1, InverseTimeDecay(1000, 0.5))
	require.NoError(t, err)
	require.NotNil(t, opt)

	opt, err = ByName("adam", 0.001, CosineDecay(5000, 0.0))
	require.NoError(t, err)
	require.NotNil(t, opt)

	_, err = ByName("sgd", 0.1, &Decay{Kind: "exponential", Steps: 1000, Rate: 0.5})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownDecay))

	_, err = ByName("sgd", 0.1, &Decay{Kind: DecayInverseTime, Steps: 0, Rate: 0.5})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownDecay))
}

func TestBatchMethodNames(t *testing.T) {
	for _, name := range []string{"BFGS", "L-BFGS-B", "Nelder-Mead", "Powell", "CG", "Newton-CG"} {
		assert.Truef(t, IsBatchMethod(name), "method %q", name)
		m, err := BatchMethod(name)
		require.NoErrorf(t, err, "method %q", name)
		require.NotNil(t, m)
	}

	assert.False(t, IsBatchMethod("adam"))
	_, err := BatchMethod("adam")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownOptimizer))
}

func TestScheduledDecay(t *testing.T) {
	backend := backends.MustNew()
	defer backend.Finalize()

	const lr0 = 0.1
	const steps = 4
	testCases := []struct {
		name  string
		decay *Decay
		want  func(step float64) float64
	}{
		{"inverse time", InverseTimeDecay(steps, 2.0), func(s float64) float64 {
			return lr0 / (1 + 2.0*s/steps)
		}},
		{"cosine", CosineDecay(steps, 0.5), func(s float64) float64 {
			frac := math.Min(s/steps, 1)
			return lr0 * ((1-0.5)*(1+math.Cos(math.Pi*frac))/2 + 0.5)
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opt, err := ByName("sgd", lr0, tc.decay)
			require.NoError(t, err)

			ctx := context.New()
			exec, err := context.NewExecAny(backend, ctx,
				func(ctx *context.Context, g *Graph) *Node {
					w := ctx.WithInitializer(initializers.One).
						VariableWithShape("w", shapes.Make(dtypes.Float64))
					loss := Square(w.ValueGraph(g))
					opt.UpdateGraph(ctx, g, loss)
					return loss
				})
			require.NoError(t, err)
			defer exec.Finalize()

			// The schedule counter is zero-based: the k-th update runs at
			// step k-1, so the very first one uses the base learning rate.
			// Past the decay horizon the cosine curve stays at alpha*lr0.
			for step := 0; step < 2*steps; step++ {
				_, err := exec.Exec()
				require.NoError(t, err)
				lrVar := ctx.GetVariableByScopeAndName(
					context.ScopeSeparator+gomlxopt.Scope, gomlxopt.ParamLearningRate)
				require.NotNil(t, lrVar)
				got := tensors.ToScalar[float64](lrVar.MustValue())
				assert.InDeltaf(t, tc.want(float64(step)), got, 1e-12, "step %d", step)
			}
		})
	}
}

// The gonum bridge itself is testable without a graph: quadratic bowl with
// analytic gradient through the same callback path Minimize uses.
func TestMinimizeQuadratic(t *testing.T) {
	x := []float64{3, -2}
	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			return (p[0]-1)*(p[0]-1) + (p[1]+2)*(p[1]+2)
		},
		Grad: func(dst, p []float64) {
			dst[0] = 2 * (p[0] - 1)
			dst[1] = 2 * (p[1] + 2)
		},
	}
	m, err := BatchMethod("BFGS")
	require.NoError(t, err)
	result, err := optimize.Minimize(problem, x, nil, m)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, result.X[0], 1e-6)
	assert.InDelta(t, -2.0, result.X[1], 1e-6)
}
