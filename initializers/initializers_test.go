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

package initializers

import (
	"math/rand/v2"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestGetUnknown(t *testing.T) {
	ctx := context.New()
	for _, name := range []string{"zeros", "He normal", "He uniform", "LeCun normal",
		"LeCun uniform", "Glorot normal", "Glorot uniform", "Orthogonal"} {
		init, err := Get(ctx, name)
		require.NoErrorf(t, err, "initializer %q", name)
		require.NotNil(t, init)
	}

	_, err := Get(ctx, "made-up")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownInitializer))

	_, err = Get(ctx, 3.14)
	require.Error(t, err)
}

func TestFans(t *testing.T) {
	in, out := fans(shapes.Make(dtypes.Float64, 10, 4))
	assert.Equal(t, 10.0, in)
	assert.Equal(t, 4.0, out)

	in, out = fans(shapes.Make(dtypes.Float64, 3, 10, 4))
	assert.Equal(t, 30.0, in)
	assert.Equal(t, 4.0, out)

	in, out = fans(shapes.Make(dtypes.Float64, 5))
	assert.Equal(t, 5.0, in)
	assert.Equal(t, 5.0, out)

	in, out = fans(shapes.Make(dtypes.Float64))
	assert.Equal(t, 1.0, in)
	assert.Equal(t, 1.0, out)
}

func TestOrthogonalMatrix(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for _, dims := range [][2]int{{8, 4}, {4, 8}, {6, 6}} {
		rows, cols := dims[0], dims[1]
		flat := orthogonalMatrix(rng, rows, cols, 1.0)
		require.Len(t, flat, rows*cols)

		// Q^T Q (or Q Q^T for wide matrices) must be the identity.
		q := mat.NewDense(rows, cols, flat)
		var gram mat.Dense
		if rows >= cols {
			gram.Mul(q.T(), q)
		} else {
			gram.Mul(q, q.T())
		}
		n, _ := gram.Dims()
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				want := 0.0
				if i == j {
					want = 1.0
				}
				assert.InDeltaf(t, want, gram.At(i, j), 1e-10, "gram[%d,%d] for %dx%d", i, j, rows, cols)
			}
		}
	}
}
