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

// Package initializers provides weight initializers for network variables,
// selectable by name.
//
// The returned values are GoMLX context.VariableInitializer functions, so
// they plug directly into Context.WithInitializer. The variance-scaling
// family (He, LeCun, Glorot) scales by the fan of the variable shape; the
// random draws go through the context's random state, so they are
// reproducible under Context.RngStateFromSeed.
package initializers

import (
	"math"
	"math/rand/v2"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrUnknownInitializer is returned by Get for names not in the registry.
var ErrUnknownInitializer = errors.New("unknown initializer")

// Get resolves an identifier to a variable initializer: a string is looked
// up by name (unknown names return ErrUnknownInitializer) and a
// context.VariableInitializer passes through unchanged.
//
// Known names: "zeros", "He normal", "He uniform", "LeCun normal",
// "LeCun uniform", "Glorot normal", "Glorot uniform", "Orthogonal".
func Get(ctx *context.Context, identifier any) (context.VariableInitializer, error) {
	switch v := identifier.(type) {
	case string:
		switch v {
		case "zeros":
			return func(g *Graph, shape shapes.Shape) *Node { return Zeros(g, shape) }, nil
		case "He normal":
			return VarianceScalingNormal(ctx, 2.0, fanIn), nil
		case "He uniform":
			return VarianceScalingUniform(ctx, 2.0, fanIn), nil
		case "LeCun normal":
			return VarianceScalingNormal(ctx, 1.0, fanIn), nil
		case "LeCun uniform":
			return VarianceScalingUniform(ctx, 1.0, fanIn), nil
		case "Glorot normal":
			return VarianceScalingNormal(ctx, 1.0, fanAvg), nil
		case "Glorot uniform":
			return VarianceScalingUniform(ctx, 1.0, fanAvg), nil
		case "Orthogonal":
			return OrthogonalFn(1.0, 42), nil
		}
		return nil, errors.Wrapf(ErrUnknownInitializer, "%q", v)
	case context.VariableInitializer:
		return v, nil
	default:
		return nil, errors.Wrapf(ErrUnknownInitializer,
			"cannot interpret initializer identifier %v (%T)", identifier, identifier)
	}
}

// fanMode selects the denominator used by variance scaling.
type fanMode int

const (
	fanIn fanMode = iota
	fanAvg
)

// fans computes fan-in and fan-out of a variable shape: the last axis is the
// output dimension, everything before it feeds in. Scalars count as fan 1.
func fans(shape shapes.Shape) (in, out float64) {
	dims := shape.Dimensions
	if len(dims) == 0 {
		return 1, 1
	}
	if len(dims) == 1 {
		return float64(dims[0]), float64(dims[0])
	}
	out = float64(dims[len(dims)-1])
	in = 1
	for _, d := range dims[:len(dims)-1] {
		in *= float64(d)
	}
	return in, out
}

func (m fanMode) denominator(shape shapes.Shape) float64 {
	in, out := fans(shape)
	if m == fanAvg {
		return (in + out) / 2
	}
	return in
}

// VarianceScalingNormal draws from N(0, scale/fan). With scale=2 and fan-in
// it is the "He normal" initializer; scale=1 fan-in is "LeCun normal";
// scale=1 fan-average is "Glorot normal".
func VarianceScalingNormal(ctx *context.Context, scale float64, mode fanMode) context.VariableInitializer {
	return func(g *Graph, shape shapes.Shape) *Node {
		stddev := math.Sqrt(scale / mode.denominator(shape))
		return MulScalar(ctx.RandomNormal(g, shape), stddev)
	}
}

// VarianceScalingUniform draws from U(-limit, limit) with
// limit = sqrt(3*scale/fan), preserving the same variance as the normal
// variant.
func VarianceScalingUniform(ctx *context.Context, scale float64, mode fanMode) context.VariableInitializer {
	return func(g *Graph, shape shapes.Shape) *Node {
		limit := math.Sqrt(3 * scale / mode.denominator(shape))
		u := ctx.RandomUniform(g, shape) // in [0, 1)
		return AddScalar(MulScalar(u, 2*limit), -limit)
	}
}

// OrthogonalFn initializes 2D (or higher rank, flattened to 2D) variables
// with a (semi-)orthogonal matrix scaled by gain, computed from the QR
// factorization of a random normal matrix. The factorization runs on the
// host and the result enters the graph as a constant.
func OrthogonalFn(gain float64, seed uint64) context.VariableInitializer {
	rng := rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
	return func(g *Graph, shape shapes.Shape) *Node {
		dims := shape.Dimensions
		size := shape.Size()
		cols := 1
		if len(dims) > 0 {
			cols = dims[len(dims)-1]
		}
		rows := size / cols
		flat := orthogonalMatrix(rng, rows, cols, gain)
		t := tensors.FromFlatDataAndDimensions(flat, dims...)
		n := Const(g, t)
		if n.DType() != shape.DType {
			n = ConvertDType(n, shape.DType)
		}
		return n
	}
}

// orthogonalMatrix returns a rows x cols semi-orthogonal matrix in row-major
// flat form.
func orthogonalMatrix(rng *rand.Rand, rows, cols int, gain float64) []float64 {
	// QR needs rows >= cols; build the transpose otherwise.
	r, c := rows, cols
	transposed := r < c
	if transposed {
		r, c = c, r
	}
	a := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			a.Set(i, j, rng.NormFloat64())
		}
	}
	var qr mat.QR
	qr.Factorize(a)
	var q mat.Dense
	qr.QTo(&q)

	flat := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			var v float64
			if transposed {
				v = q.At(j, i)
			} else {
				v = q.At(i, j)
			}
			flat[i*cols+j] = gain * v
		}
	}
	return flat
}
