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
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/optimize"
)

// batchMethods maps the batch-method names to gonum/optimize method
// constructors. "Powell" has no gonum implementation, so it runs as
// Nelder-Mead, the closest derivative-free direct-search method.
// "Newton-CG" runs as Newton with a finite-difference Hessian.
var batchMethods = map[string]func() optimize.Method{
	"BFGS":        func() optimize.Method { return &optimize.BFGS{} },
	"L-BFGS-B":    func() optimize.Method { return &optimize.LBFGS{} },
	"Nelder-Mead": func() optimize.Method { return &optimize.NelderMead{} },
	"Powell":      func() optimize.Method { return &optimize.NelderMead{} },
	"CG":          func() optimize.Method { return &optimize.CG{} },
	"Newton-CG":   func() optimize.Method { return &optimize.Newton{} },
}

// IsBatchMethod reports whether name selects a batch method rather than a
// stochastic optimizer.
func IsBatchMethod(name string) bool {
	_, found := batchMethods[name]
	return found
}

// BatchMethod builds the gonum/optimize method for the given name. Valid
// names: "BFGS", "L-BFGS-B", "Nelder-Mead", "Powell", "CG", "Newton-CG".
func BatchMethod(name string) (optimize.Method, error) {
	builder, found := batchMethods[name]
	if !found {
		return nil, errors.Wrapf(ErrUnknownOptimizer, "%q is not a batch method", name)
	}
	return builder(), nil
}

// TrainableVariables returns the trainable variables of ctx in use by graph
// g, in the iteration order of the context. This is the same order in which
// Context.BuildTrainableVariablesGradientsGraph returns gradients, so packed
// parameter vectors and gradient vectors line up.
func TrainableVariables(ctx *context.Context, g *Graph) []*context.Variable {
	var vars []*context.Variable
	for v := range ctx.IterVariables() {
		if v.Trainable && v.InUseByGraph(g) {
			vars = append(vars, v)
		}
	}
	return vars
}

// PackVariables flattens the current values of vars into a single float64
// vector, concatenated in order.
func PackVariables(vars []*context.Variable) ([]float64, error) {
	total := 0
	for _, v := range vars {
		total += v.Shape().Size()
	}
	x := make([]float64, 0, total)
	for _, v := range vars {
		value, err := v.Value()
		if err != nil {
			return nil, err
		}
		err = tensors.ConstFlatData(value, func(flat []float64) {
			x = append(x, flat...)
		})
		if err != nil {
			return nil, errors.Wrapf(err, "packing variable %q", v.ScopeAndName())
		}
	}
	return x, nil
}

// UnpackVariables writes the packed vector x back into vars, slicing it in
// the same order PackVariables concatenates. It returns an error if the
// length of x does not match the total variable size.
func UnpackVariables(vars []*context.Variable, x []float64) error {
	offset := 0
	for _, v := range vars {
		size := v.Shape().Size()
		if offset+size > len(x) {
			return errors.Errorf("packed parameter vector too short: got %d values, need %d",
				len(x), offset+size)
		}
		flat := make([]float64, size)
		copy(flat, x[offset:offset+size])
		if err := v.SetValue(tensors.FromFlatDataAndDimensions(flat, v.Shape().Dimensions...)); err != nil {
			return errors.Wrapf(err, "unpacking variable %q", v.ScopeAndName())
		}
		offset += size
	}
	if offset != len(x) {
		return errors.Errorf("packed parameter vector too long: got %d values, need %d", len(x), offset)
	}
	return nil
}

// LossAndGradFn evaluates the loss and its gradient (packed in variable
// order) at the current variable values.
type LossAndGradFn func() (loss float64, grad []float64, err error)

// Minimize runs the named batch method over the given variables, driving
// gonum/optimize with lossAndGrad. The variables are left holding the best
// parameters found. It returns the final loss.
//
// Methods that need derivatives gonum cannot get from lossAndGrad (the
// Hessian for "Newton-CG") are approximated by finite differences.
func Minimize(method string, vars []*context.Variable, lossAndGrad LossAndGradFn, maxIterations int) (float64, error) {
	m, err := BatchMethod(method)
	if err != nil {
		return 0, err
	}
	if len(vars) == 0 {
		return 0, errors.New("no trainable variables to optimize")
	}

	// Errors from the executable surface through evalErr: gonum's Problem
	// functions cannot return one.
	var evalErr error
	eval := func(x []float64) (float64, []float64) {
		if evalErr != nil {
			return 0, nil
		}
		if err := UnpackVariables(vars, x); err != nil {
			evalErr = err
			return 0, nil
		}
		loss, grad, err := lossAndGrad()
		if err != nil {
			evalErr = err
			return 0, nil
		}
		return loss, grad
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			loss, _ := eval(x)
			return loss
		},
		Grad: func(dst, x []float64) {
			_, grad := eval(x)
			if grad != nil {
				copy(dst, grad)
			}
		},
	}

	settings := &optimize.Settings{}
	if maxIterations > 0 {
		settings.MajorIterations = maxIterations
	}

	x0, err := PackVariables(vars)
	if err != nil {
		return 0, err
	}
	result, err := optimize.Minimize(problem, x0, settings, m)
	if evalErr != nil {
		return 0, evalErr
	}
	if err != nil {
		return 0, errors.Wrapf(err, "batch optimization with %q failed", method)
	}
	if err := UnpackVariables(vars, result.X); err != nil {
		return 0, err
	}
	return result.F, nil
}
