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

// Package optimizers selects and builds the optimizers used by the training
// harness.
//
// Two families exist:
//
//   - Stochastic gradient-based optimizers ("sgd", "sgdnesterov", "adagrad",
//     "adadelta", "rmsprop", "adam"), which take one update per minibatch.
//     They all implement the GoMLX optimizers.Interface, so the harness
//     builds their update into the training-step graph. Adam and RMSProp are
//     GoMLX's own implementations; the others are provided here.
//   - Batch quasi-Newton / line-search methods ("BFGS", "L-BFGS-B",
//     "Nelder-Mead", "Powell", "CG", "Newton-CG"), which run to convergence
//     against one fixed minibatch through gonum/optimize (see batch.go).
//
// Learning-rate decay schedules ("inverse time", "cosine") wrap a stochastic
// optimizer and drive the learning-rate variable from their own step
// counter.
package optimizers

import (
	gomlxopt "github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/pkg/errors"
)

// Interface is the stochastic-optimizer contract, shared with GoMLX: the
// optimizer contributes its variable updates to the training-step graph.
type Interface = gomlxopt.Interface

var (
	// ErrUnknownOptimizer is returned for optimizer names in neither family.
	ErrUnknownOptimizer = errors.New("unknown optimizer")

	// ErrUnknownDecay is returned for decay-schedule kinds other than
	// "inverse time" and "cosine".
	ErrUnknownDecay = errors.New("unknown learning rate decay")
)

// ByName builds a stochastic optimizer from its name, learning rate and
// optional decay schedule. Hyperparameters other than the learning rate are
// fixed: Nesterov momentum 0.9, Adagrad learning rate 0.01 (the given lr is
// ignored), Adadelta defaults.
//
// Batch-method names (see IsBatchMethod) are not valid here; the harness
// routes them to the batch path before calling ByName.
func ByName(name string, lr float64, decay *Decay) (Interface, error) {
	var base Interface
	switch name {
	case "sgd":
		base = gomlxopt.StochasticGradientDescent().WithDecay(false).WithLearningRate(lr).Done()
	case "sgdnesterov":
		base = Momentum(lr, 0.9).Nesterov(true).Done()
	case "adagrad":
		base = AdaGrad(0.01).Done()
	case "adadelta":
		base = AdaDelta().Done()
	case "rmsprop":
		base = gomlxopt.RMSProp().LearningRate(lr).Done()
	case "adam":
		base = gomlxopt.Adam().LearningRate(lr).Done()
	default:
		return nil, errors.Wrapf(ErrUnknownOptimizer, "%q", name)
	}
	if decay == nil {
		return base, nil
	}
	return newScheduled(base, *decay, lr)
}
