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

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	gomlxopt "github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/pkg/errors"
)

const (
	// DecayInverseTime selects lr0 / (1 + rate*step/steps).
	DecayInverseTime = "inverse time"

	// DecayCosine selects the cosine decay to alpha*lr0 over steps.
	DecayCosine = "cosine"

	// scheduleScope holds the schedule's own step counter, distinct from the
	// harness step and from the optimizers' global step.
	scheduleScope = "decay_schedule"
)

// Decay describes a learning-rate decay schedule: Kind is one of
// DecayInverseTime or DecayCosine, Steps the decay step count and Rate the
// decay rate (for DecayCosine it is the final fraction alpha of the base
// learning rate).
type Decay struct {
	Kind  string
	Steps int
	Rate  float64
}

// InverseTimeDecay builds an "inverse time" Decay spec.
func InverseTimeDecay(steps int, rate float64) *Decay {
	return &Decay{Kind: DecayInverseTime, Steps: steps, Rate: rate}
}

// CosineDecay builds a "cosine" Decay spec with final fraction alpha.
func CosineDecay(steps int, alpha float64) *Decay {
	return &Decay{Kind: DecayCosine, Steps: steps, Rate: alpha}
}

// scheduled wraps a stochastic optimizer and sets the learning-rate variable
// from the decay schedule before delegating the update. The base optimizer
// reads the learning rate through its ValueGraph, so it observes the
// scheduled value within the same graph.
type scheduled struct {
	base      Interface
	decay     Decay
	initialLR float64
}

func newScheduled(base Interface, decay Decay, initialLR float64) (Interface, error) {
	switch decay.Kind {
	case DecayInverseTime, DecayCosine:
	default:
		return nil, errors.Wrapf(ErrUnknownDecay, "%q", decay.Kind)
	}
	if decay.Steps <= 0 {
		return nil, errors.Wrapf(ErrUnknownDecay, "%q requires a positive decay step count, got %d",
			decay.Kind, decay.Steps)
	}
	return &scheduled{base: base, decay: decay, initialLR: initialLR}, nil
}

// UpdateGraph implements Interface.
func (s *scheduled) UpdateGraph(ctx *context.Context, g *Graph, loss *Node) {
	dtype := loss.DType()

	// The schedule keeps its own monotonic step counter.
	step := gomlxopt.IncrementGlobalStepGraph(ctx.In(gomlxopt.Scope).In(scheduleScope), g, dtype)
	step = MinusOne(step) // Counting starts at 1.

	var lr *Node
	switch s.decay.Kind {
	case DecayInverseTime:
		// lr0 / (1 + rate * step/steps)
		denom := OnePlus(MulScalar(DivScalar(step, float64(s.decay.Steps)), s.decay.Rate))
		lr = Div(Scalar(g, dtype, s.initialLR), denom)
	case DecayCosine:
		// lr0 * ((1-alpha) * (1+cos(pi*min(step,steps)/steps))/2 + alpha)
		frac := DivScalar(step, float64(s.decay.Steps))
		frac = Min(frac, OnesLike(frac))
		cosine := Cos(MulScalar(frac, math.Pi))
		decayed := DivScalar(OnePlus(cosine), 2)
		alpha := s.decay.Rate
		decayed = AddScalar(MulScalar(decayed, 1-alpha), alpha)
		lr = MulScalar(decayed, s.initialLR)
	}

	lrVar := gomlxopt.LearningRateVarWithValue(ctx, dtype, s.initialLR)
	lrVar.SetValueGraph(lr)

	s.base.UpdateGraph(ctx, g, loss)
}

// Clear implements Interface.
func (s *scheduled) Clear(ctx *context.Context) error {
	return s.base.Clear(ctx)
}
