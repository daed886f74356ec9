// Package baseline blends per-scope behavioral baselines and measures a
// subject's deviation from the blend.
package baseline

import (
	"math"
	"time"

	"github.com/reputor/reputor/internal/domain/model"
	"github.com/reputor/reputor/internal/domain/normalize"
	"github.com/reputor/reputor/internal/domain/rules"
)

// Scoped pairs a baseline with whether its scope actually had data.
type Scoped struct {
	Baseline model.BehavioralBaseline
	Present  bool
}

// Inputs carries the per-scope baselines handed to Blend.
type Inputs struct {
	Role        Scoped
	SubIndustry Scoped
	Industry    Scoped
	Employer    Scoped
}

// Blend combines the present scopes' baselines into one hybrid profile.
// Each of the eight dimensions blends independently under the same weight
// vector; weights for absent scopes are dropped and the remainder is
// re-normalized proportionally. The second return is false when no scope
// had data, in which case deviation is unknowable.
func Blend(weights rules.ScopeWeights, in Inputs) (model.BehavioralVector, bool) {
	type part struct {
		weight float64
		vec    model.BehavioralVector
	}
	parts := make([]part, 0, 4)
	if in.Role.Present && weights.Role > 0 {
		parts = append(parts, part{weights.Role, in.Role.Baseline.Vector})
	}
	if in.SubIndustry.Present && weights.SubIndustry > 0 {
		parts = append(parts, part{weights.SubIndustry, in.SubIndustry.Baseline.Vector})
	}
	if in.Industry.Present && weights.Industry > 0 {
		parts = append(parts, part{weights.Industry, in.Industry.Baseline.Vector})
	}
	if in.Employer.Present && weights.Employer > 0 {
		parts = append(parts, part{weights.Employer, in.Employer.Baseline.Vector})
	}

	if len(parts) == 0 {
		return model.BehavioralVector{}, false
	}

	sum := 0.0
	for _, p := range parts {
		sum += p.weight
	}

	var dims [model.BehavioralDimensions]float64
	for _, p := range parts {
		pd := p.vec.Dimensions()
		for i := range dims {
			dims[i] += pd[i] * p.weight / sum
		}
	}
	for i := range dims {
		dims[i] = normalize.Clamp(dims[i])
	}
	return model.FromDimensions(dims), true
}

// Deviation scores how closely a subject tracks the blended baseline:
// 100 − mean(|per-dimension difference|), clamped. A subject identical to
// the baseline scores 100; maximal divergence on every dimension scores 0.
func Deviation(subject, blended model.BehavioralVector) float64 {
	sd := subject.Dimensions()
	bd := blended.Dimensions()
	total := 0.0
	for i := range sd {
		total += math.Abs(sd[i] - bd[i])
	}
	return normalize.Clamp(normalize.MaxScore - total/float64(model.BehavioralDimensions))
}

// Compute averages the behavioral vectors of a scope's members into its
// baseline. Called when the scope's membership changes. Returns false for
// an empty membership.
func Compute(scope model.ScopeKind, scopeID string, vectors []model.BehavioralVector, now time.Time) (model.BehavioralBaseline, bool) {
	if len(vectors) == 0 {
		return model.BehavioralBaseline{}, false
	}
	var dims [model.BehavioralDimensions]float64
	for _, v := range vectors {
		vd := v.Dimensions()
		for i := range dims {
			dims[i] += vd[i]
		}
	}
	n := float64(len(vectors))
	for i := range dims {
		dims[i] = normalize.Clamp(dims[i] / n)
	}
	return model.BehavioralBaseline{
		Scope:       scope,
		ScopeID:     scopeID,
		Vector:      model.FromDimensions(dims),
		SampleCount: len(vectors),
		ComputedAt:  now,
	}, true
}
