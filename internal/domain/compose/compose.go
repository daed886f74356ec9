// Package compose combines normalized components into a bounded composite
// using a rule-set weight vector.
package compose

import (
	"math"
	"sort"

	"github.com/reputor/reputor/internal/domain/model"
	"github.com/reputor/reputor/internal/domain/normalize"
	"github.com/reputor/reputor/internal/domain/rules"
)

// weightTotal is the fixed total every effective weight vector sums to.
const weightTotal = 100.0

// Result carries the composite and its per-component breakdown. Breakdown
// keys are stable identifiers so consumers can render them without parsing.
type Result struct {
	Composite float64
	Breakdown map[string]float64
}

// Compose applies the weight vector for one score kind to the components:
//
//	composite = clamp((Σ componentᵢ·weightᵢ/100 − fraudPenalty) · rehireMultiplier, 0, 100)
//
// Unnormalized weight inputs are re-scaled proportionally to sum exactly
// 100 before use; this is a required step, not an optional convenience.
// The fraud penalty and rehire multiplier apply only to kinds that carry
// the cross-cutting adjustments (see rules.CarriesAdjustments); exposure
// driven kinds such as risk count those facts through their components.
// The math involves no clock and no randomness, so identical inputs under
// an identical rule-set version always produce an identical composite.
func Compose(c normalize.Components, kind model.ScoreKind, weights map[string]float64) Result {
	effective := Renormalize(weights)

	breakdown := make(map[string]float64, len(effective)+2)
	weighted := 0.0
	for _, key := range sortedKeys(effective) {
		contribution := c.Values[key] * effective[key] / weightTotal
		breakdown[key] = contribution
		weighted += contribution
	}

	composite := weighted
	if rules.CarriesAdjustments(kind) {
		composite = (weighted - c.FraudPenalty) * c.RehireMultiplier
		if c.FraudPenalty != 0 {
			breakdown[rules.BreakdownFraudPenalty] = -c.FraudPenalty
		}
		breakdown[rules.BreakdownRehireMultiplier] = c.RehireMultiplier
	}
	composite = math.Max(normalize.MinScore, math.Min(normalize.MaxScore, composite))

	return Result{Composite: composite, Breakdown: breakdown}
}

// Renormalize scales a weight vector proportionally so it sums to exactly
// 100. Zero-valued entries are preserved; a vector with a non-positive sum
// returns an empty map (validation upstream keeps that out of real runs).
func Renormalize(weights map[string]float64) map[string]float64 {
	sum := 0.0
	for _, w := range weights {
		if w > 0 {
			sum += w
		}
	}
	if sum <= 0 {
		return map[string]float64{}
	}
	out := make(map[string]float64, len(weights))
	for key, w := range weights {
		if w < 0 {
			w = 0
		}
		out[key] = w / sum * weightTotal
	}
	return out
}

// sortedKeys keeps iteration order deterministic; float addition order
// matters for bit-exact reproducibility across runs.
func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
