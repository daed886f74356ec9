// Package normalize converts raw subject signals into bounded sub-scores.
//
// Every function here is pure: the reference time is an argument, never the
// wall clock, so identical inputs always normalize identically.
package normalize

import (
	"math"
	"time"

	"github.com/reputor/reputor/internal/domain/model"
	"github.com/reputor/reputor/internal/domain/rules"
)

// Score bounds shared across the engine.
const (
	MinScore = 0.0
	MaxScore = 100.0

	// NeutralScore is the documented neutral value used when a component
	// (or a whole computation) cannot be derived.
	NeutralScore = 50.0

	monthsPerYear = 12
	hoursPerDay   = 24
	daysPerYear   = 365.25
)

// Components is the ephemeral output of normalization. Values are clamped
// sub-scores keyed by component; the fraud penalty and rehire multiplier
// are carried separately because they apply after weighting, never as
// positive weights.
type Components struct {
	Values           map[string]float64
	FraudPenalty     float64
	RehireMultiplier float64
}

// Clamp bounds v into [MinScore, MaxScore].
func Clamp(v float64) float64 {
	return math.Max(MinScore, math.Min(MaxScore, v))
}

// clampTo bounds v into [0, cap].
func clampTo(v, cap float64) float64 {
	return math.Max(0, math.Min(cap, v))
}

// Signals maps raw facts into bounded components under cfg. The deviation
// score (from the baseline blender) is passed in pre-computed; hasBaseline
// is false when no baseline scope had data, which degrades the alignment
// component to neutral rather than zero.
func Signals(s model.SubjectSignals, cfg rules.Config, deviation float64, hasBaseline bool, now time.Time) Components {
	values := map[string]float64{
		rules.ComponentEmployment:        EmploymentStrength(s.VerifiedEmploymentCount, cfg),
		rules.ComponentTenure:            TenureStrength(s.Employments, cfg, now),
		rules.ComponentRating:            RatingStrength(s.ReferenceCount, s.AverageRating, cfg),
		rules.ComponentSourceDiversity:   SourceDiversity(s.DistinctSources, cfg),
		rules.ComponentReferenceVolume:   ReferenceVolume(s.ReferenceCount, cfg),
		rules.ComponentDisputeResolution: DisputeResolution(s.DisputeCount, s.DisputeResolvedCount),
		rules.ComponentFraudExposure:     FraudExposure(s.FraudFlagCount, cfg),
		rules.ComponentDisputeExposure:   DisputeExposure(s.DisputeCount, s.DisputeResolvedCount, cfg),
	}

	if hasBaseline && s.HasBehavioral {
		values[rules.ComponentBaselineAlignment] = Clamp(deviation)
		values[rules.ComponentBaselineDivergence] = Clamp(MaxScore - deviation)
	} else {
		// No baseline or no behavioral vector: alignment is unknowable,
		// so it degrades to neutral instead of counting as divergence.
		values[rules.ComponentBaselineAlignment] = NeutralScore
		values[rules.ComponentBaselineDivergence] = NeutralScore
	}

	return Components{
		Values:           values,
		FraudPenalty:     FraudPenalty(s.FraudFlagCount, cfg),
		RehireMultiplier: RehireMultiplier(s.RehireEligibleCount, cfg),
	}
}

// EmploymentStrength scores verified employment count: min(count*unit, cap).
func EmploymentStrength(verifiedCount int, cfg rules.Config) float64 {
	unit := cfg.Unit(rules.ComponentEmployment, 20)
	cap := cfg.Cap(rules.ComponentEmployment, MaxScore)
	return clampTo(float64(verifiedCount)*unit, cap)
}

// TenureStrength scores total verified tenure: min(years*unit, cap).
// Only intervals with end >= start contribute; open-ended records run to now.
func TenureStrength(records []model.EmploymentRecord, cfg rules.Config, now time.Time) float64 {
	unit := cfg.Unit(rules.ComponentTenure, 10)
	cap := cfg.Cap(rules.ComponentTenure, MaxScore)
	return clampTo(TotalVerifiedYears(records, now)*unit, cap)
}

// TotalVerifiedYears sums the verified employment intervals in years.
func TotalVerifiedYears(records []model.EmploymentRecord, now time.Time) float64 {
	total := 0.0
	for _, r := range records {
		if !r.Verified {
			continue
		}
		end := now
		if r.End != nil {
			end = *r.End
		}
		if end.Before(r.Start) {
			continue
		}
		total += end.Sub(r.Start).Hours() / (hoursPerDay * daysPerYear)
	}
	return total
}

// RatingStrength maps the average reference rating onto [0,100], with the
// rating scale's center mapped to the score midline. Zero ratings yield the
// neutral midpoint: "no opinion" must not count as "worst possible".
func RatingStrength(referenceCount int, averageRating float64, cfg rules.Config) float64 {
	if referenceCount == 0 {
		return NeutralScore
	}
	scale := cfg.RatingScale
	if scale <= 0 {
		scale = 5
	}
	return Clamp(averageRating * (MaxScore / scale))
}

// SourceDiversity scores distinct reference sources: min(n*unit, cap).
func SourceDiversity(distinctSources int, cfg rules.Config) float64 {
	unit := cfg.Unit(rules.ComponentSourceDiversity, 25)
	cap := cfg.Cap(rules.ComponentSourceDiversity, MaxScore)
	return clampTo(float64(distinctSources)*unit, cap)
}

// ReferenceVolume scores raw reference count: min(n*unit, cap).
func ReferenceVolume(referenceCount int, cfg rules.Config) float64 {
	unit := cfg.Unit(rules.ComponentReferenceVolume, 10)
	cap := cfg.Cap(rules.ComponentReferenceVolume, MaxScore)
	return clampTo(float64(referenceCount)*unit, cap)
}

// DisputeResolution scores the share of disputes resolved. A subject with
// no disputes has a clean record and scores the maximum.
func DisputeResolution(disputes, resolved int) float64 {
	if disputes <= 0 {
		return MaxScore
	}
	if resolved > disputes {
		resolved = disputes
	}
	return Clamp(float64(resolved) / float64(disputes) * MaxScore)
}

// DisputeExposure scores unresolved disputes as a risk component.
func DisputeExposure(disputes, resolved int, cfg rules.Config) float64 {
	unresolved := disputes - resolved
	if unresolved < 0 {
		unresolved = 0
	}
	unit := cfg.Unit(rules.ComponentDisputeExposure, 25)
	cap := cfg.Cap(rules.ComponentDisputeExposure, MaxScore)
	return clampTo(float64(unresolved)*unit, cap)
}

// FraudExposure scores fraud flags as a risk component.
func FraudExposure(fraudFlags int, cfg rules.Config) float64 {
	unit := cfg.Unit(rules.ComponentFraudExposure, 25)
	cap := cfg.Cap(rules.ComponentFraudExposure, MaxScore)
	return clampTo(float64(fraudFlags)*unit, cap)
}

// FraudPenalty converts fraud flags into the subtractive penalty:
// min(count*penaltyUnit, penaltyCap). Kept out of the weight vector so a
// strong positive signal can never mask fraud.
func FraudPenalty(fraudFlags int, cfg rules.Config) float64 {
	if fraudFlags <= 0 {
		return 0
	}
	return clampTo(float64(fraudFlags)*cfg.FraudPenaltyUnit, cfg.FraudPenaltyCap)
}

// RehireMultiplier returns the multiplicative factor applied to the weighted
// sum: the bonus when any rehire-eligible flag is set, the malus otherwise.
func RehireMultiplier(rehireEligibleCount int, cfg rules.Config) float64 {
	if rehireEligibleCount > 0 {
		return cfg.RehireBonus
	}
	return cfg.RehireMalus
}
