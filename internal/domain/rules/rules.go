// Package rules defines the closed rule-set configuration schema, its
// immutable versions, validation, and structural diffing.
package rules

import (
	"fmt"
	"time"

	"github.com/reputor/reputor/internal/domain/model"
)

// Component keys a weight vector may reference. The schema is closed: a
// configuration naming any other key is rejected at creation time.
const (
	ComponentEmployment         = "employment_strength"
	ComponentTenure             = "tenure_strength"
	ComponentRating             = "rating_strength"
	ComponentSourceDiversity    = "source_diversity"
	ComponentReferenceVolume    = "reference_volume"
	ComponentDisputeResolution  = "dispute_resolution"
	ComponentBaselineAlignment  = "baseline_alignment"
	ComponentFraudExposure      = "fraud_exposure"
	ComponentDisputeExposure    = "dispute_exposure"
	ComponentBaselineDivergence = "baseline_divergence"
)

// Breakdown keys that are not weighted components.
const (
	BreakdownFraudPenalty     = "fraud_penalty"
	BreakdownRehireMultiplier = "rehire_multiplier"
)

// CarriesAdjustments reports whether a kind's composite takes the fraud
// penalty and rehire multiplier on top of its weighted components. Risk and
// alignment count fraud and rehire facts through their own components, so
// the cross-cutting adjustments apply to the favorable kinds only; a
// penalty on risk would pull the score the wrong way.
func CarriesAdjustments(kind model.ScoreKind) bool {
	switch kind {
	case model.KindRisk, model.KindAlignment:
		return false
	default:
		return true
	}
}

// knownComponents is the closed set of component keys.
var knownComponents = map[string]struct{}{
	ComponentEmployment:         {},
	ComponentTenure:             {},
	ComponentRating:             {},
	ComponentSourceDiversity:    {},
	ComponentReferenceVolume:    {},
	ComponentDisputeResolution:  {},
	ComponentBaselineAlignment:  {},
	ComponentFraudExposure:      {},
	ComponentDisputeExposure:    {},
	ComponentBaselineDivergence: {},
}

// ScopeWeights controls how role/sub-industry/industry/employer baselines
// blend. Partial sums are fine; the blender re-normalizes proportionally.
type ScopeWeights struct {
	Role        float64 `json:"role" koanf:"role"`
	SubIndustry float64 `json:"sub_industry" koanf:"sub_industry"`
	Industry    float64 `json:"industry" koanf:"industry"`
	Employer    float64 `json:"employer" koanf:"employer"`
}

// Sum returns the total of the four scope weights.
func (s ScopeWeights) Sum() float64 {
	return s.Role + s.SubIndustry + s.Industry + s.Employer
}

// Config is the structured rule-set configuration: weight vectors per score
// kind plus the caps, units, penalties and multipliers the normalizer and
// composer consume. Exact weight constants never leave the engine.
type Config struct {
	// Weights maps score kind -> component key -> weight. Weights need not
	// sum to 100; the composer re-scales them proportionally before use.
	Weights map[model.ScoreKind]map[string]float64 `json:"weights"`

	// Caps bound each normalized component, keyed by component key.
	Caps map[string]float64 `json:"caps"`

	// Units scale raw counts/durations per component key.
	Units map[string]float64 `json:"units"`

	// RatingScale is the upper bound of the inbound reference rating scale
	// (e.g. 5 for 1..5 star ratings). Its midpoint maps to score 50.
	RatingScale float64 `json:"rating_scale"`

	FraudPenaltyUnit float64 `json:"fraud_penalty_unit"`
	FraudPenaltyCap  float64 `json:"fraud_penalty_cap"`

	// RehireBonus applies when any rehire-eligible flag is set, RehireMalus
	// otherwise. Both multiply the already-weighted sum.
	RehireBonus float64 `json:"rehire_bonus"`
	RehireMalus float64 `json:"rehire_malus"`

	ScopeWeights ScopeWeights `json:"scope_weights"`
}

// Validate rejects configurations that could reach the composer in an
// unusable state. Degenerate weight vectors (all zero, or negative) are an
// error here, never later.
func (c Config) Validate() error {
	if len(c.Weights) == 0 {
		return fmt.Errorf("%w: no weight vectors", ErrInvalidConfig)
	}
	for kind, vector := range c.Weights {
		if !kind.Valid() {
			return fmt.Errorf("%w: unknown score kind %q", ErrInvalidConfig, kind)
		}
		sum := 0.0
		for key, w := range vector {
			if _, ok := knownComponents[key]; !ok {
				return fmt.Errorf("%w: unknown component %q in %q weights", ErrInvalidConfig, key, kind)
			}
			if w < 0 {
				return fmt.Errorf("%w: negative weight %q=%v in %q", ErrInvalidConfig, key, w, kind)
			}
			sum += w
		}
		if sum <= 0 {
			return fmt.Errorf("%w: %q weights cannot be normalized (sum %v)", ErrInvalidConfig, kind, sum)
		}
	}
	for key, cap := range c.Caps {
		if _, ok := knownComponents[key]; !ok {
			return fmt.Errorf("%w: cap for unknown component %q", ErrInvalidConfig, key)
		}
		if cap < 0 {
			return fmt.Errorf("%w: negative cap for %q", ErrInvalidConfig, key)
		}
	}
	for key, unit := range c.Units {
		if _, ok := knownComponents[key]; !ok {
			return fmt.Errorf("%w: unit for unknown component %q", ErrInvalidConfig, key)
		}
		if unit < 0 {
			return fmt.Errorf("%w: negative unit for %q", ErrInvalidConfig, key)
		}
	}
	if c.RatingScale <= 0 {
		return fmt.Errorf("%w: rating scale must be positive", ErrInvalidConfig)
	}
	if c.FraudPenaltyUnit < 0 || c.FraudPenaltyCap < 0 {
		return fmt.Errorf("%w: fraud penalty values must be non-negative", ErrInvalidConfig)
	}
	if c.RehireBonus <= 0 || c.RehireMalus <= 0 {
		return fmt.Errorf("%w: rehire multipliers must be positive", ErrInvalidConfig)
	}
	if c.ScopeWeights.Sum() <= 0 {
		return fmt.Errorf("%w: scope weights cannot be normalized", ErrInvalidConfig)
	}
	return nil
}

// Cap returns the declared cap for a component, or def when unset.
func (c Config) Cap(key string, def float64) float64 {
	if v, ok := c.Caps[key]; ok {
		return v
	}
	return def
}

// Unit returns the declared per-unit scale for a component, or def when unset.
func (c Config) Unit(key string, def float64) float64 {
	if v, ok := c.Units[key]; ok {
		return v
	}
	return def
}

// Version is one immutable, named, tagged rule-set configuration. "Editing"
// a rule set means creating a new Version; existing rows never change.
type Version struct {
	ID   string
	Name string
	Tag  string

	Config Config

	ActiveSandbox    bool
	ActiveProduction bool

	CreatedAt time.Time
}

// Ref renders the stable model-version reference stored on snapshots.
func (v Version) Ref() string {
	return v.Name + "@" + v.Tag
}

// DefaultConfig returns the engine's illustrative default rule-set
// configuration, used to seed the first version of a rule set.
func DefaultConfig() Config {
	return Config{
		Weights: map[model.ScoreKind]map[string]float64{
			model.KindTrust: {
				ComponentEmployment:        15,
				ComponentTenure:            25,
				ComponentRating:            30,
				ComponentSourceDiversity:   10,
				ComponentReferenceVolume:   10,
				ComponentDisputeResolution: 10,
			},
			model.KindRisk: {
				ComponentFraudExposure:      40,
				ComponentDisputeExposure:    30,
				ComponentBaselineDivergence: 30,
			},
			model.KindAlignment: {
				ComponentBaselineAlignment: 100,
			},
			model.KindHiringConfidence: {
				ComponentTenure:            20,
				ComponentRating:            30,
				ComponentSourceDiversity:   10,
				ComponentBaselineAlignment: 40,
			},
			model.KindEmployerReputation: {
				ComponentRating:            40,
				ComponentDisputeResolution: 30,
				ComponentReferenceVolume:   30,
			},
		},
		Caps: map[string]float64{
			ComponentEmployment:         100,
			ComponentTenure:             100,
			ComponentSourceDiversity:    100,
			ComponentReferenceVolume:    100,
			ComponentFraudExposure:      100,
			ComponentDisputeExposure:    100,
			ComponentBaselineDivergence: 100,
		},
		Units: map[string]float64{
			ComponentEmployment:      20, // per verified employment
			ComponentTenure:          10, // per verified year
			ComponentSourceDiversity: 25, // per distinct source
			ComponentReferenceVolume: 10, // per reference
			ComponentDisputeExposure: 25, // per unresolved dispute
		},
		RatingScale:      5,
		FraudPenaltyUnit: 15,
		FraudPenaltyCap:  60,
		RehireBonus:      1.1,
		RehireMalus:      0.95,
		ScopeWeights: ScopeWeights{
			Role:        40,
			SubIndustry: 25,
			Industry:    15,
			Employer:    20,
		},
	}
}
