// Package model contains the typed records passed between engine layers.
package model

import "time"

// ScoreKind identifies one of the composite scores the engine derives.
type ScoreKind string

// Score kinds. These are stable identifiers used in storage keys and API
// responses; renaming one is a breaking change for every consumer.
const (
	KindTrust              ScoreKind = "trust"
	KindRisk               ScoreKind = "risk"
	KindAlignment          ScoreKind = "alignment"
	KindHiringConfidence   ScoreKind = "hiring_confidence"
	KindEmployerReputation ScoreKind = "employer_reputation"
)

// Kinds lists every score kind the engine computes.
func Kinds() []ScoreKind {
	return []ScoreKind{KindTrust, KindRisk, KindAlignment, KindHiringConfidence, KindEmployerReputation}
}

// Valid reports whether k names a known score kind.
func (k ScoreKind) Valid() bool {
	switch k {
	case KindTrust, KindRisk, KindAlignment, KindHiringConfidence, KindEmployerReputation:
		return true
	}
	return false
}

// Trigger identifies the mechanism that caused a recomputation.
type Trigger string

// Defined recomputation triggers.
const (
	TriggerReferenceSubmitted  Trigger = "reference_submitted"
	TriggerEmploymentConfirmed Trigger = "employment_confirmed"
	TriggerDisputeResolved     Trigger = "dispute_resolved"
	TriggerFraudFlagChanged    Trigger = "fraud_flag_changed"
	TriggerRuleSetActivated    Trigger = "ruleset_activated"
	TriggerManual              Trigger = "manual"
)

// Valid reports whether t names a known trigger.
func (t Trigger) Valid() bool {
	switch t {
	case TriggerReferenceSubmitted, TriggerEmploymentConfirmed, TriggerDisputeResolved,
		TriggerFraudFlagChanged, TriggerRuleSetActivated, TriggerManual:
		return true
	}
	return false
}

// EmploymentRecord is one verified employment interval for a subject.
// End is nil for open-ended employment; tenure math substitutes "now".
type EmploymentRecord struct {
	ID         string
	EmployerID string
	Start      time.Time
	End        *time.Time
	Verified   bool
}

// ScopeRefs locates a subject inside the baseline scopes.
type ScopeRefs struct {
	Role        string
	SubIndustry string
	Industry    string
	EmployerID  string
}

// SubjectSignals holds the raw facts loaded for one subject. Read-only
// within the engine; upstream record keepers own the source tables.
type SubjectSignals struct {
	SubjectID      string
	CounterpartyID string

	// Unavailable is set when storage could not be reached at all.
	// Downstream components must degrade to the neutral score, not fail.
	Unavailable bool

	VerifiedEmploymentCount int
	Employments             []EmploymentRecord

	ReferenceCount  int
	AverageRating   float64 // 0 when ReferenceCount == 0
	DistinctSources int

	DisputeCount         int
	DisputeResolvedCount int

	RehireFlagCount     int
	RehireEligibleCount int

	FraudFlagCount int

	Behavioral    BehavioralVector
	HasBehavioral bool

	Scope ScopeRefs
}

// BehavioralDimensions is the number of tracked behavioral dimensions.
const BehavioralDimensions = 8

// Behavioral dimension names, index-aligned with BehavioralVector.Dimensions.
var DimensionNames = [BehavioralDimensions]string{
	"pressure", "structure", "communication", "leadership",
	"reliability", "initiative", "conflict_risk", "tone_stability",
}

// BehavioralVector holds the eight behavioral dimensions, each in [0,100].
type BehavioralVector struct {
	Pressure      float64
	Structure     float64
	Communication float64
	Leadership    float64
	Reliability   float64
	Initiative    float64
	ConflictRisk  float64
	ToneStability float64
}

// Dimensions returns the vector as an index-addressable array.
func (v BehavioralVector) Dimensions() [BehavioralDimensions]float64 {
	return [BehavioralDimensions]float64{
		v.Pressure, v.Structure, v.Communication, v.Leadership,
		v.Reliability, v.Initiative, v.ConflictRisk, v.ToneStability,
	}
}

// FromDimensions builds a vector from an index-addressable array.
func FromDimensions(d [BehavioralDimensions]float64) BehavioralVector {
	return BehavioralVector{
		Pressure: d[0], Structure: d[1], Communication: d[2], Leadership: d[3],
		Reliability: d[4], Initiative: d[5], ConflictRisk: d[6], ToneStability: d[7],
	}
}

// ScopeKind identifies a baseline aggregation scope.
type ScopeKind string

// Baseline scopes.
const (
	ScopeRole        ScopeKind = "role"
	ScopeSubIndustry ScopeKind = "sub_industry"
	ScopeIndustry    ScopeKind = "industry"
	ScopeEmployer    ScopeKind = "employer"
)

// BehavioralBaseline is the averaged behavioral profile for one scope.
type BehavioralBaseline struct {
	Scope       ScopeKind
	ScopeID     string
	Vector      BehavioralVector
	SampleCount int
	ComputedAt  time.Time
}

// ScoreSnapshot is the single current row per (subject, kind, counterparty,
// partition). Overwritten in place on every recompute.
type ScoreSnapshot struct {
	SubjectID      string
	Kind           ScoreKind
	CounterpartyID string

	Composite    float64
	Breakdown    map[string]float64
	ModelVersion string
	ComputedAt   time.Time

	// Degraded marks a snapshot produced by the neutral fallback path.
	Degraded bool

	SandboxID        string
	SandboxExpiresAt *time.Time
}

// ScoreHistoryEntry is one append-only audit row. Never mutated or deleted
// by the engine.
type ScoreHistoryEntry struct {
	ID             string
	SubjectID      string
	Kind           ScoreKind
	CounterpartyID string

	Previous float64
	New      float64
	Delta    float64

	Reason      string
	TriggeredBy string
	Trigger     Trigger

	SandboxID string
	CreatedAt time.Time
}

// SandboxContext carries the isolation identity attached to an operation.
// When present, every read and write in the pipeline is confined to rows
// tagged with IsolationID; when absent, only production rows are touched.
type SandboxContext struct {
	IsolationID string
	ExpiresAt   time.Time
}
