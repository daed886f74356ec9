// Package repository defines the storage contracts the engine depends on
// and the partition type that keeps sandbox and production data apart.
package repository

import (
	"context"
	"time"

	"github.com/reputor/reputor/internal/domain/model"
	"github.com/reputor/reputor/internal/domain/rules"
)

// Partition identifies the storage partition an operation works against.
// The zero value is production. A sandbox partition carries the isolation
// id and the expiry every written row must be tagged with.
type Partition struct {
	sandboxID string
	expiresAt time.Time
}

// Production returns the production partition.
func Production() Partition { return Partition{} }

// Sandbox returns the partition for a sandbox context.
func Sandbox(ctx model.SandboxContext) Partition {
	return Partition{sandboxID: ctx.IsolationID, expiresAt: ctx.ExpiresAt}
}

// IsSandbox reports whether p is a sandbox partition.
func (p Partition) IsSandbox() bool { return p.sandboxID != "" }

// SandboxID returns the isolation id, or "" for production.
func (p Partition) SandboxID() string { return p.sandboxID }

// ExpiresAt returns the sandbox expiry; zero for production.
func (p Partition) ExpiresAt() time.Time { return p.expiresAt }

// SignalSource reads raw facts for one subject. Implementations must treat
// absent tables or relations as zero-signal, not as an error; only true
// storage unavailability surfaces, and then as Signals.Unavailable rather
// than a returned error.
type SignalSource interface {
	Signals(ctx context.Context, subjectID, counterpartyID string, part Partition) (model.SubjectSignals, error)

	// SubjectIDs lists the subjects known to a partition, for sweep
	// recomputation after a rule-set activation.
	SubjectIDs(ctx context.Context, part Partition) ([]string, error)
}

// SignalWriter seeds raw facts. Used by the synthetic-subject generator and
// by upstream record keepers; the scoring pipeline itself never writes here.
type SignalWriter interface {
	AddEmployment(ctx context.Context, subjectID string, rec model.EmploymentRecord, part Partition) error
	AddReference(ctx context.Context, subjectID, sourceID string, rating float64, part Partition) error
	AddDispute(ctx context.Context, subjectID string, resolved bool, part Partition) error
	SetRehireFlag(ctx context.Context, subjectID, employerID string, eligible bool, part Partition) error
	AddFraudFlag(ctx context.Context, subjectID string, part Partition) error
	PutBehavioral(ctx context.Context, subjectID string, vec model.BehavioralVector, scope model.ScopeRefs, part Partition) error
}

// SnapshotStore holds the single current snapshot per score key.
type SnapshotStore interface {
	// Snapshot returns the current row, or ErrNotFound.
	Snapshot(ctx context.Context, subjectID string, kind model.ScoreKind, counterpartyID string, part Partition) (model.ScoreSnapshot, error)

	// UpsertSnapshot overwrites by (subject, kind, counterparty, partition)
	// key; last write wins.
	UpsertSnapshot(ctx context.Context, snap model.ScoreSnapshot, part Partition) error
}

// HistoryStore is the append-only audit trail. Rows are never mutated or
// deleted by the engine.
type HistoryStore interface {
	AppendHistory(ctx context.Context, entry model.ScoreHistoryEntry, part Partition) error
	History(ctx context.Context, subjectID string, kind model.ScoreKind, limit int, part Partition) ([]model.ScoreHistoryEntry, error)
}

// RuleVersionStore holds immutable rule-set versions and their active flags.
type RuleVersionStore interface {
	// CreateVersion persists a new immutable version. Fails with
	// rules.ErrDuplicateVersion when (name, tag) exists and with
	// rules.ErrInvalidConfig when the config cannot be normalized.
	CreateVersion(ctx context.Context, name, tag string, cfg rules.Config) (rules.Version, error)

	Version(ctx context.Context, id string) (rules.Version, error)
	ListVersions(ctx context.Context, name string) ([]rules.Version, error)

	// SetActiveSandbox and SetActiveProduction atomically clear the flag
	// from every other version of the same rule-set name before setting it
	// on the target, so at most one version per name holds each flag.
	SetActiveSandbox(ctx context.Context, id string) error
	SetActiveProduction(ctx context.Context, id string) error

	// ActiveVersion returns the version active for the partition's
	// environment (sandbox flag for sandbox partitions), or ErrNotFound.
	ActiveVersion(ctx context.Context, name string, part Partition) (rules.Version, error)
}

// BaselineStore persists per-scope behavioral baselines.
type BaselineStore interface {
	Baseline(ctx context.Context, scope model.ScopeKind, scopeID string, part Partition) (model.BehavioralBaseline, error)
	UpsertBaseline(ctx context.Context, b model.BehavioralBaseline, part Partition) error

	// RecomputeBaseline re-averages a scope's members' behavioral vectors
	// and upserts the result. Called when scope membership changes.
	RecomputeBaseline(ctx context.Context, scope model.ScopeKind, scopeID string, part Partition) (model.BehavioralBaseline, error)
}

// Store bundles every storage contract the engine needs.
type Store interface {
	SignalSource
	SignalWriter
	SnapshotStore
	HistoryStore
	RuleVersionStore
	BaselineStore

	Close() error
}
