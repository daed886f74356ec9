// Package sandbox is the isolation layer around the repository contracts.
//
// A Guard is bound to exactly one partition (production, or one sandbox
// isolation id) and refuses every call that names any other partition.
// Mixing partitions is a programming error, so the Guard aborts with
// ErrIsolationViolation instead of degrading.
package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/reputor/reputor/internal/adapters/repository"
	"github.com/reputor/reputor/internal/domain/model"
	"github.com/reputor/reputor/internal/domain/rules"
)

// Guard decorates a repository.Store, confining it to one partition.
type Guard struct {
	inner repository.Store
	part  repository.Partition
}

// Bind creates a Guard for the given optional sandbox context. A nil
// context binds to production. Expired or malformed contexts are rejected
// up front so no storage call ever sees them.
func Bind(inner repository.Store, sbx *model.SandboxContext, now time.Time) (*Guard, error) {
	if sbx == nil {
		return &Guard{inner: inner, part: repository.Production()}, nil
	}
	if sbx.IsolationID == "" {
		return nil, fmt.Errorf("%w: sandbox context without isolation id", repository.ErrIsolationViolation)
	}
	if !sbx.ExpiresAt.After(now) {
		return nil, fmt.Errorf("%w: %s expired at %s", ErrSandboxExpired, sbx.IsolationID, sbx.ExpiresAt)
	}
	return &Guard{inner: inner, part: repository.Sandbox(*sbx)}, nil
}

// Partition returns the partition this Guard is bound to.
func (g *Guard) Partition() repository.Partition { return g.part }

// check rejects any call that names a partition other than the bound one.
func (g *Guard) check(part repository.Partition) error {
	if part.SandboxID() != g.part.SandboxID() {
		return fmt.Errorf("%w: call tagged %q on a store bound to %q",
			repository.ErrIsolationViolation, displayID(part), displayID(g.part))
	}
	return nil
}

func displayID(part repository.Partition) string {
	if !part.IsSandbox() {
		return "production"
	}
	return part.SandboxID()
}

// --- SignalSource / SignalWriter ---

func (g *Guard) Signals(ctx context.Context, subjectID, counterpartyID string, part repository.Partition) (model.SubjectSignals, error) {
	if err := g.check(part); err != nil {
		return model.SubjectSignals{}, err
	}
	return g.inner.Signals(ctx, subjectID, counterpartyID, g.part)
}

func (g *Guard) SubjectIDs(ctx context.Context, part repository.Partition) ([]string, error) {
	if err := g.check(part); err != nil {
		return nil, err
	}
	return g.inner.SubjectIDs(ctx, g.part)
}

func (g *Guard) AddEmployment(ctx context.Context, subjectID string, rec model.EmploymentRecord, part repository.Partition) error {
	if err := g.check(part); err != nil {
		return err
	}
	return g.inner.AddEmployment(ctx, subjectID, rec, g.part)
}

func (g *Guard) AddReference(ctx context.Context, subjectID, sourceID string, rating float64, part repository.Partition) error {
	if err := g.check(part); err != nil {
		return err
	}
	return g.inner.AddReference(ctx, subjectID, sourceID, rating, g.part)
}

func (g *Guard) AddDispute(ctx context.Context, subjectID string, resolved bool, part repository.Partition) error {
	if err := g.check(part); err != nil {
		return err
	}
	return g.inner.AddDispute(ctx, subjectID, resolved, g.part)
}

func (g *Guard) SetRehireFlag(ctx context.Context, subjectID, employerID string, eligible bool, part repository.Partition) error {
	if err := g.check(part); err != nil {
		return err
	}
	return g.inner.SetRehireFlag(ctx, subjectID, employerID, eligible, g.part)
}

func (g *Guard) AddFraudFlag(ctx context.Context, subjectID string, part repository.Partition) error {
	if err := g.check(part); err != nil {
		return err
	}
	return g.inner.AddFraudFlag(ctx, subjectID, g.part)
}

func (g *Guard) PutBehavioral(ctx context.Context, subjectID string, vec model.BehavioralVector, scope model.ScopeRefs, part repository.Partition) error {
	if err := g.check(part); err != nil {
		return err
	}
	return g.inner.PutBehavioral(ctx, subjectID, vec, scope, g.part)
}

// --- SnapshotStore ---

func (g *Guard) Snapshot(ctx context.Context, subjectID string, kind model.ScoreKind, counterpartyID string, part repository.Partition) (model.ScoreSnapshot, error) {
	if err := g.check(part); err != nil {
		return model.ScoreSnapshot{}, err
	}
	snap, err := g.inner.Snapshot(ctx, subjectID, kind, counterpartyID, g.part)
	if err != nil {
		return model.ScoreSnapshot{}, err
	}
	if snap.SandboxID != g.part.SandboxID() {
		return model.ScoreSnapshot{}, fmt.Errorf("%w: snapshot row tagged %q leaked into %q read",
			repository.ErrIsolationViolation, snap.SandboxID, displayID(g.part))
	}
	return snap, nil
}

func (g *Guard) UpsertSnapshot(ctx context.Context, snap model.ScoreSnapshot, part repository.Partition) error {
	if err := g.check(part); err != nil {
		return err
	}
	if snap.SandboxID != g.part.SandboxID() {
		return fmt.Errorf("%w: snapshot tagged %q written through %q store",
			repository.ErrIsolationViolation, snap.SandboxID, displayID(g.part))
	}
	return g.inner.UpsertSnapshot(ctx, snap, g.part)
}

// --- HistoryStore ---

func (g *Guard) AppendHistory(ctx context.Context, entry model.ScoreHistoryEntry, part repository.Partition) error {
	if err := g.check(part); err != nil {
		return err
	}
	if entry.SandboxID != g.part.SandboxID() {
		return fmt.Errorf("%w: history row tagged %q written through %q store",
			repository.ErrIsolationViolation, entry.SandboxID, displayID(g.part))
	}
	return g.inner.AppendHistory(ctx, entry, g.part)
}

func (g *Guard) History(ctx context.Context, subjectID string, kind model.ScoreKind, limit int, part repository.Partition) ([]model.ScoreHistoryEntry, error) {
	if err := g.check(part); err != nil {
		return nil, err
	}
	entries, err := g.inner.History(ctx, subjectID, kind, limit, g.part)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.SandboxID != g.part.SandboxID() {
			return nil, fmt.Errorf("%w: history row tagged %q leaked into %q read",
				repository.ErrIsolationViolation, e.SandboxID, displayID(g.part))
		}
	}
	return entries, nil
}

// --- RuleVersionStore ---
//
// Rule-set versions are environment configuration, not subject data: the
// rows are shared, and only the active flags distinguish sandbox from
// production. The Guard routes ActiveVersion through its own partition and
// passes administration calls through unchanged.

func (g *Guard) CreateVersion(ctx context.Context, name, tag string, cfg rules.Config) (rules.Version, error) {
	return g.inner.CreateVersion(ctx, name, tag, cfg)
}

func (g *Guard) Version(ctx context.Context, id string) (rules.Version, error) {
	return g.inner.Version(ctx, id)
}

func (g *Guard) ListVersions(ctx context.Context, name string) ([]rules.Version, error) {
	return g.inner.ListVersions(ctx, name)
}

func (g *Guard) SetActiveSandbox(ctx context.Context, id string) error {
	return g.inner.SetActiveSandbox(ctx, id)
}

func (g *Guard) SetActiveProduction(ctx context.Context, id string) error {
	return g.inner.SetActiveProduction(ctx, id)
}

func (g *Guard) ActiveVersion(ctx context.Context, name string, part repository.Partition) (rules.Version, error) {
	if err := g.check(part); err != nil {
		return rules.Version{}, err
	}
	return g.inner.ActiveVersion(ctx, name, g.part)
}

// --- BaselineStore ---

func (g *Guard) Baseline(ctx context.Context, scope model.ScopeKind, scopeID string, part repository.Partition) (model.BehavioralBaseline, error) {
	if err := g.check(part); err != nil {
		return model.BehavioralBaseline{}, err
	}
	return g.inner.Baseline(ctx, scope, scopeID, g.part)
}

func (g *Guard) UpsertBaseline(ctx context.Context, b model.BehavioralBaseline, part repository.Partition) error {
	if err := g.check(part); err != nil {
		return err
	}
	return g.inner.UpsertBaseline(ctx, b, g.part)
}

func (g *Guard) RecomputeBaseline(ctx context.Context, scope model.ScopeKind, scopeID string, part repository.Partition) (model.BehavioralBaseline, error) {
	if err := g.check(part); err != nil {
		return model.BehavioralBaseline{}, err
	}
	return g.inner.RecomputeBaseline(ctx, scope, scopeID, g.part)
}

// Close passes through; the Guard does not own the connection.
func (g *Guard) Close() error { return g.inner.Close() }
