package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/reputor/reputor/internal/adapters/repository"
	"github.com/reputor/reputor/internal/adapters/repository/sandbox"
	"github.com/reputor/reputor/internal/domain/baseline"
	"github.com/reputor/reputor/internal/domain/compose"
	"github.com/reputor/reputor/internal/domain/model"
	"github.com/reputor/reputor/internal/domain/normalize"
	"github.com/reputor/reputor/internal/domain/rules"
	"github.com/reputor/reputor/pkg/logger"
	"github.com/reputor/reputor/pkg/metrics"
)

// RecomputeRequest describes one recomputation trigger.
type RecomputeRequest struct {
	SubjectID      string
	Kind           model.ScoreKind
	CounterpartyID string

	Trigger     model.Trigger
	Reason      string
	TriggeredBy string

	Sandbox *model.SandboxContext
}

func (r RecomputeRequest) validate() error {
	if strings.TrimSpace(r.SubjectID) == "" {
		return errors.New("missing subject id")
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, r.Kind)
	}
	if !r.Trigger.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTrigger, r.Trigger)
	}
	if r.Trigger == model.TriggerManual && strings.TrimSpace(r.Reason) == "" {
		return ErrReasonRequired
	}
	return nil
}

// bind wraps the store in a sandbox guard for the optional context.
// Binding failures are the fatal tier: they abort, never degrade.
func (s *Service) bind(sbx *model.SandboxContext) (*sandbox.Guard, error) {
	guard, err := sandbox.Bind(s.store, sbx, s.clock())
	if err != nil {
		if errors.Is(err, repository.ErrIsolationViolation) {
			metrics.RecordIsolationViolation()
		}
		return nil, err
	}
	return guard, nil
}

// Recompute runs the full pipeline for one score key: previous snapshot →
// load → normalize → blend → compose → upsert → audit row.
//
// Degradation errors never reach the caller: whatever goes wrong inside the
// pipeline, the caller receives a well-formed snapshot (neutral when the
// computation could not complete) and the audit trail gets its row. Only
// invalid requests and isolation violations return an error.
func (s *Service) Recompute(ctx context.Context, req RecomputeRequest) (model.ScoreSnapshot, error) {
	if err := req.validate(); err != nil {
		return model.ScoreSnapshot{}, err
	}
	guard, err := s.bind(req.Sandbox)
	if err != nil {
		return model.ScoreSnapshot{}, err
	}
	part := guard.Partition()

	ctx, cancel := context.WithTimeout(ctx, s.recomputeTimeout)
	defer cancel()

	start := s.clock()
	defer func() {
		metrics.ObserveRecomputeLatency(float64(s.clock().Sub(start).Milliseconds()))
		metrics.RecordRecompute(string(req.Kind), string(req.Trigger))
	}()

	prev, err := guard.Snapshot(ctx, req.SubjectID, req.Kind, req.CounterpartyID, part)
	prevFound := err == nil
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		if errors.Is(err, repository.ErrIsolationViolation) {
			metrics.RecordIsolationViolation()
			return model.ScoreSnapshot{}, err
		}
		s.logger.Warn(ctx, "previous snapshot unavailable", logger.String("subject_id", req.SubjectID), logger.Error(err))
	}

	snap := s.computeSnapshot(ctx, guard, req)

	// Write failure does not throw: retry once, then preserve the last
	// known snapshot and report the degraded write through the audit row.
	persisted := snap
	if err := s.upsertWithRetry(ctx, guard, snap, part); err != nil {
		s.logger.Error(ctx, "snapshot upsert failed; preserving last known value",
			logger.String("subject_id", req.SubjectID), logger.Error(err))
		metrics.RecordErrorByComponent("engine", "snapshot_write")
		if prevFound {
			persisted = prev
		}
	} else {
		metrics.RecordSnapshotUpsert()
	}

	previousValue := 0.0
	if prevFound {
		previousValue = prev.Composite
	}
	entry := model.ScoreHistoryEntry{
		SubjectID:      req.SubjectID,
		Kind:           req.Kind,
		CounterpartyID: req.CounterpartyID,
		Previous:       previousValue,
		New:            persisted.Composite,
		Delta:          persisted.Composite - previousValue,
		Reason:         req.Reason,
		TriggeredBy:    req.TriggeredBy,
		Trigger:        req.Trigger,
		SandboxID:      part.SandboxID(),
		CreatedAt:      s.clock().UTC(),
	}
	// The audit trail always gets a row, even for a zero delta or a
	// degraded run: the trigger itself is part of the audit requirement.
	if err := s.appendHistoryWithRetry(ctx, guard, entry, part); err != nil {
		s.logger.Error(ctx, "audit history append failed",
			logger.String("subject_id", req.SubjectID), logger.Error(err))
		metrics.RecordErrorByComponent("engine", "history_write")
	} else {
		metrics.RecordHistoryAppend()
	}

	return persisted, nil
}

// computeSnapshot produces a snapshot for the request, degrading to the
// neutral score whenever the pipeline cannot complete. A panic anywhere in
// the math is contained here and converted into the same neutral fallback.
func (s *Service) computeSnapshot(ctx context.Context, guard *sandbox.Guard, req RecomputeRequest) (snap model.ScoreSnapshot) {
	part := guard.Partition()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, "recompute pipeline panicked; degrading to neutral",
				logger.String("subject_id", req.SubjectID), logger.Any("panic", r))
			snap = s.neutralSnapshot(req, part, "")
		}
	}()

	version, err := guard.ActiveVersion(ctx, s.ruleSetName, part)
	if err != nil {
		s.logger.Warn(ctx, "no active rule-set version; degrading to neutral",
			logger.String("rule_set", s.ruleSetName), logger.Error(err))
		return s.neutralSnapshot(req, part, "")
	}
	cfg := version.Config

	weights, ok := cfg.Weights[req.Kind]
	if !ok || len(weights) == 0 {
		s.logger.Warn(ctx, "rule set has no weight vector for kind; degrading to neutral",
			logger.String("kind", string(req.Kind)), logger.String("model_version", version.Ref()))
		return s.neutralSnapshot(req, part, version.Ref())
	}

	signals, err := guard.Signals(ctx, req.SubjectID, req.CounterpartyID, part)
	if err != nil || signals.Unavailable {
		if err != nil {
			s.logger.Warn(ctx, "signal load failed; degrading to neutral",
				logger.String("subject_id", req.SubjectID), logger.Error(err))
		}
		return s.neutralSnapshot(req, part, version.Ref())
	}
	if ctx.Err() != nil {
		s.logger.Warn(ctx, "recompute deadline exceeded; degrading to neutral",
			logger.String("subject_id", req.SubjectID))
		return s.neutralSnapshot(req, part, version.Ref())
	}

	deviation, hasBaseline := s.deviationScore(ctx, guard, signals, cfg.ScopeWeights)

	comps := normalize.Signals(signals, cfg, deviation, hasBaseline, s.clock().UTC())
	result := compose.Compose(comps, req.Kind, weights)

	var expires *time.Time
	if part.IsSandbox() {
		e := part.ExpiresAt()
		expires = &e
	}
	return model.ScoreSnapshot{
		SubjectID:        req.SubjectID,
		Kind:             req.Kind,
		CounterpartyID:   req.CounterpartyID,
		Composite:        result.Composite,
		Breakdown:        result.Breakdown,
		ModelVersion:     version.Ref(),
		ComputedAt:       s.clock().UTC(),
		SandboxID:        part.SandboxID(),
		SandboxExpiresAt: expires,
	}
}

// deviationScore blends the per-scope baselines for the subject and scores
// the subject's behavioral deviation. The second return is false when no
// scope had data or the subject has no behavioral vector.
func (s *Service) deviationScore(ctx context.Context, guard *sandbox.Guard, signals model.SubjectSignals, weights rules.ScopeWeights) (float64, bool) {
	if !signals.HasBehavioral {
		return 0, false
	}
	part := guard.Partition()
	fetch := func(scope model.ScopeKind, scopeID string) baseline.Scoped {
		if scopeID == "" {
			return baseline.Scoped{}
		}
		b, err := guard.Baseline(ctx, scope, scopeID, part)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				s.logger.Warn(ctx, "baseline read failed; scope skipped",
					logger.String("scope", string(scope)), logger.Error(err))
			}
			return baseline.Scoped{}
		}
		return baseline.Scoped{Baseline: b, Present: true}
	}

	blended, ok := baseline.Blend(weights, baseline.Inputs{
		Role:        fetch(model.ScopeRole, signals.Scope.Role),
		SubIndustry: fetch(model.ScopeSubIndustry, signals.Scope.SubIndustry),
		Industry:    fetch(model.ScopeIndustry, signals.Scope.Industry),
		Employer:    fetch(model.ScopeEmployer, signals.Scope.EmployerID),
	})
	if !ok {
		return 0, false
	}
	return baseline.Deviation(signals.Behavioral, blended), true
}

// neutralSnapshot is the single shared degrade-to-neutral policy: a
// well-formed snapshot at the documented neutral midpoint, flagged so
// consumers can render it as unavailable instead of an error.
func (s *Service) neutralSnapshot(req RecomputeRequest, part repository.Partition, modelVersion string) model.ScoreSnapshot {
	metrics.RecordDegradedRun()
	var expires *time.Time
	if part.IsSandbox() {
		e := part.ExpiresAt()
		expires = &e
	}
	return model.ScoreSnapshot{
		SubjectID:        req.SubjectID,
		Kind:             req.Kind,
		CounterpartyID:   req.CounterpartyID,
		Composite:        normalize.NeutralScore,
		Breakdown:        map[string]float64{},
		ModelVersion:     modelVersion,
		ComputedAt:       s.clock().UTC(),
		Degraded:         true,
		SandboxID:        part.SandboxID(),
		SandboxExpiresAt: expires,
	}
}

// upsertWithRetry retries a failed snapshot write once, synchronously.
// Isolation violations are never retried.
func (s *Service) upsertWithRetry(ctx context.Context, guard *sandbox.Guard, snap model.ScoreSnapshot, part repository.Partition) error {
	err := guard.UpsertSnapshot(ctx, snap, part)
	if err == nil || errors.Is(err, repository.ErrIsolationViolation) {
		return err
	}
	metrics.RecordWriteRetry()
	return guard.UpsertSnapshot(ctx, snap, part)
}

// appendHistoryWithRetry retries a failed audit append once, synchronously.
func (s *Service) appendHistoryWithRetry(ctx context.Context, guard *sandbox.Guard, entry model.ScoreHistoryEntry, part repository.Partition) error {
	err := guard.AppendHistory(ctx, entry, part)
	if err == nil || errors.Is(err, repository.ErrIsolationViolation) {
		return err
	}
	metrics.RecordWriteRetry()
	return guard.AppendHistory(ctx, entry, part)
}
