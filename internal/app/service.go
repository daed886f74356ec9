// Package service wires the scoring pipeline: signal loading,
// normalization, baseline blending, composition, snapshot persistence and
// the audit trail, plus rule-set administration.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/reputor/reputor/internal/adapters/mq/queue"
	"github.com/reputor/reputor/internal/adapters/mq/worker"
	"github.com/reputor/reputor/internal/adapters/repository"
	"github.com/reputor/reputor/internal/domain/model"
	"github.com/reputor/reputor/pkg/logger"
)

// Default engine configuration constants.
const (
	defaultRecomputeTimeout    = 2 * time.Second
	defaultSweepQueueSize      = 100_000
	defaultSweepWorkers        = 4
	defaultHighImpactThreshold = 10
	defaultHistoryLimit        = 50
)

// Environment names accepted by rule-set activation.
const (
	EnvSandbox    = "sandbox"
	EnvProduction = "production"
)

// Service is the scoring engine. Each recomputation is a short-lived,
// request-scoped unit of work; the Service itself holds no per-request
// state, so recomputations for different subjects run concurrently.
type Service struct {
	store repository.Store

	ruleSetName         string
	recomputeTimeout    time.Duration
	highImpactThreshold int
	maxHistoryLimit     int
	sweepQueueSize      int
	sweepWorkers        int

	sweepQueue *queue.InMemoryQueue
	sweepPool  *worker.Pool

	clock  func() time.Time
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithRuleSetName sets the rule set consulted for weight vectors.
func WithRuleSetName(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.ruleSetName = name
		}
	}
}

// WithRecomputeTimeout bounds one recompute pipeline run.
func WithRecomputeTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.recomputeTimeout = d
		}
	}
}

// WithHighImpactThreshold sets the changed-key count at or above which a
// rule-set diff is flagged as high impact.
func WithHighImpactThreshold(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.highImpactThreshold = n
		}
	}
}

// WithMaxHistoryLimit caps history reads.
func WithMaxHistoryLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxHistoryLimit = n
		}
	}
}

// WithSweepQueueSize bounds the post-activation recompute queue.
func WithSweepQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.sweepQueueSize = n
		}
	}
}

// WithSweepWorkerCount sets the number of sweep workers.
func WithSweepWorkerCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.sweepWorkers = n
		}
	}
}

// WithClock overrides the time source, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs the engine around a repository store.
func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:               store,
		ruleSetName:         "default",
		recomputeTimeout:    defaultRecomputeTimeout,
		highImpactThreshold: defaultHighImpactThreshold,
		maxHistoryLimit:     defaultHistoryLimit * 10,
		sweepQueueSize:      defaultSweepQueueSize,
		sweepWorkers:        defaultSweepWorkers,
		clock:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("engine")
	}
	return s
}

// Start launches the sweep queue and worker pool.
func (s *Service) Start(ctx context.Context) {
	s.sweepQueue = queue.NewInMemoryQueue(queue.WithCapacity(s.sweepQueueSize))
	s.sweepPool = worker.NewPool(s.sweepQueue, s,
		worker.WithWorkerCount(s.sweepWorkers),
		worker.WithLogger(s.logger.Named("sweep")))
	s.sweepPool.Start(ctx)
	s.logger.Info(ctx, "engine started",
		logger.String("rule_set", s.ruleSetName),
		logger.Int("sweep_workers", s.sweepWorkers))
}

// Stop drains the sweep pool and closes the queue.
func (s *Service) Stop(ctx context.Context) error {
	if s.sweepQueue != nil {
		_ = s.sweepQueue.Close()
	}
	if s.sweepPool != nil {
		if err := s.sweepPool.Shutdown(ctx); err != nil {
			return fmt.Errorf("stop sweep pool: %w", err)
		}
	}
	return nil
}

// RecomputeJob satisfies worker.Recomputer: sweep jobs always run against
// the production partition.
func (s *Service) RecomputeJob(ctx context.Context, j worker.Job) error {
	_, err := s.Recompute(ctx, RecomputeRequest{
		SubjectID:   j.SubjectID,
		Kind:        j.Kind,
		Trigger:     j.Trigger,
		Reason:      j.Reason,
		TriggeredBy: j.TriggeredBy,
	})
	return err
}

// Score returns the current snapshot for a score key.
func (s *Service) Score(ctx context.Context, subjectID string, kind model.ScoreKind, counterpartyID string, sbx *model.SandboxContext) (model.ScoreSnapshot, error) {
	if !kind.Valid() {
		return model.ScoreSnapshot{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	guard, err := s.bind(sbx)
	if err != nil {
		return model.ScoreSnapshot{}, err
	}
	return guard.Snapshot(ctx, subjectID, kind, counterpartyID, guard.Partition())
}

// History returns the most recent audit rows for a score key, newest first.
func (s *Service) History(ctx context.Context, subjectID string, kind model.ScoreKind, limit int, sbx *model.SandboxContext) ([]model.ScoreHistoryEntry, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if limit <= 0 || limit > s.maxHistoryLimit {
		limit = defaultHistoryLimit
	}
	guard, err := s.bind(sbx)
	if err != nil {
		return nil, err
	}
	return guard.History(ctx, subjectID, kind, limit, guard.Partition())
}

// GetStats returns operational statistics for the stats endpoint.
func (s *Service) GetStats() map[string]interface{} {
	stats := map[string]interface{}{
		"rule_set":      s.ruleSetName,
		"sweep_workers": s.sweepWorkers,
	}
	if s.sweepQueue != nil {
		stats["sweep_queue_len"] = s.sweepQueue.Len(context.Background())
	}
	return stats
}
