package synth

import (
	"context"
	"fmt"
	"time"

	"github.com/reputor/reputor/internal/adapters/repository"
	service "github.com/reputor/reputor/internal/app"
	"github.com/reputor/reputor/internal/domain/model"
	"github.com/reputor/reputor/pkg/logger"
)

const defaultRunTimeout = 10 * time.Minute

// Recomputer recomputes one score. Satisfied by the engine service.
type Recomputer interface {
	Recompute(ctx context.Context, req service.RecomputeRequest) (model.ScoreSnapshot, error)
}

// Runner seeds subjects through a store and scores them through the engine.
type Runner struct {
	store  repository.Store
	engine Recomputer
	log    logger.Logger
}

// NewRunner builds a Runner.
func NewRunner(store repository.Store, engine Recomputer) *Runner {
	return &Runner{store: store, engine: engine, log: logger.Named("synth")}
}

// Run seeds cfg.NumSubjects synthetic subjects. Subjects are seeded one at
// a time, each written completely before the next begins, so an interrupted
// run never leaves a subject with half its signals.
func (r *Runner) Run(ctx context.Context, cfg *Config) (*Stats, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	part := repository.Production()
	if cfg.Sandbox != nil {
		part = repository.Sandbox(*cfg.Sandbox)
	}

	stats := &Stats{StartTime: time.Now()}
	r.log.Info(ctx, "seeding synthetic subjects",
		logger.Int("count", cfg.NumSubjects),
		logger.Bool("sandbox", part.IsSandbox()))

	touched := map[model.ScopeKind]map[string]struct{}{}
	for i := 0; i < cfg.NumSubjects; i++ {
		select {
		case <-ctx.Done():
			stats.EndTime = time.Now()
			return stats, fmt.Errorf("seeding cancelled after %d subjects: %w", i, ctx.Err())
		default:
		}

		p := generateProfile(time.Now().UTC())
		if err := r.seedSubject(ctx, p, part, stats); err != nil {
			stats.EndTime = time.Now()
			return stats, fmt.Errorf("seed subject %s: %w", p.subjectID, err)
		}
		if err := r.scoreSubject(ctx, p.subjectID, cfg.Sandbox, stats); err != nil {
			stats.EndTime = time.Now()
			return stats, fmt.Errorf("score subject %s: %w", p.subjectID, err)
		}
		markScopes(touched, p.scope)
		stats.SubjectsSeeded++
	}

	if cfg.RecomputeBaselines {
		r.recomputeBaselines(ctx, touched, part)
	}

	stats.EndTime = time.Now()
	r.log.Info(ctx, "seeding complete",
		logger.Int("subjects", stats.SubjectsSeeded),
		logger.Int("snapshots", stats.SnapshotsComputed),
		logger.Any("duration", stats.Duration().String()))
	return stats, nil
}

// seedSubject writes every signal row for one subject.
func (r *Runner) seedSubject(ctx context.Context, p subjectProfile, part repository.Partition, stats *Stats) error {
	for _, rec := range p.employments {
		if err := r.store.AddEmployment(ctx, p.subjectID, rec, part); err != nil {
			return err
		}
		stats.EmploymentsWritten++
	}
	for i, rating := range p.ratings {
		if err := r.store.AddReference(ctx, p.subjectID, p.sources[i], rating, part); err != nil {
			return err
		}
		stats.ReferencesWritten++
	}
	for i := 0; i < p.disputes; i++ {
		if err := r.store.AddDispute(ctx, p.subjectID, i < p.disputeResolved, part); err != nil {
			return err
		}
		stats.DisputesWritten++
	}
	if p.hasRehireFlag {
		if err := r.store.SetRehireFlag(ctx, p.subjectID, p.scope.EmployerID, p.rehireEligible, part); err != nil {
			return err
		}
	}
	for i := 0; i < p.fraudFlags; i++ {
		if err := r.store.AddFraudFlag(ctx, p.subjectID, part); err != nil {
			return err
		}
		stats.FraudFlagsWritten++
	}
	return r.store.PutBehavioral(ctx, p.subjectID, p.behavioral, p.scope, part)
}

// scoreSubject recomputes every score kind for one subject.
func (r *Runner) scoreSubject(ctx context.Context, subjectID string, sbx *model.SandboxContext, stats *Stats) error {
	for _, kind := range model.Kinds() {
		_, err := r.engine.Recompute(ctx, service.RecomputeRequest{
			SubjectID:   subjectID,
			Kind:        kind,
			Trigger:     model.TriggerManual,
			Reason:      "synthetic subject seeded",
			TriggeredBy: "system:synth",
			Sandbox:     sbx,
		})
		if err != nil {
			return err
		}
		stats.SnapshotsComputed++
	}
	return nil
}

func markScopes(touched map[model.ScopeKind]map[string]struct{}, scope model.ScopeRefs) {
	add := func(kind model.ScopeKind, id string) {
		if id == "" {
			return
		}
		if touched[kind] == nil {
			touched[kind] = map[string]struct{}{}
		}
		touched[kind][id] = struct{}{}
	}
	add(model.ScopeRole, scope.Role)
	add(model.ScopeSubIndustry, scope.SubIndustry)
	add(model.ScopeIndustry, scope.Industry)
	add(model.ScopeEmployer, scope.EmployerID)
}

// recomputeBaselines re-averages every scope the run touched. Failures are
// logged and skipped; a missing baseline only costs alignment sharpness.
func (r *Runner) recomputeBaselines(ctx context.Context, touched map[model.ScopeKind]map[string]struct{}, part repository.Partition) {
	for kind, ids := range touched {
		for id := range ids {
			if _, err := r.store.RecomputeBaseline(ctx, kind, id, part); err != nil {
				r.log.Warn(ctx, "baseline recompute failed",
					logger.String("scope", string(kind)),
					logger.String("scopeId", id),
					logger.Error(err))
			}
		}
	}
}
