package service

import (
	"context"
	"fmt"

	"github.com/reputor/reputor/internal/adapters/mq/queue"
	"github.com/reputor/reputor/internal/adapters/repository"
	"github.com/reputor/reputor/internal/domain/model"
	"github.com/reputor/reputor/internal/domain/rules"
	"github.com/reputor/reputor/pkg/logger"
	"github.com/reputor/reputor/pkg/metrics"
)

// CreateRuleSetVersion persists a new immutable rule-set version.
func (s *Service) CreateRuleSetVersion(ctx context.Context, name, tag string, cfg rules.Config) (rules.Version, error) {
	v, err := s.store.CreateVersion(ctx, name, tag, cfg)
	if err != nil {
		return rules.Version{}, err
	}
	metrics.RecordRuleVersionCreated()
	s.logger.Info(ctx, "rule-set version created", logger.String("version", v.Ref()))
	return v, nil
}

// RuleSetVersions lists every version of a rule-set name, newest first.
func (s *Service) RuleSetVersions(ctx context.Context, name string) ([]rules.Version, error) {
	return s.store.ListVersions(ctx, name)
}

// ActivateRuleSet flips the environment's active flag to the given version.
// Exactly one version of the name holds the flag afterwards; the other
// environment's flag is untouched. A production activation triggers a
// background recompute sweep over all known subjects.
func (s *Service) ActivateRuleSet(ctx context.Context, id, environment string) error {
	var err error
	switch environment {
	case EnvSandbox:
		err = s.store.SetActiveSandbox(ctx, id)
	case EnvProduction:
		err = s.store.SetActiveProduction(ctx, id)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEnvironment, environment)
	}
	if err != nil {
		return err
	}
	metrics.RecordRuleActivation(environment)

	v, err := s.store.Version(ctx, id)
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "rule-set version activated",
		logger.String("version", v.Ref()), logger.String("environment", environment))

	if environment == EnvProduction {
		s.sweepAfterActivation(ctx, v)
	}
	return nil
}

// DiffRuleSetVersions structurally compares two tagged versions of a name.
// The high-impact flag is advisory: activation is never blocked here.
func (s *Service) DiffRuleSetVersions(ctx context.Context, name, fromTag, toTag string) ([]rules.Change, bool, error) {
	versions, err := s.store.ListVersions(ctx, name)
	if err != nil {
		return nil, false, err
	}
	var from, to *rules.Version
	for i := range versions {
		switch versions[i].Tag {
		case fromTag:
			from = &versions[i]
		case toTag:
			to = &versions[i]
		}
	}
	if from == nil {
		return nil, false, fmt.Errorf("version %s@%s: %w", name, fromTag, repository.ErrNotFound)
	}
	if to == nil {
		return nil, false, fmt.Errorf("version %s@%s: %w", name, toTag, repository.ErrNotFound)
	}

	changes := rules.Diff(from.Config, to.Config)
	highImpact := rules.Impact(changes) >= s.highImpactThreshold
	if highImpact {
		metrics.RecordHighImpactDiff()
	}
	return changes, highImpact, nil
}

// EnsureRuleSet seeds the engine's rule set with the default configuration
// on first boot: one version tagged v1, active in both environments. A rule
// set that already has versions is left untouched.
func (s *Service) EnsureRuleSet(ctx context.Context) error {
	versions, err := s.store.ListVersions(ctx, s.ruleSetName)
	if err != nil {
		return err
	}
	if len(versions) > 0 {
		return nil
	}
	v, err := s.CreateRuleSetVersion(ctx, s.ruleSetName, "v1", rules.DefaultConfig())
	if err != nil {
		return err
	}
	if err := s.store.SetActiveSandbox(ctx, v.ID); err != nil {
		return err
	}
	if err := s.store.SetActiveProduction(ctx, v.ID); err != nil {
		return err
	}
	metrics.RecordRuleActivation(EnvSandbox)
	metrics.RecordRuleActivation(EnvProduction)
	s.logger.Info(ctx, "seeded default rule set", logger.String("version", v.Ref()))
	return nil
}

// sweepAfterActivation enqueues a recompute job per subject and score kind
// so production scores converge onto the newly active version. Backpressure
// drops are logged; the next trigger for a dropped subject will catch up.
func (s *Service) sweepAfterActivation(ctx context.Context, v rules.Version) {
	if s.sweepQueue == nil {
		return
	}
	subjects, err := s.store.SubjectIDs(ctx, repository.Production())
	if err != nil {
		s.logger.Error(ctx, "sweep aborted: cannot list subjects", logger.Error(err))
		metrics.RecordErrorByComponent("sweep", "list_subjects")
		return
	}
	reason := "rule-set version activated: " + v.Ref()
	dropped := 0
	for _, subjectID := range subjects {
		for _, kind := range model.Kinds() {
			ok := s.sweepQueue.Enqueue(ctx, queue.Job{
				SubjectID:   subjectID,
				Kind:        kind,
				Trigger:     model.TriggerRuleSetActivated,
				Reason:      reason,
				TriggeredBy: "system:activation-sweep",
			})
			if !ok {
				dropped++
			}
		}
	}
	if dropped > 0 {
		s.logger.Warn(ctx, "sweep queue backpressure; some jobs dropped",
			logger.Int("dropped", dropped), logger.Int("subjects", len(subjects)))
	}
}
