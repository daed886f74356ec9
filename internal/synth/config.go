// Package synth seeds synthetic subjects with plausible signal histories
// and recomputes their scores so a fresh database has data worth looking at.
package synth

import (
	"time"

	"github.com/reputor/reputor/internal/domain/model"
)

// Config controls a seeding run.
type Config struct {
	// NumSubjects is how many synthetic subjects to create.
	NumSubjects int

	// Sandbox, when set, confines every written row and every recompute
	// to that isolation id. Nil seeds production.
	Sandbox *model.SandboxContext

	// RecomputeBaselines re-averages the touched scope baselines after
	// all subjects are seeded.
	RecomputeBaselines bool

	// Timeout bounds the whole run.
	Timeout time.Duration
}

// Stats accumulates what a run produced.
type Stats struct {
	SubjectsSeeded     int
	EmploymentsWritten int
	ReferencesWritten  int
	DisputesWritten    int
	FraudFlagsWritten  int
	SnapshotsComputed  int
	StartTime          time.Time
	EndTime            time.Time
}

// Duration returns the wall time of the run.
func (s *Stats) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}
