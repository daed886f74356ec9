package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/reputor/reputor/internal/adapters/repository"
	"github.com/reputor/reputor/internal/domain/baseline"
	"github.com/reputor/reputor/internal/domain/model"
)

// scopeColumn maps a baseline scope onto the behavioral_vectors column that
// defines membership in it.
func scopeColumn(scope model.ScopeKind) (string, error) {
	switch scope {
	case model.ScopeRole:
		return "role", nil
	case model.ScopeSubIndustry:
		return "sub_industry", nil
	case model.ScopeIndustry:
		return "industry", nil
	case model.ScopeEmployer:
		return "employer_id", nil
	}
	return "", fmt.Errorf("unknown baseline scope %q", scope)
}

// Baseline returns the stored baseline for a scope, or ErrNotFound.
func (s *Store) Baseline(ctx context.Context, scope model.ScopeKind, scopeID string, part repository.Partition) (model.BehavioralBaseline, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT dims_json, sample_count, computed_at FROM behavioral_baselines
		 WHERE scope=? AND scope_id=? AND sandbox_id=?`,
		string(scope), scopeID, part.SandboxID())

	var (
		dimsJSON    string
		sampleCount int
		computedRaw string
	)
	err := row.Scan(&dimsJSON, &sampleCount, &computedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.BehavioralBaseline{}, repository.ErrNotFound
	}
	if err != nil {
		return model.BehavioralBaseline{}, fmt.Errorf("scan baseline: %w", err)
	}

	var dims [model.BehavioralDimensions]float64
	if err := json.Unmarshal([]byte(dimsJSON), &dims); err != nil {
		return model.BehavioralBaseline{}, fmt.Errorf("decode baseline dims: %w", err)
	}
	computedAt, err := time.Parse(time.RFC3339Nano, computedRaw)
	if err != nil {
		return model.BehavioralBaseline{}, fmt.Errorf("parse computed_at: %w", err)
	}
	return model.BehavioralBaseline{
		Scope:       scope,
		ScopeID:     scopeID,
		Vector:      model.FromDimensions(dims),
		SampleCount: sampleCount,
		ComputedAt:  computedAt,
	}, nil
}

// UpsertBaseline overwrites the baseline row for a scope.
func (s *Store) UpsertBaseline(ctx context.Context, b model.BehavioralBaseline, part repository.Partition) error {
	dims := b.Vector.Dimensions()
	raw, err := json.Marshal(dims)
	if err != nil {
		return fmt.Errorf("encode baseline dims: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO behavioral_baselines (scope, scope_id, dims_json, sample_count, computed_at, sandbox_id, sandbox_expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (scope, scope_id, sandbox_id) DO UPDATE SET
		   dims_json=excluded.dims_json, sample_count=excluded.sample_count,
		   computed_at=excluded.computed_at, sandbox_expires_at=excluded.sandbox_expires_at`,
		string(b.Scope), b.ScopeID, string(raw), b.SampleCount,
		b.ComputedAt.UTC().Format(time.RFC3339Nano), part.SandboxID(), expiryValue(part.ExpiresAt()))
	if err != nil {
		return fmt.Errorf("upsert baseline: %w", err)
	}
	return nil
}

// RecomputeBaseline re-averages the behavioral vectors of the scope's
// current members and upserts the result. An empty scope removes nothing
// and returns ErrNotFound.
func (s *Store) RecomputeBaseline(ctx context.Context, scope model.ScopeKind, scopeID string, part repository.Partition) (model.BehavioralBaseline, error) {
	column, err := scopeColumn(scope)
	if err != nil {
		return model.BehavioralBaseline{}, err
	}

	//nolint:gosec // column comes from the closed scopeColumn mapping
	rows, err := s.db.QueryContext(ctx,
		`SELECT dims_json FROM behavioral_vectors WHERE `+column+`=? AND sandbox_id=?`,
		scopeID, part.SandboxID())
	if err != nil {
		return model.BehavioralBaseline{}, fmt.Errorf("query scope members: %w", err)
	}
	defer rows.Close()

	var vectors []model.BehavioralVector
	for rows.Next() {
		var dimsJSON string
		if err := rows.Scan(&dimsJSON); err != nil {
			return model.BehavioralBaseline{}, fmt.Errorf("scan member: %w", err)
		}
		var dims [model.BehavioralDimensions]float64
		if err := json.Unmarshal([]byte(dimsJSON), &dims); err != nil {
			return model.BehavioralBaseline{}, fmt.Errorf("decode member dims: %w", err)
		}
		vectors = append(vectors, model.FromDimensions(dims))
	}
	if err := rows.Err(); err != nil {
		return model.BehavioralBaseline{}, fmt.Errorf("iterate members: %w", err)
	}

	b, ok := baseline.Compute(scope, scopeID, vectors, s.clock().UTC())
	if !ok {
		return model.BehavioralBaseline{}, repository.ErrNotFound
	}
	if err := s.UpsertBaseline(ctx, b, part); err != nil {
		return model.BehavioralBaseline{}, err
	}
	return b, nil
}
