package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/reputor/reputor/internal/adapters/repository"
	"github.com/reputor/reputor/internal/domain/model"
	"github.com/reputor/reputor/pkg/logger"
)

// Signals loads the raw facts for one subject from the partition. Absent
// tables degrade to zero-signal families with a warning; only a dead
// database marks the whole result unavailable, and even that is not an
// error so downstream can fall back to neutral.
func (s *Store) Signals(ctx context.Context, subjectID, counterpartyID string, part repository.Partition) (model.SubjectSignals, error) {
	out := model.SubjectSignals{SubjectID: subjectID, CounterpartyID: counterpartyID}

	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Warn(ctx, "signal storage unavailable", logger.String("subject_id", subjectID), logger.Error(err))
		out.Unavailable = true
		return out, nil
	}

	sandbox := part.SandboxID()

	if s.tableExists(ctx, "employment_records") {
		if err := s.loadEmployments(ctx, &out, sandbox); err != nil {
			s.logger.Warn(ctx, "employment signals degraded to zero", logger.String("subject_id", subjectID), logger.Error(err))
		}
	} else {
		s.logger.Warn(ctx, "employment_records table absent; zero-signal fallback", logger.String("subject_id", subjectID))
	}

	if s.tableExists(ctx, "reference_records") {
		if err := s.loadReferences(ctx, &out, sandbox); err != nil {
			s.logger.Warn(ctx, "reference signals degraded to zero", logger.String("subject_id", subjectID), logger.Error(err))
		}
	} else {
		s.logger.Warn(ctx, "reference_records table absent; zero-signal fallback", logger.String("subject_id", subjectID))
	}

	if s.tableExists(ctx, "dispute_records") {
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(1), COALESCE(SUM(resolved), 0) FROM dispute_records WHERE subject_id=? AND sandbox_id=?`,
			subjectID, sandbox).Scan(&out.DisputeCount, &out.DisputeResolvedCount); err != nil {
			s.logger.Warn(ctx, "dispute signals degraded to zero", logger.String("subject_id", subjectID), logger.Error(err))
		}
	}

	if s.tableExists(ctx, "rehire_flags") {
		// Rehire flags are keyed by (subject, employer); a pairwise read
		// narrows them to the counterparty employer.
		query := `SELECT COUNT(1), COALESCE(SUM(eligible), 0) FROM rehire_flags WHERE subject_id=? AND sandbox_id=?`
		args := []any{subjectID, sandbox}
		if counterpartyID != "" {
			query += ` AND employer_id=?`
			args = append(args, counterpartyID)
		}
		if err := s.db.QueryRowContext(ctx, query, args...).Scan(&out.RehireFlagCount, &out.RehireEligibleCount); err != nil {
			s.logger.Warn(ctx, "rehire signals degraded to zero", logger.String("subject_id", subjectID), logger.Error(err))
		}
	}

	if s.tableExists(ctx, "fraud_flags") {
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM fraud_flags WHERE subject_id=? AND sandbox_id=?`,
			subjectID, sandbox).Scan(&out.FraudFlagCount); err != nil {
			s.logger.Warn(ctx, "fraud signals degraded to zero", logger.String("subject_id", subjectID), logger.Error(err))
		}
	}

	if s.tableExists(ctx, "behavioral_vectors") {
		if err := s.loadBehavioral(ctx, &out, sandbox); err != nil {
			s.logger.Warn(ctx, "behavioral signals degraded to absent", logger.String("subject_id", subjectID), logger.Error(err))
		}
	}

	return out, nil
}

func (s *Store) loadEmployments(ctx context.Context, out *model.SubjectSignals, sandbox string) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, employer_id, start_at, end_at, verified
		 FROM employment_records WHERE subject_id=? AND sandbox_id=?`,
		out.SubjectID, sandbox)
	if err != nil {
		return fmt.Errorf("query employments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec      model.EmploymentRecord
			startRaw string
			endRaw   sql.NullString
			verified int
		)
		if err := rows.Scan(&rec.ID, &rec.EmployerID, &startRaw, &endRaw, &verified); err != nil {
			return fmt.Errorf("scan employment: %w", err)
		}
		rec.Start, err = time.Parse(time.RFC3339Nano, startRaw)
		if err != nil {
			return fmt.Errorf("parse start: %w", err)
		}
		if endRaw.Valid {
			end, err := time.Parse(time.RFC3339Nano, endRaw.String)
			if err != nil {
				return fmt.Errorf("parse end: %w", err)
			}
			rec.End = &end
		}
		rec.Verified = verified != 0
		if rec.Verified {
			out.VerifiedEmploymentCount++
		}
		out.Employments = append(out.Employments, rec)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate employments: %w", err)
	}
	return nil
}

func (s *Store) loadReferences(ctx context.Context, out *model.SubjectSignals, sandbox string) error {
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1), COALESCE(AVG(rating), 0), COUNT(DISTINCT source_id)
		 FROM reference_records WHERE subject_id=? AND sandbox_id=?`,
		out.SubjectID, sandbox).Scan(&out.ReferenceCount, &out.AverageRating, &out.DistinctSources)
	if err != nil {
		return fmt.Errorf("query references: %w", err)
	}
	return nil
}

func (s *Store) loadBehavioral(ctx context.Context, out *model.SubjectSignals, sandbox string) error {
	var dimsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT dims_json, role, sub_industry, industry, employer_id
		 FROM behavioral_vectors WHERE subject_id=? AND sandbox_id=?`,
		out.SubjectID, sandbox).Scan(&dimsJSON, &out.Scope.Role, &out.Scope.SubIndustry, &out.Scope.Industry, &out.Scope.EmployerID)
	if err == sql.ErrNoRows {
		return nil // no behavioral vector is a valid zero-signal state
	}
	if err != nil {
		return fmt.Errorf("query behavioral: %w", err)
	}
	var dims [model.BehavioralDimensions]float64
	if err := json.Unmarshal([]byte(dimsJSON), &dims); err != nil {
		return fmt.Errorf("decode behavioral dims: %w", err)
	}
	out.Behavioral = model.FromDimensions(dims)
	out.HasBehavioral = true
	return nil
}

// SubjectIDs lists every subject that has any signal row in the partition.
func (s *Store) SubjectIDs(ctx context.Context, part repository.Partition) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT subject_id FROM employment_records WHERE sandbox_id=?
		 UNION SELECT subject_id FROM reference_records WHERE sandbox_id=?
		 UNION SELECT subject_id FROM behavioral_vectors WHERE sandbox_id=?`,
		part.SandboxID(), part.SandboxID(), part.SandboxID())
	if err != nil {
		return nil, fmt.Errorf("query subjects: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subjects: %w", err)
	}
	return ids, nil
}

// AddEmployment seeds one employment record.
func (s *Store) AddEmployment(ctx context.Context, subjectID string, rec model.EmploymentRecord, part repository.Partition) error {
	id := rec.ID
	if id == "" {
		id = uuid.New().String()
	}
	var end any
	if rec.End != nil {
		end = rec.End.UTC().Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO employment_records (id, subject_id, employer_id, start_at, end_at, verified, sandbox_id, sandbox_expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, subjectID, rec.EmployerID, rec.Start.UTC().Format(time.RFC3339Nano), end,
		boolInt(rec.Verified), part.SandboxID(), expiryValue(part.ExpiresAt()))
	if err != nil {
		return fmt.Errorf("insert employment: %w", err)
	}
	return nil
}

// AddReference seeds one peer reference.
func (s *Store) AddReference(ctx context.Context, subjectID, sourceID string, rating float64, part repository.Partition) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reference_records (id, subject_id, source_id, rating, sandbox_id, sandbox_expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), subjectID, sourceID, rating, part.SandboxID(), expiryValue(part.ExpiresAt()))
	if err != nil {
		return fmt.Errorf("insert reference: %w", err)
	}
	return nil
}

// AddDispute seeds one dispute record.
func (s *Store) AddDispute(ctx context.Context, subjectID string, resolved bool, part repository.Partition) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dispute_records (id, subject_id, resolved, sandbox_id, sandbox_expires_at)
		 VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), subjectID, boolInt(resolved), part.SandboxID(), expiryValue(part.ExpiresAt()))
	if err != nil {
		return fmt.Errorf("insert dispute: %w", err)
	}
	return nil
}

// SetRehireFlag upserts the rehire-eligibility flag for (subject, employer).
func (s *Store) SetRehireFlag(ctx context.Context, subjectID, employerID string, eligible bool, part repository.Partition) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rehire_flags (subject_id, employer_id, eligible, sandbox_id, sandbox_expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (subject_id, employer_id, sandbox_id) DO UPDATE SET eligible=excluded.eligible`,
		subjectID, employerID, boolInt(eligible), part.SandboxID(), expiryValue(part.ExpiresAt()))
	if err != nil {
		return fmt.Errorf("upsert rehire flag: %w", err)
	}
	return nil
}

// AddFraudFlag seeds one fraud indicator.
func (s *Store) AddFraudFlag(ctx context.Context, subjectID string, part repository.Partition) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fraud_flags (id, subject_id, sandbox_id, sandbox_expires_at) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), subjectID, part.SandboxID(), expiryValue(part.ExpiresAt()))
	if err != nil {
		return fmt.Errorf("insert fraud flag: %w", err)
	}
	return nil
}

// PutBehavioral upserts the subject's behavioral vector and scope refs.
func (s *Store) PutBehavioral(ctx context.Context, subjectID string, vec model.BehavioralVector, scope model.ScopeRefs, part repository.Partition) error {
	dims := vec.Dimensions()
	raw, err := json.Marshal(dims)
	if err != nil {
		return fmt.Errorf("encode behavioral dims: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO behavioral_vectors (subject_id, dims_json, role, sub_industry, industry, employer_id, sandbox_id, sandbox_expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (subject_id, sandbox_id) DO UPDATE SET
		   dims_json=excluded.dims_json, role=excluded.role, sub_industry=excluded.sub_industry,
		   industry=excluded.industry, employer_id=excluded.employer_id,
		   sandbox_expires_at=excluded.sandbox_expires_at`,
		subjectID, string(raw), scope.Role, scope.SubIndustry, scope.Industry, scope.EmployerID,
		part.SandboxID(), expiryValue(part.ExpiresAt()))
	if err != nil {
		return fmt.Errorf("upsert behavioral: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
