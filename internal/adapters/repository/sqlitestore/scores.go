package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/reputor/reputor/internal/adapters/repository"
	"github.com/reputor/reputor/internal/domain/model"
)

// Snapshot returns the current score row for the key, or ErrNotFound.
func (s *Store) Snapshot(ctx context.Context, subjectID string, kind model.ScoreKind, counterpartyID string, part repository.Partition) (model.ScoreSnapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT subject_id, kind, counterparty_id, composite, breakdown_json, model_version, degraded, computed_at, sandbox_id, sandbox_expires_at
		 FROM score_snapshots
		 WHERE subject_id=? AND kind=? AND counterparty_id=? AND sandbox_id=?`,
		subjectID, string(kind), counterpartyID, part.SandboxID())

	var (
		snap       model.ScoreSnapshot
		kindRaw    string
		breakdown  string
		degraded   int
		computedAt string
		expiresRaw sql.NullString
	)
	err := row.Scan(&snap.SubjectID, &kindRaw, &snap.CounterpartyID, &snap.Composite,
		&breakdown, &snap.ModelVersion, &degraded, &computedAt, &snap.SandboxID, &expiresRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ScoreSnapshot{}, repository.ErrNotFound
	}
	if err != nil {
		return model.ScoreSnapshot{}, fmt.Errorf("scan snapshot: %w", err)
	}

	snap.Kind = model.ScoreKind(kindRaw)
	snap.Degraded = degraded != 0
	if err := json.Unmarshal([]byte(breakdown), &snap.Breakdown); err != nil {
		return model.ScoreSnapshot{}, fmt.Errorf("decode breakdown: %w", err)
	}
	snap.ComputedAt, err = time.Parse(time.RFC3339Nano, computedAt)
	if err != nil {
		return model.ScoreSnapshot{}, fmt.Errorf("parse computed_at: %w", err)
	}
	if expiresRaw.Valid {
		exp, err := time.Parse(time.RFC3339Nano, expiresRaw.String)
		if err != nil {
			return model.ScoreSnapshot{}, fmt.Errorf("parse sandbox expiry: %w", err)
		}
		snap.SandboxExpiresAt = &exp
	}
	return snap, nil
}

// UpsertSnapshot overwrites the row for the snapshot's key. Last write wins;
// superseded values live only in the history table.
func (s *Store) UpsertSnapshot(ctx context.Context, snap model.ScoreSnapshot, part repository.Partition) error {
	breakdown, err := json.Marshal(snap.Breakdown)
	if err != nil {
		return fmt.Errorf("encode breakdown: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO score_snapshots (subject_id, kind, counterparty_id, composite, breakdown_json, model_version, degraded, computed_at, sandbox_id, sandbox_expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (subject_id, kind, counterparty_id, sandbox_id) DO UPDATE SET
		   composite=excluded.composite, breakdown_json=excluded.breakdown_json,
		   model_version=excluded.model_version, degraded=excluded.degraded,
		   computed_at=excluded.computed_at, sandbox_expires_at=excluded.sandbox_expires_at`,
		snap.SubjectID, string(snap.Kind), snap.CounterpartyID, snap.Composite, string(breakdown),
		snap.ModelVersion, boolInt(snap.Degraded), snap.ComputedAt.UTC().Format(time.RFC3339Nano),
		part.SandboxID(), expiryValue(part.ExpiresAt()))
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// AppendHistory inserts one audit row. The table is append-only; nothing in
// the engine updates or deletes here.
func (s *Store) AppendHistory(ctx context.Context, entry model.ScoreHistoryEntry, part repository.Partition) error {
	id := entry.ID
	if id == "" {
		id = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO score_history (id, subject_id, kind, counterparty_id, previous_value, new_value, delta, reason, triggered_by, trigger_type, sandbox_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, entry.SubjectID, string(entry.Kind), entry.CounterpartyID,
		entry.Previous, entry.New, entry.Delta, entry.Reason, entry.TriggeredBy,
		string(entry.Trigger), part.SandboxID(), entry.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// History returns the most recent audit rows for a score key, newest first.
func (s *Store) History(ctx context.Context, subjectID string, kind model.ScoreKind, limit int, part repository.Partition) ([]model.ScoreHistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subject_id, kind, counterparty_id, previous_value, new_value, delta, reason, triggered_by, trigger_type, sandbox_id, created_at
		 FROM score_history
		 WHERE subject_id=? AND kind=? AND sandbox_id=?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		subjectID, string(kind), part.SandboxID(), limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []model.ScoreHistoryEntry
	for rows.Next() {
		var (
			entry      model.ScoreHistoryEntry
			kindRaw    string
			triggerRaw string
			createdRaw string
		)
		if err := rows.Scan(&entry.ID, &entry.SubjectID, &kindRaw, &entry.CounterpartyID,
			&entry.Previous, &entry.New, &entry.Delta, &entry.Reason, &entry.TriggeredBy,
			&triggerRaw, &entry.SandboxID, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		entry.Kind = model.ScoreKind(kindRaw)
		entry.Trigger = model.Trigger(triggerRaw)
		entry.CreatedAt, err = time.Parse(time.RFC3339Nano, createdRaw)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}
