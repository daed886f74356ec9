package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/reputor/reputor/internal/adapters/repository"
	"github.com/reputor/reputor/internal/domain/rules"
)

// CreateVersion persists a new immutable rule-set version. The config is
// validated here so a non-normalizable weight vector can never reach the
// composer.
func (s *Store) CreateVersion(ctx context.Context, name, tag string, cfg rules.Config) (rules.Version, error) {
	name = strings.TrimSpace(name)
	tag = strings.TrimSpace(tag)
	if name == "" || tag == "" {
		return rules.Version{}, fmt.Errorf("%w: name and tag are required", rules.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return rules.Version{}, err
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return rules.Version{}, fmt.Errorf("encode config: %w", err)
	}

	v := rules.Version{
		ID:        uuid.New().String(),
		Name:      name,
		Tag:       tag,
		Config:    cfg,
		CreatedAt: s.clock().UTC(),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rule_set_versions (id, name, tag, config_json, active_sandbox, active_production, created_at)
		 VALUES (?, ?, ?, ?, 0, 0, ?)`,
		v.ID, v.Name, v.Tag, string(raw), v.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return rules.Version{}, fmt.Errorf("%w: %s@%s", rules.ErrDuplicateVersion, name, tag)
		}
		return rules.Version{}, fmt.Errorf("insert version: %w", err)
	}
	return v, nil
}

// Version fetches one version by id.
func (s *Store) Version(ctx context.Context, id string) (rules.Version, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, tag, config_json, active_sandbox, active_production, created_at
		 FROM rule_set_versions WHERE id=?`, id)
	return scanVersion(row)
}

// ListVersions returns every version of a rule-set name, newest first.
func (s *Store) ListVersions(ctx context.Context, name string) ([]rules.Version, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, tag, config_json, active_sandbox, active_production, created_at
		 FROM rule_set_versions WHERE name=? ORDER BY created_at DESC`, name)
	if err != nil {
		return nil, fmt.Errorf("query versions: %w", err)
	}
	defer rows.Close()

	var out []rules.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return out, nil
}

// SetActiveSandbox flips the sandbox-active flag to exactly one version of
// its rule-set name, in a single clear-then-set transaction.
func (s *Store) SetActiveSandbox(ctx context.Context, id string) error {
	return s.setActive(ctx, id, "active_sandbox")
}

// SetActiveProduction flips the production-active flag to exactly one
// version of its rule-set name, in a single clear-then-set transaction.
func (s *Store) SetActiveProduction(ctx context.Context, id string) error {
	return s.setActive(ctx, id, "active_production")
}

// setActive runs the clear-then-set inside one transaction so there is no
// window with two or zero active versions of a name.
func (s *Store) setActive(ctx context.Context, id, column string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var name string
	if err := tx.QueryRowContext(ctx, `SELECT name FROM rule_set_versions WHERE id=?`, id).Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("version %s: %w", id, repository.ErrNotFound)
		}
		return fmt.Errorf("lookup version: %w", err)
	}

	//nolint:gosec // column is one of two compile-time constants
	if _, err := tx.ExecContext(ctx, `UPDATE rule_set_versions SET `+column+`=0 WHERE name=?`, name); err != nil {
		return fmt.Errorf("clear active flag: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE rule_set_versions SET `+column+`=1 WHERE id=?`, id); err != nil {
		return fmt.Errorf("set active flag: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit activation: %w", err)
	}
	return nil
}

// ActiveVersion returns the version active for the partition's environment.
func (s *Store) ActiveVersion(ctx context.Context, name string, part repository.Partition) (rules.Version, error) {
	column := "active_production"
	if part.IsSandbox() {
		column = "active_sandbox"
	}
	//nolint:gosec // column is one of two compile-time constants
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, tag, config_json, active_sandbox, active_production, created_at
		 FROM rule_set_versions WHERE name=? AND `+column+`=1`, name)
	return scanVersion(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (rules.Version, error) {
	var (
		v          rules.Version
		configJSON string
		sandbox    int
		production int
		createdRaw string
	)
	err := row.Scan(&v.ID, &v.Name, &v.Tag, &configJSON, &sandbox, &production, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return rules.Version{}, repository.ErrNotFound
	}
	if err != nil {
		return rules.Version{}, fmt.Errorf("scan version: %w", err)
	}
	if err := json.Unmarshal([]byte(configJSON), &v.Config); err != nil {
		return rules.Version{}, fmt.Errorf("decode config: %w", err)
	}
	v.ActiveSandbox = sandbox != 0
	v.ActiveProduction = production != 0
	v.CreatedAt, err = time.Parse(time.RFC3339Nano, createdRaw)
	if err != nil {
		return rules.Version{}, fmt.Errorf("parse created_at: %w", err)
	}
	return v, nil
}
