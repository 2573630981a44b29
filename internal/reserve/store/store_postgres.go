package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"aurum/internal/reserve/models"
	"aurum/pkg/domain"
	"aurum/pkg/platform/sentinel"
)

// PostgresStore persists reserve balances. Amounts are stored as text so no
// precision is lost; the audit trail is a jsonb array appended on every update.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const createReserveTableSQL = `
CREATE TABLE IF NOT EXISTS reserve_balances (
	token_id     UUID PRIMARY KEY,
	total        TEXT NOT NULL,
	available    TEXT NOT NULL,
	locked       TEXT NOT NULL,
	unit         TEXT NOT NULL,
	audit_trail  JSONB NOT NULL DEFAULT '[]',
	version      BIGINT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	last_updated TIMESTAMPTZ NOT NULL
)`

// EnsureSchema creates the reserve_balances table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createReserveTableSQL); err != nil {
		return fmt.Errorf("create reserve_balances table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, balance *models.Balance) error {
	if balance.Version == 0 {
		balance.Version = 1
	}
	trail, err := json.Marshal(balance.AuditTrail)
	if err != nil {
		return fmt.Errorf("marshal audit trail: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reserve_balances
			(token_id, total, available, locked, unit, audit_trail, version, created_at, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		balance.TokenID.String(),
		balance.Total.String(),
		balance.Available.String(),
		balance.Locked.String(),
		balance.Unit,
		trail,
		balance.Version,
		balance.CreatedAt,
		balance.LastUpdated,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert reserve balance: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, tokenID domain.TokenID) (*models.Balance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT token_id, total, available, locked, unit, audit_trail, version, created_at, last_updated
		FROM reserve_balances WHERE token_id = $1`,
		tokenID.String(),
	)
	balance, err := scanBalance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reserve balance: %w", err)
	}
	return balance, nil
}

func (s *PostgresStore) Update(ctx context.Context, balance *models.Balance) error {
	trail, err := json.Marshal(balance.AuditTrail)
	if err != nil {
		return fmt.Errorf("marshal audit trail: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE reserve_balances
		SET total = $1, available = $2, locked = $3, audit_trail = $4,
		    version = version + 1, last_updated = NOW()
		WHERE token_id = $5 AND version = $6`,
		balance.Total.String(),
		balance.Available.String(),
		balance.Locked.String(),
		trail,
		balance.TokenID.String(),
		balance.Version,
	)
	if err != nil {
		return fmt.Errorf("update reserve balance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update reserve balance: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing row from a stale version.
		if _, getErr := s.Get(ctx, balance.TokenID); errors.Is(getErr, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	balance.Version++
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Balance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token_id, total, available, locked, unit, audit_trail, version, created_at, last_updated
		FROM reserve_balances ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list reserve balances: %w", err)
	}
	defer rows.Close()

	var out []*models.Balance
	for rows.Next() {
		balance, err := scanBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reserve balance: %w", err)
		}
		out = append(out, balance)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBalance(row rowScanner) (*models.Balance, error) {
	var (
		balance  models.Balance
		id       string
		total    string
		avail    string
		locked   string
		trailRaw []byte
	)
	if err := row.Scan(&id, &total, &avail, &locked, &balance.Unit, &trailRaw,
		&balance.Version, &balance.CreatedAt, &balance.LastUpdated); err != nil {
		return nil, err
	}

	tokenID, err := domain.ParseTokenID(id)
	if err != nil {
		return nil, fmt.Errorf("parse token id %q: %w", id, err)
	}
	balance.TokenID = tokenID

	if balance.Total, err = domain.ParseAmount(total); err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if balance.Available, err = domain.ParseAmount(avail); err != nil {
		return nil, fmt.Errorf("parse available: %w", err)
	}
	if balance.Locked, err = domain.ParseAmount(locked); err != nil {
		return nil, fmt.Errorf("parse locked: %w", err)
	}
	if err := json.Unmarshal(trailRaw, &balance.AuditTrail); err != nil {
		return nil, fmt.Errorf("unmarshal audit trail: %w", err)
	}
	return &balance, nil
}
