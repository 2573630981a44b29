package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"aurum/internal/token/models"
	"aurum/pkg/domain"
	"aurum/pkg/platform/sentinel"
)

// PostgresStore persists tokens in PostgreSQL. Supplies and ratios are stored
// as decimal text so no precision is lost crossing the driver.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const createTokensTableSQL = `
CREATE TABLE IF NOT EXISTS tokens (
	token_id           UUID PRIMARY KEY,
	name               TEXT NOT NULL,
	symbol             TEXT NOT NULL,
	decimals           INT NOT NULL,
	asset_type         TEXT NOT NULL,
	backing_asset_id   TEXT NOT NULL,
	total_supply       TEXT NOT NULL,
	circulating_supply TEXT NOT NULL,
	max_supply         TEXT,
	reserve_ratio      TEXT NOT NULL,
	reserve_type       TEXT,
	custody_type       TEXT,
	status             TEXT NOT NULL,
	compliance_info    JSONB NOT NULL DEFAULT '{}',
	audit_info         JSONB NOT NULL DEFAULT '{}',
	metadata           JSONB NOT NULL DEFAULT '{}',
	version            BIGINT NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS tokens_symbol_idx ON tokens (lower(symbol))`

// EnsureSchema creates the tokens table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTokensTableSQL); err != nil {
		return fmt.Errorf("create tokens table: %w", err)
	}
	return nil
}

const tokenColumns = `token_id, name, symbol, decimals, asset_type, backing_asset_id,
	total_supply, circulating_supply, max_supply, reserve_ratio, reserve_type,
	custody_type, status, compliance_info, audit_info, metadata, version,
	created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, token *models.Token) error {
	complianceInfo, auditInfo, metadata, err := marshalTokenDocs(token)
	if err != nil {
		return err
	}

	var maxSupply sql.NullString
	if token.MaxSupply != nil {
		maxSupply = sql.NullString{String: token.MaxSupply.String(), Valid: true}
	}
	if token.Version == 0 {
		token.Version = 1
	}

	query := `
		INSERT INTO tokens (` + tokenColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, now(), now())
	`
	_, err = s.db.ExecContext(ctx, query,
		token.ID.String(), token.Name, token.Symbol, token.Decimals,
		token.AssetType, token.BackingAssetID,
		token.TotalSupply.String(), token.CirculatingSupply.String(), maxSupply,
		token.ReserveRatio.String(), token.ReserveType, token.CustodyType,
		string(token.Status), complianceInfo, auditInfo, metadata, token.Version,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create token: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id domain.TokenID) (*models.Token, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE token_id = $1`, id.String())
	return scanToken(row)
}

func (s *PostgresStore) Update(ctx context.Context, token *models.Token) error {
	complianceInfo, auditInfo, metadata, err := marshalTokenDocs(token)
	if err != nil {
		return err
	}

	var maxSupply sql.NullString
	if token.MaxSupply != nil {
		maxSupply = sql.NullString{String: token.MaxSupply.String(), Valid: true}
	}

	query := `
		UPDATE tokens SET
			name = $2, decimals = $3,
			total_supply = $4, circulating_supply = $5, max_supply = $6,
			reserve_ratio = $7, reserve_type = $8, custody_type = $9,
			status = $10, compliance_info = $11, audit_info = $12, metadata = $13,
			version = version + 1, updated_at = now()
		WHERE token_id = $1 AND version = $14
	`
	res, err := s.db.ExecContext(ctx, query,
		token.ID.String(), token.Name, token.Decimals,
		token.TotalSupply.String(), token.CirculatingSupply.String(), maxSupply,
		token.ReserveRatio.String(), token.ReserveType, token.CustodyType,
		string(token.Status), complianceInfo, auditInfo, metadata, token.Version,
	)
	if err != nil {
		return fmt.Errorf("update token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update token: %w", err)
	}
	if affected == 0 {
		// Either the row is missing or the version is stale.
		if _, getErr := s.Get(ctx, token.ID); errors.Is(getErr, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	token.Version++
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id domain.TokenID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE token_id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindBySymbol(ctx context.Context, symbol string) (*models.Token, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE lower(symbol) = lower($1)`, symbol)
	return scanToken(row)
}

func (s *PostgresStore) FindByAssetType(ctx context.Context, assetType string) ([]*models.Token, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE lower(asset_type) = lower($1) ORDER BY created_at, symbol`, assetType)
	if err != nil {
		return nil, fmt.Errorf("find tokens by asset type: %w", err)
	}
	defer rows.Close()
	return scanTokens(rows)
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Token, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens ORDER BY created_at, symbol`)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()
	return scanTokens(rows)
}

func marshalTokenDocs(token *models.Token) (complianceInfo, auditInfo, metadata []byte, err error) {
	if complianceInfo, err = json.Marshal(token.ComplianceInfo); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal compliance info: %w", err)
	}
	if auditInfo, err = json.Marshal(token.AuditInfo); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal audit info: %w", err)
	}
	if metadata, err = json.Marshal(token.Metadata); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return complianceInfo, auditInfo, metadata, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*models.Token, error) {
	var (
		token          models.Token
		tokenID        string
		totalSupply    string
		circulating    string
		maxSupply      sql.NullString
		reserveRatio   string
		status         string
		complianceInfo []byte
		auditInfo      []byte
		metadata       []byte
	)
	err := row.Scan(
		&tokenID, &token.Name, &token.Symbol, &token.Decimals,
		&token.AssetType, &token.BackingAssetID,
		&totalSupply, &circulating, &maxSupply,
		&reserveRatio, &token.ReserveType, &token.CustodyType,
		&status, &complianceInfo, &auditInfo, &metadata, &token.Version,
		&token.CreatedAt, &token.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan token: %w", err)
	}

	id, err := domain.ParseTokenID(tokenID)
	if err != nil {
		return nil, fmt.Errorf("stored token id invalid: %w", err)
	}
	token.ID = id
	token.Status = models.Status(status)

	if token.TotalSupply, err = domain.ParseAmount(totalSupply); err != nil {
		return nil, fmt.Errorf("stored total supply invalid: %w", err)
	}
	if token.CirculatingSupply, err = domain.ParseAmount(circulating); err != nil {
		return nil, fmt.Errorf("stored circulating supply invalid: %w", err)
	}
	if maxSupply.Valid {
		max, err := domain.ParseAmount(maxSupply.String)
		if err != nil {
			return nil, fmt.Errorf("stored max supply invalid: %w", err)
		}
		token.MaxSupply = &max
	}
	if token.ReserveRatio, err = domain.ParseAmount(reserveRatio); err != nil {
		return nil, fmt.Errorf("stored reserve ratio invalid: %w", err)
	}

	if err := json.Unmarshal(complianceInfo, &token.ComplianceInfo); err != nil {
		return nil, fmt.Errorf("unmarshal compliance info: %w", err)
	}
	if err := json.Unmarshal(auditInfo, &token.AuditInfo); err != nil {
		return nil, fmt.Errorf("unmarshal audit info: %w", err)
	}
	if err := json.Unmarshal(metadata, &token.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &token, nil
}

func scanTokens(rows *sql.Rows) ([]*models.Token, error) {
	var out []*models.Token
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tokens: %w", err)
	}
	return out, nil
}
