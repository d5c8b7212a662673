package transfercode

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Mindburn-Labs/titlevault/pkg/property"
)

// SQLStore implements Store using database/sql (Postgres or SQLite).
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS transfer_codes (
	code TEXT PRIMARY KEY,
	wallet_address TEXT NOT NULL,
	expires_at TIMESTAMP NOT NULL,
	used BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMP NOT NULL
);
`

func (s *SQLStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLStore) Insert(ctx context.Context, c Code) error {
	query := `
		INSERT INTO transfer_codes (code, wallet_address, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (code) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query, c.Code, c.Wallet, c.ExpiresAt.UTC(), c.Used, c.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert transfer code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: code %s", property.ErrDuplicate, c.Code)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, code string) (Code, error) {
	query := `SELECT code, wallet_address, expires_at, used, created_at FROM transfer_codes WHERE code = $1`
	var c Code
	err := s.db.QueryRowContext(ctx, query, code).Scan(&c.Code, &c.Wallet, &c.ExpiresAt, &c.Used, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Code{}, fmt.Errorf("%w: transfer code %s", property.ErrNotFound, code)
		}
		return Code{}, err
	}
	c.ExpiresAt = c.ExpiresAt.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

func (s *SQLStore) MarkUsed(ctx context.Context, code string) error {
	query := `UPDATE transfer_codes SET used = TRUE WHERE code = $1 AND used = FALSE`
	res, err := s.db.ExecContext(ctx, query, code)
	if err != nil {
		return fmt.Errorf("failed to mark transfer code used: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := s.Get(ctx, code); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", property.ErrCodeUsed, code)
}
