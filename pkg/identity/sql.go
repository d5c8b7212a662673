package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/titlevault/pkg/property"
)

// SQLDirectory reads the users table via database/sql (Postgres or SQLite).
type SQLDirectory struct {
	db *sql.DB
}

func NewSQLDirectory(db *sql.DB) *SQLDirectory {
	return &SQLDirectory{db: db}
}

const usersSchema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	role TEXT NOT NULL,
	national_id TEXT NOT NULL DEFAULT '',
	employee_id TEXT NOT NULL DEFAULT '',
	wallet_address TEXT UNIQUE,
	created_at TIMESTAMP NOT NULL
);
`

func (d *SQLDirectory) Init(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, usersSchema)
	return err
}

// Put inserts or replaces u.
func (d *SQLDirectory) Put(ctx context.Context, u User) error {
	w, err := normalizeWallet(u.Wallet)
	if err != nil {
		return err
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO users (id, name, role, national_id, employee_id, wallet_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, role = excluded.role, national_id = excluded.national_id,
			employee_id = excluded.employee_id, wallet_address = excluded.wallet_address
	`
	_, err = d.db.ExecContext(ctx, query, u.ID, u.Name, u.Role, u.NationalID, u.EmployeeID, w, u.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (d *SQLDirectory) LookupByWallet(ctx context.Context, addr string) (Profile, error) {
	w, err := normalizeWallet(addr)
	if err != nil {
		return Profile{}, err
	}
	query := `
		SELECT id, name, role, national_id, employee_id, wallet_address, created_at
		FROM users
		WHERE wallet_address = $1
	`
	var u User
	err = d.db.QueryRowContext(ctx, query, w).
		Scan(&u.ID, &u.Name, &u.Role, &u.NationalID, &u.EmployeeID, &u.Wallet, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, fmt.Errorf("%w: no user for wallet %s", property.ErrNotFound, w)
		}
		return Profile{}, err
	}
	return u.Profile(), nil
}
