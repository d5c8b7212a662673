package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/titlevault/pkg/property"
)

// SQLRecordStore implements RecordStore using database/sql.
// It supports both Postgres and SQLite via standard drivers. The record
// body is stored as JSON beside the columns used for lookups.
type SQLRecordStore struct {
	db *sql.DB
}

func NewSQLRecordStore(db *sql.DB) *SQLRecordStore {
	return &SQLRecordStore{db: db}
}

const recordSchema = `
CREATE TABLE IF NOT EXISTS property_records (
	content_hash TEXT PRIMARY KEY,
	uploader_id TEXT NOT NULL,
	current_owner_wallet TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	version BIGINT NOT NULL,
	body TEXT NOT NULL
);
`

func (s *SQLRecordStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, recordSchema)
	return err
}

func (s *SQLRecordStore) Get(ctx context.Context, hash string) (property.Record, error) {
	query := `SELECT version, body FROM property_records WHERE content_hash = $1`
	row := s.db.QueryRowContext(ctx, query, hash)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return property.Record{}, fmt.Errorf("%w: record %s", property.ErrNotFound, hash)
		}
		return property.Record{}, err
	}
	return rec, nil
}

func (s *SQLRecordStore) Create(ctx context.Context, rec property.Record) (property.Record, error) {
	rec.Version = 1
	body, err := json.Marshal(rec)
	if err != nil {
		return property.Record{}, fmt.Errorf("marshal record: %w", err)
	}

	query := `
		INSERT INTO property_records (content_hash, uploader_id, current_owner_wallet, created_at, version, body)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (content_hash) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		rec.ContentHash, rec.UploaderID, rec.CurrentOwnerWallet, rec.CreatedAt.UTC(), rec.Version, string(body),
	)
	if err != nil {
		return property.Record{}, fmt.Errorf("failed to insert record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return property.Record{}, err
	}
	if n == 0 {
		return property.Record{}, fmt.Errorf("%w: record %s", property.ErrDuplicate, rec.ContentHash)
	}
	return rec, nil
}

func (s *SQLRecordStore) UpdateIfVersion(ctx context.Context, rec property.Record) (property.Record, error) {
	expected := rec.Version
	rec.Version++
	body, err := json.Marshal(rec)
	if err != nil {
		return property.Record{}, fmt.Errorf("marshal record: %w", err)
	}

	query := `
		UPDATE property_records
		SET current_owner_wallet = $1, version = $2, body = $3
		WHERE content_hash = $4 AND version = $5
	`
	res, err := s.db.ExecContext(ctx, query, rec.CurrentOwnerWallet, rec.Version, string(body), rec.ContentHash, expected)
	if err != nil {
		return property.Record{}, fmt.Errorf("failed to update record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return property.Record{}, err
	}
	if n == 0 {
		if _, err := s.Get(ctx, rec.ContentHash); err != nil {
			return property.Record{}, err
		}
		return property.Record{}, fmt.Errorf("%w: record %s moved past version %d",
			property.ErrConflict, rec.ContentHash, expected)
	}
	return rec, nil
}

func (s *SQLRecordStore) List(ctx context.Context) ([]property.Record, error) {
	query := `SELECT version, body FROM property_records ORDER BY created_at DESC, content_hash ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var recs []property.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (property.Record, error) {
	var (
		version int64
		body    string
	)
	if err := row.Scan(&version, &body); err != nil {
		return property.Record{}, err
	}
	var rec property.Record
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		return property.Record{}, fmt.Errorf("decode record: %w", err)
	}
	rec.Version = version
	normalizeTimes(&rec)
	return rec, nil
}

// normalizeTimes drops monotonic readings and pins zone to UTC so records
// read back compare equal to what was written.
func normalizeTimes(rec *property.Record) {
	for _, t := range []*time.Time{&rec.LastTransferAt, &rec.VerifiedAt, &rec.ChainPushedAt, &rec.CreatedAt} {
		if !t.IsZero() {
			*t = t.UTC()
		}
	}
}
