// Package pgstore keeps each collection in its own PostgreSQL table of JSONB
// documents.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"citygate/internal/storage"
)

const (
	codeUndefinedTable  = "42P01"
	codeDuplicateTable  = "42P07"
	codeUniqueViolation = "23505"
	classInvalidAuth    = "28"
)

// Store implements storage.Backend on a *sql.DB.
type Store struct {
	db *sql.DB
}

// New wraps db. The store owns db and closes it on Close.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, collection, key string) ([]byte, error) {
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE key = $1`, pq.QuoteIdentifier(collection))
	var doc []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || hasCode(err, codeUndefinedTable) {
			return nil, storage.ErrNotFound
		}
		return nil, translate(fmt.Errorf("get document: %w", err))
	}
	return doc, nil
}

func (s *Store) Put(ctx context.Context, collection, key string, doc []byte, createOnly bool) error {
	table := pq.QuoteIdentifier(collection)
	if !createOnly {
		query := fmt.Sprintf(`
			INSERT INTO %s (key, doc, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (key) DO UPDATE SET
				doc = EXCLUDED.doc,
				updated_at = EXCLUDED.updated_at
		`, table)
		if _, err := s.db.ExecContext(ctx, query, key, doc); err != nil {
			return translate(fmt.Errorf("upsert document: %w", err))
		}
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (key, doc, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO NOTHING
	`, table)
	res, err := s.db.ExecContext(ctx, query, key, doc)
	if err != nil {
		return translate(fmt.Errorf("create document: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create document rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrAlreadyExists
	}
	return nil
}

func (s *Store) CollectionExists(ctx context.Context, collection string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT to_regclass($1) IS NOT NULL`, pq.QuoteIdentifier(collection)).Scan(&exists)
	if err != nil {
		return false, translate(fmt.Errorf("check collection: %w", err))
	}
	return exists, nil
}

// CreateCollection creates the backing table. The schema is descriptive only;
// documents are stored as JSONB regardless.
func (s *Store) CreateCollection(ctx context.Context, collection string, _ storage.Schema) error {
	query := fmt.Sprintf(`
		CREATE TABLE %s (
			key        TEXT PRIMARY KEY,
			doc        JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`, pq.QuoteIdentifier(collection))
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		// Concurrent CREATE TABLE can also surface as a pg_type unique violation.
		if hasCode(err, codeDuplicateTable) || hasCode(err, codeUniqueViolation) {
			return storage.ErrAlreadyExists
		}
		return translate(fmt.Errorf("create collection: %w", err))
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return translate(s.db.PingContext(ctx))
}

func (s *Store) Close() error {
	return s.db.Close()
}

func hasCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}

// translate tags credential failures (SQLSTATE class 28).
func translate(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == classInvalidAuth {
		return storage.NewTransportError(storage.KindAuthRejected, err)
	}
	return err
}
