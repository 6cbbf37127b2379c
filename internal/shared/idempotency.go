package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyStore persists processed keys.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// ErrIdempotencyConflict indicates a duplicate key.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// Reserve claims key for module. A key that was already claimed returns
// ErrIdempotencyConflict.
func (s *IdempotencyStore) Reserve(ctx context.Context, key, module string) error {
	if s == nil {
		return fmt.Errorf("idempotency store: %w", ErrUnavailable)
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`, key, module, time.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

// Complete stores the reference (e.g. an order ID) produced for key.
func (s *IdempotencyStore) Complete(ctx context.Context, key, ref string) error {
	if s == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `UPDATE idempotency_keys SET result_ref=$2 WHERE key=$1`, key, ref)
	return err
}

// Lookup returns the reference stored for key. An unfinished or unknown key
// returns an empty reference.
func (s *IdempotencyStore) Lookup(ctx context.Context, key string) (string, error) {
	if s == nil {
		return "", nil
	}
	var ref *string
	err := s.pool.QueryRow(ctx, `SELECT result_ref FROM idempotency_keys WHERE key=$1`, key).Scan(&ref)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil || ref == nil {
		return "", err
	}
	return *ref, nil
}

// Cleanup removes entries older than retention and reports how many were removed.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Delete removes a key, typically used to roll back failed processing.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	if s == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key=$1`, key)
	return err
}
