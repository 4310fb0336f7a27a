package thread

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// maxUpdateRetries bounds the optimistic-concurrency retry loop.
const maxUpdateRetries = 5

// ErrConcurrentUpdate is returned when an update loses the optimistic
// version race more times than the retry budget allows.
var ErrConcurrentUpdate = errors.New("thread state update lost concurrent version race")

// PostgresStore persists thread state in the thread_states table with a
// version column for optimistic concurrency, so concurrent turns for the
// same thread serialize or fail fast instead of silently last-write-wins.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed thread state store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Get returns the state for a thread, or found=false if absent.
func (s *PostgresStore) Get(ctx context.Context, threadID string) (*State, bool, error) {
	state, _, found, err := s.load(ctx, threadID)
	if err != nil || !found {
		return nil, false, err
	}
	return state, true, nil
}

// Update merges the patch under optimistic concurrency: read state and
// version, merge, then write guarded by the version stamp. A lost race is
// retried against the fresh state.
func (s *PostgresStore) Update(ctx context.Context, threadID string, patch Patch) (*State, error) {
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		state, version, found, err := s.load(ctx, threadID)
		if err != nil {
			return nil, err
		}

		if !found {
			merged := merge(DefaultState(threadID), patch)
			inserted, err := s.insert(ctx, threadID, merged)
			if err != nil {
				return nil, err
			}
			if inserted {
				return &merged, nil
			}
			// Another writer created the row first; retry as an update.
			continue
		}

		merged := merge(*state, patch)
		updated, err := s.write(ctx, threadID, merged, version)
		if err != nil {
			return nil, err
		}
		if updated {
			return &merged, nil
		}
	}

	return nil, ErrConcurrentUpdate
}

// Reset deletes a thread's state row.
func (s *PostgresStore) Reset(ctx context.Context, threadID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM thread_states WHERE thread_id = $1`, threadID)
	if err != nil {
		return fmt.Errorf("failed to reset thread state: %w", err)
	}
	return nil
}

func (s *PostgresStore) load(ctx context.Context, threadID string) (*State, int64, bool, error) {
	var raw []byte
	var version int64

	err := s.pool.QueryRow(ctx,
		`SELECT state, version FROM thread_states WHERE thread_id = $1`,
		threadID,
	).Scan(&raw, &version)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, false, nil
		}
		return nil, 0, false, fmt.Errorf("failed to load thread state: %w", err)
	}

	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, 0, false, fmt.Errorf("failed to decode thread state: %w", err)
	}

	return &state, version, true, nil
}

func (s *PostgresStore) insert(ctx context.Context, threadID string, state State) (bool, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return false, fmt.Errorf("failed to encode thread state: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO thread_states (thread_id, state, version)
		 VALUES ($1, $2, 1)
		 ON CONFLICT (thread_id) DO NOTHING`,
		threadID, raw,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert thread state: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) write(ctx context.Context, threadID string, state State, version int64) (bool, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return false, fmt.Errorf("failed to encode thread state: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE thread_states
		 SET state = $1, version = version + 1
		 WHERE thread_id = $2 AND version = $3`,
		raw, threadID, version,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update thread state: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}
