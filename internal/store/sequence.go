package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// sequenceCounter hands out the global monotonic sequence shared by the
// classification history and the correction log, so "recorded after"
// means the same thing across both tables and a weights snapshot can
// name the last correction it consumed.
//
// The mutex serializes within the process. Across processes, Insert
// holds the SQLite write lock from allocation to commit, so rows become
// visible in sequence order.
type sequenceCounter struct {
	mu sync.Mutex
	db *sql.DB
}

// queryer is satisfied by *sql.DB and *sql.Conn.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func newSequenceCounter(db *sql.DB) (*sequenceCounter, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS global_sequence (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		next_val INTEGER NOT NULL DEFAULT 1
	)`)
	if err != nil {
		return nil, fmt.Errorf("create sequence table: %w", err)
	}

	_, err = db.Exec(`INSERT OR IGNORE INTO global_sequence (id, next_val) VALUES (1, 1)`)
	if err != nil {
		return nil, fmt.Errorf("seed sequence: %w", err)
	}

	return &sequenceCounter{db: db}, nil
}

// Next atomically returns the next sequence number and increments the counter.
func (sc *sequenceCounter) Next(ctx context.Context) (int64, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return next(ctx, sc.db)
}

// Insert allocates the next sequence and runs insert with it inside one
// BEGIN IMMEDIATE transaction. Either both the counter bump and the row
// commit, or neither does.
func (sc *sequenceCounter) Insert(ctx context.Context, insert func(ctx context.Context, conn *sql.Conn, seq int64) error) (int64, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	conn, err := sc.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	seq, err := next(ctx, conn)
	if err != nil {
		return 0, err
	}
	if err := insert(ctx, conn, seq); err != nil {
		return 0, err
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	committed = true
	return seq, nil
}

func next(ctx context.Context, q queryer) (int64, error) {
	var seq int64
	err := q.QueryRowContext(ctx,
		`UPDATE global_sequence SET next_val = next_val + 1 WHERE id = 1 RETURNING next_val - 1`,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return seq, nil
}
