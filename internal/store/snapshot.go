package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
)

type weightsRepo struct {
	db *sql.DB
}

func (r *weightsRepo) Save(ctx context.Context, snap *WeightsSnapshot) error {
	query, args := builder().Insert(WeightSnapshotsTable.Name).
		Columns("version", "schema_version", "last_sequence", "data", "created_at").
		Values(snap.Version, snap.SchemaVersion, snap.LastSequence, string(snap.Data), snap.CreatedAt.UTC()).
		Query()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	snap.ID = int(id)
	return nil
}

func (r *weightsRepo) Latest(ctx context.Context) (*WeightsSnapshot, error) {
	b := builder()
	query, args := b.Select("id", "version", "schema_version", "last_sequence", "data", "created_at").
		From(b.Table(WeightSnapshotsTable.Name)).
		OrderBy(entsql.Desc("id")).
		Limit(1).
		Query()

	var (
		snap WeightsSnapshot
		data string
	)
	err := r.db.QueryRowContext(ctx, query, args...).
		Scan(&snap.ID, &snap.Version, &snap.SchemaVersion, &snap.LastSequence, &data, &snap.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}
	snap.Data = []byte(data)
	return &snap, nil
}

func (r *weightsRepo) Prune(ctx context.Context, keep int) error {
	if keep < 1 {
		keep = 1
	}

	b := builder()
	query, args := b.Select("id").
		From(b.Table(WeightSnapshotsTable.Name)).
		OrderBy(entsql.Desc("id")).
		Query()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("list stale snapshots: %w", err)
	}
	var (
		ids  []any
		seen int
	)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan snapshot id: %w", err)
		}
		if seen++; seen > keep {
			ids = append(ids, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate snapshot ids: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	del, dargs := builder().Delete(WeightSnapshotsTable.Name).
		Where(entsql.In("id", ids...)).
		Query()
	if _, err := r.db.ExecContext(ctx, del, dargs...); err != nil {
		return fmt.Errorf("delete old snapshots: %w", err)
	}
	return nil
}
