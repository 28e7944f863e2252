package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	entsql "entgo.io/ent/dialect/sql"
)

var classificationColumns = []string{
	"id", "sequence", "note_id", "category", "raw_category", "bucket",
	"confidence", "fell_back", "degraded", "weights_version", "status",
	"payload", "classified_at",
}

type classificationRepo struct {
	db  *sql.DB
	seq *sequenceCounter
}

func (r *classificationRepo) Save(ctx context.Context, e *ClassificationEntry) error {
	payload := string(e.Payload)
	if payload == "" {
		payload = "{}"
	}

	seqNum, err := r.seq.Insert(ctx, func(ctx context.Context, conn *sql.Conn, seq int64) error {
		query, args := builder().Insert(ClassificationsTable.Name).
			Columns(classificationColumns...).
			Values(e.ID, seq, e.NoteID, e.Category, e.RawCategory, e.Bucket,
				e.Confidence, e.FellBack, e.Degraded, e.WeightsVersion, e.Status,
				payload, e.ClassifiedAt.UTC()).
			Query()
		if _, err := conn.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("save classification: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.Sequence = seqNum
	return nil
}

func (r *classificationRepo) Get(ctx context.Context, id string) (*ClassificationEntry, error) {
	b := builder()
	query, args := b.Select(classificationColumns...).
		From(b.Table(ClassificationsTable.Name)).
		Where(entsql.EQ("id", id)).
		Query()

	e, err := scanClassification(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("classification %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get classification: %w", err)
	}
	return e, nil
}

func (r *classificationRepo) SetStatus(ctx context.Context, id, status string) error {
	query, args := builder().Update(ClassificationsTable.Name).
		Set("status", status).
		Where(entsql.EQ("id", id)).
		Query()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("classification %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *classificationRepo) Query(ctx context.Context, q ClassificationQuery) ([]ClassificationEntry, error) {
	b := builder()
	sel := b.Select(classificationColumns...).From(b.Table(ClassificationsTable.Name))

	preds := sequencePredicates(q.QueryOpts, "classified_at")
	if q.NoteID != "" {
		preds = append(preds, entsql.EQ("note_id", q.NoteID))
	}
	if q.Category != "" {
		preds = append(preds, entsql.EQ("category", q.Category))
	}
	if q.Status != "" {
		preds = append(preds, entsql.EQ("status", q.Status))
	}
	if q.FellBack != nil {
		preds = append(preds, entsql.EQ("fell_back", *q.FellBack))
	}
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	applyOrder(sel, q.QueryOpts)

	query, args := sel.Query()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query classifications: %w", err)
	}
	defer rows.Close()

	var out []ClassificationEntry
	for rows.Next() {
		e, err := scanClassification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan classification: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate classifications: %w", err)
	}

	if q.Newest {
		slices.Reverse(out)
	}
	return out, nil
}

func (r *classificationRepo) Summary(ctx context.Context) (*ClassificationSummary, error) {
	b := builder()
	query, args := b.Select("category", "bucket", "status", "fell_back", "degraded").
		From(b.Table(ClassificationsTable.Name)).
		Query()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summarize classifications: %w", err)
	}
	defer rows.Close()

	sum := &ClassificationSummary{
		ByCategory: make(map[string]int),
		ByBucket:   make(map[string]int),
		ByStatus:   make(map[string]int),
	}
	for rows.Next() {
		var (
			category, bucket, status string
			fellBack, degraded       bool
		)
		if err := rows.Scan(&category, &bucket, &status, &fellBack, &degraded); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		sum.Total++
		sum.ByCategory[category]++
		sum.ByBucket[bucket]++
		sum.ByStatus[status]++
		if fellBack {
			sum.FellBack++
		}
		if degraded {
			sum.Degraded++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary: %w", err)
	}
	return sum, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClassification(row rowScanner) (*ClassificationEntry, error) {
	var (
		e       ClassificationEntry
		payload string
	)
	if err := row.Scan(&e.ID, &e.Sequence, &e.NoteID, &e.Category, &e.RawCategory, &e.Bucket,
		&e.Confidence, &e.FellBack, &e.Degraded, &e.WeightsVersion, &e.Status,
		&payload, &e.ClassifiedAt); err != nil {
		return nil, err
	}
	e.Payload = []byte(payload)
	return &e, nil
}
