package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"

	entsql "entgo.io/ent/dialect/sql"
)

type correctionRepo struct {
	db  *sql.DB
	seq *sequenceCounter
}

func (r *correctionRepo) Append(ctx context.Context, e *CorrectionEntry) error {
	tags, err := marshalText(orEmpty(e.CorrectedTags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	signals, err := marshalText(orEmptyMap(e.Signals))
	if err != nil {
		return fmt.Errorf("marshal signals: %w", err)
	}
	contributions, err := marshalText(orEmptyMap(e.Contributions))
	if err != nil {
		return fmt.Errorf("marshal contributions: %w", err)
	}

	seqNum, err := r.seq.Insert(ctx, func(ctx context.Context, conn *sql.Conn, seq int64) error {
		query, args := builder().Insert(CorrectionsTable.Name).
			Columns("id", "sequence", "result_id", "note_id", "original_category",
				"corrected_category", "corrected_bucket", "corrected_tags",
				"signals", "contributions", "recorded_at").
			Values(e.ID, seq, e.ResultID, e.NoteID, e.OriginalCategory,
				e.CorrectedCategory, e.CorrectedBucket, tags,
				signals, contributions, e.RecordedAt.UTC()).
			Query()
		if _, err := conn.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("save correction: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.Sequence = seqNum
	return nil
}

func (r *correctionRepo) Query(ctx context.Context, q CorrectionQuery) ([]CorrectionEntry, error) {
	b := builder()
	sel := b.Select("id", "sequence", "result_id", "note_id", "original_category",
		"corrected_category", "corrected_bucket", "corrected_tags",
		"signals", "contributions", "recorded_at").
		From(b.Table(CorrectionsTable.Name))

	preds := sequencePredicates(q.QueryOpts, "recorded_at")
	if q.NoteID != "" {
		preds = append(preds, entsql.EQ("note_id", q.NoteID))
	}
	if q.Category != "" {
		preds = append(preds, entsql.Or(
			entsql.EQ("original_category", q.Category),
			entsql.EQ("corrected_category", q.Category),
		))
	}
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	applyOrder(sel, q.QueryOpts)

	query, args := sel.Query()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query corrections: %w", err)
	}
	defer rows.Close()

	var out []CorrectionEntry
	for rows.Next() {
		var (
			e                              CorrectionEntry
			tags, signals, contributions string
		)
		if err := rows.Scan(&e.ID, &e.Sequence, &e.ResultID, &e.NoteID, &e.OriginalCategory,
			&e.CorrectedCategory, &e.CorrectedBucket, &tags,
			&signals, &contributions, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan correction: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &e.CorrectedTags); err != nil {
			return nil, fmt.Errorf("decode tags for %s: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(signals), &e.Signals); err != nil {
			return nil, fmt.Errorf("decode signals for %s: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(contributions), &e.Contributions); err != nil {
			return nil, fmt.Errorf("decode contributions for %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate corrections: %w", err)
	}

	if q.Newest {
		slices.Reverse(out)
	}
	return out, nil
}

func (r *correctionRepo) Count(ctx context.Context) (int, error) {
	b := builder()
	query, args := b.Select(entsql.Count("*")).From(b.Table(CorrectionsTable.Name)).Query()
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count corrections: %w", err)
	}
	return n, nil
}

// sequencePredicates translates the shared query options.
func sequencePredicates(opts QueryOpts, timeColumn string) []*entsql.Predicate {
	var preds []*entsql.Predicate
	if opts.After > 0 {
		preds = append(preds, entsql.GT("sequence", opts.After))
	}
	if opts.Before > 0 {
		preds = append(preds, entsql.LT("sequence", opts.Before))
	}
	if !opts.From.IsZero() {
		preds = append(preds, entsql.GTE(timeColumn, opts.From.UTC()))
	}
	if !opts.To.IsZero() {
		preds = append(preds, entsql.LTE(timeColumn, opts.To.UTC()))
	}
	return preds
}

// applyOrder sorts by sequence and applies the limit. Newest selects
// descending so the limit keeps the latest rows; callers reverse after.
func applyOrder(sel *entsql.Selector, opts QueryOpts) {
	if opts.Newest {
		sel.OrderBy(entsql.Desc("sequence"))
	} else {
		sel.OrderBy(entsql.Asc("sequence"))
	}
	if opts.Limit > 0 {
		sel.Limit(opts.Limit)
	}
}

func marshalText(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptyMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return map[string]float64{}
	}
	return m
}
