package logging

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey int

const (
	noteIDKey ctxKey = iota
	batchIDKey
)

// WithNoteID tags ctx with the note being processed.
func WithNoteID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, noteIDKey, id)
}

// WithBatchID tags ctx with the batch run it belongs to.
func WithBatchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, batchIDKey, id)
}

// ContextFields extracts the logging fields stored on ctx.
func ContextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	var fields []zap.Field
	if v, ok := ctx.Value(batchIDKey).(string); ok && v != "" {
		fields = append(fields, zap.String("batch_id", v))
	}
	if v, ok := ctx.Value(noteIDKey).(string); ok && v != "" {
		fields = append(fields, zap.String("note_id", v))
	}
	return fields
}
