package domain

import (
	"context"
)

// Logger is the structured logging interface used across the client. All
// methods take a context so request-, user- and transaction-scoped fields can
// be extracted automatically. The variadic fields argument carries key/value
// pairs and keeps the interface agnostic of the underlying implementation.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...any)
	Info(ctx context.Context, msg string, fields ...any)
	Warn(ctx context.Context, msg string, fields ...any)
	Error(ctx context.Context, msg string, fields ...any)
	Fatal(ctx context.Context, msg string, fields ...any) // logs then exits

	// With returns a child logger carrying the given structured fields.
	With(fields ...any) Logger
}
