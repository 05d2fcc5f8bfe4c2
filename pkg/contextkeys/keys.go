package contextkeys

// contextKey is an unexported type for context keys to avoid collisions.
type contextKey string

const (
	// RequestIDKey is the context key for storing and retrieving a request ID.
	RequestIDKey contextKey = "request_id"

	// EventIDKey is the context key for storing and retrieving a push event ID.
	EventIDKey contextKey = "event_id"

	// UserIDKey is the context key for the authenticated user's ID.
	UserIDKey contextKey = "user_id"

	// TransactionIDKey is the context key for the transaction being watched.
	TransactionIDKey contextKey = "transaction_id"
)

// String makes contextKey satisfy fmt.Stringer to help with debugging/logging of keys themselves.
func (c contextKey) String() string {
	return string(c)
}
