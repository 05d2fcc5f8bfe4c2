package domain

import "context"

// TransactionFetcher is the pull interface consumed by the reconciler: one
// authoritative point-in-time read of a transaction record.
type TransactionFetcher interface {
	GetTransaction(ctx context.Context, id string) (*Transaction, error)
}

// AuthResult is the outcome of a successful login or register call.
type AuthResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
