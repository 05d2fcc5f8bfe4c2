package statekeys

import (
	"fmt"

	"github.com/ramppay/ramppay-sync-go/pkg/crypto"
)

// SessionKey generates the storage key for the persisted client session.
// The key is scoped by a hash of the API base URL so sessions against
// different environments never collide.
func SessionKey(apiBaseURL string) string {
	return fmt.Sprintf("ramppay_sync:session:%s", crypto.Sha256Hex(apiBaseURL))
}
