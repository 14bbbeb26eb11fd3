// Package service holds the inventory use cases: identities, the department
// tree, parts, the stock ledger and bulk import.
package service

import (
	"time"

	"github.com/google/uuid"
)

// now is replaced in tests that need a fixed clock.
var now = func() time.Time { return time.Now().UTC() }

func newID() string {
	return uuid.NewString()
}
