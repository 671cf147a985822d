// Package idempotency memoizes mutating tool calls by client-supplied key so
// a retried call replays its prior response instead of repeating side effects.
package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tom-jordan23/cooking-mcp/internal/apperr"
)

const (
	// maxRecords bounds the cache; once exceeded the oldest evictBatch
	// records are dropped. Records never expire by age.
	maxRecords = 1000
	evictBatch = 100
)

// Record is one memoized mutation.
type Record struct {
	Operation   string          `json:"operation"`
	Key         string          `json:"key"`
	Fingerprint string          `json:"fingerprint"`
	Response    json.RawMessage `json:"response"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Cache is the check/store contract shared by the memory and Redis backends.
type Cache interface {
	// Check looks up (operation, key). On a fingerprint match it returns
	// the cached response and true. A reused key with a different
	// fingerprint fails with apperr.ErrConflict.
	Check(ctx context.Context, operation, key, fingerprint string) (json.RawMessage, bool, error)

	// Store records the response of a completed call.
	Store(ctx context.Context, operation, key, fingerprint string, response json.RawMessage) error
}

func recordKey(operation, key string) string {
	return operation + ":" + key
}

func conflictErr(operation, key string) error {
	return fmt.Errorf("idempotency: key %q reused with different arguments for %s: %w",
		key, operation, apperr.ErrConflict)
}
