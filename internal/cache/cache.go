// Package cache stores raw query results so repeated visualizations of the
// same (database, query) pair skip the round trip to the query API.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Store is a key/value store for query results with per-entry expiry.
type Store interface {
	// Get returns the stored value and whether it was found and fresh.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key. A zero ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Key derives the cache key for a query against a database.
func Key(database, query string) string {
	sum := sha256.Sum256([]byte(database + "\x00" + query))
	return fmt.Sprintf("%s:%s", database, hex.EncodeToString(sum[:16]))
}
