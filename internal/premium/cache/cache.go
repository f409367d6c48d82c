// Package cache holds premium verdicts keyed by lowercased username.
//
// Validity is decided lazily: an entry whose age is at least the TTL is
// reported absent by Get. Stale entries stay in storage until overwritten or
// swept; sweeping only removes entries Get would already ignore.
package cache

import (
	"context"
	"strings"
	"time"
)

// Entry is one cached verdict.
type Entry struct {
	Key       string    `json:"key"`
	Verdict   bool      `json:"verdict"`
	WrittenAt time.Time `json:"written_at"`
}

// Store is safe for concurrent use by many connection attempts.
type Store interface {
	// Get returns the entry for key when one exists and is younger than the TTL.
	Get(ctx context.Context, key string) (Entry, bool, error)
	// Put unconditionally replaces the entry for key.
	Put(ctx context.Context, key string, verdict bool, now time.Time) error
}

// Key normalises a username into its cache key.
func Key(username string) string {
	return strings.ToLower(username)
}

func fresh(e Entry, now time.Time, ttl time.Duration) bool {
	return now.Sub(e.WrittenAt) < ttl
}
