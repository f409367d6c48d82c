// Package offline computes the identifier a cracked (offline-mode) proxy
// assigns to a player.
package offline

import (
	"crypto/md5"

	"github.com/google/uuid"
)

const prefix = "OfflinePlayer:"

// UUID returns the name-based version 3 UUID over "OfflinePlayer:"+username.
// The hash covers the raw bytes with no namespace, so it cannot use
// uuid.NewMD5, which prepends one. Username case is significant.
func UUID(username string) uuid.UUID {
	sum := md5.Sum([]byte(prefix + username))
	sum[6] = (sum[6] & 0x0f) | 0x30 // version 3
	sum[8] = (sum[8] & 0x3f) | 0x80 // RFC 4122 variant
	return uuid.UUID(sum)
}

// IsOffline reports whether assigned is the offline identity for username.
// A mismatch means the identity was issued by the authority, i.e. the player
// authenticated as premium.
func IsOffline(username string, assigned uuid.UUID) bool {
	return UUID(username) == assigned
}
