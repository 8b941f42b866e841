package cryptodisk

import (
	"strings"

	"github.com/google/uuid"
)

// uuidPrefix introduces UUID-form device names
const uuidPrefix = "cryptouuid/"

// UUIDMatches compares two UUIDs ignoring case and hyphens. Empty UUIDs never match.
func UUIDMatches(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	ua, errA := uuid.Parse(a)
	ub, errB := uuid.Parse(b)
	if errA == nil && errB == nil {
		return ua == ub
	}
	return normalizeUUID(a) == normalizeUUID(b)
}

func normalizeUUID(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "-", ""))
}

// UUIDName returns the UUID-form name of a cryptodisk
func UUIDName(id string) string {
	return uuidPrefix + id
}
