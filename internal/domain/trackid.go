package domain

import (
	"fmt"
	"strings"
)

const trackIDPrefix = "spotify:track:"

// ParseTrackID validates a canonical track identifier and returns the bare id.
// Accepted form: spotify:track:<alphanumeric id>
func ParseTrackID(raw string) (string, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 || parts[0] != "spotify" || parts[1] != "track" {
		return "", fmt.Errorf("%w: %q", ErrInvalidTrackID, raw)
	}

	id := parts[2]
	if id == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidTrackID, raw)
	}
	for _, r := range id {
		if !isAlphanumeric(r) {
			return "", fmt.Errorf("%w: %q", ErrInvalidTrackID, raw)
		}
	}

	return id, nil
}

// CanonicalTrackID builds spotify:track:<id> from a bare id
func CanonicalTrackID(id string) string {
	return trackIDPrefix + id
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
