package helper

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	uuid "github.com/hashicorp/go-uuid"
	"github.com/oklog/ulid"
)

// GenerateEpisodeID returns a sortable identifier for a refresh or
// escalation episode.
func GenerateEpisodeID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// GenerateRequestID returns a value suitable for the X-Request-Id header.
func GenerateRequestID() string {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return GenerateEpisodeID()
	}
	return id
}

// TokenFingerprint returns a short hash of a credential so it can be
// correlated in logs without being disclosed.
func TokenFingerprint(token string) string {
	if token == "" {
		return ""
	}
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:8])
}

// MaskToken keeps the first and last four characters of a token.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****" + token[len(token)-4:]
}
