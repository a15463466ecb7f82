package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// SlugLength is the length of generated slugs in characters.
const SlugLength = 12

// slugBytes encodes to exactly SlugLength characters of unpadded base64url.
const slugBytes = SlugLength * 3 / 4

// SlugGenerator returns a new public identifier for a secret.
type SlugGenerator func() (string, error)

// GenerateSlug returns a random URL-safe identifier of SlugLength characters.
func GenerateSlug() (string, error) {
	b := make([]byte, slugBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("slug generation failed: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
