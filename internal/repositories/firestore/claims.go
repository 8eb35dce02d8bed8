package firestore

import (
	"encoding/base64"
	"strings"
)

// claimDocID derives a Firestore document ID from a natural key (an email
// address, a product title). Document IDs must not contain slashes and keys
// are free text, so the trimmed key is base64-encoded. Keying a claim
// document this way makes Create's already-exists precondition the
// uniqueness check: two concurrent writers race on the same document ID and
// exactly one wins.
func claimDocID(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strings.TrimSpace(key)))
}
