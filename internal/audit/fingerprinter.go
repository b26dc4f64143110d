package audit

import (
	"crypto/sha256"
	"encoding/base64"
)

// Fingerprint identifies a minted token in the audit trail without storing it.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}
