package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

const sessionIDRawSize = 32

// NewSessionID returns a 64-character hex string backed by 32 bytes of
// CSPRNG output. Session identifiers are bearer secrets and must never be
// derived from anything guessable.
func NewSessionID() (string, error) {
	var raw [sessionIDRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

// HashToken maps a token string to a fixed-size hex digest used as its
// revocation key. Storing the digest instead of the literal token keeps
// key sizes bounded and avoids holding live credentials in key names.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
