package audit

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"
)

// Hasher produces keyed BLAKE2b-256 digests. Digests are stable for a given key,
// so the same input can be correlated across events without being stored.
type Hasher struct {
	key []byte
}

// NewHasher builds a Hasher. Keys longer than 64 bytes are compressed first.
// An empty key yields a random per-process key.
func NewHasher(key []byte) (*Hasher, error) {
	switch {
	case len(key) == 0:
		key = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, fmt.Errorf("audit: generate hash key: %w", err)
		}
	case len(key) > blake2b.Size:
		sum := blake2b.Sum256(key)
		key = sum[:]
	default:
		key = append([]byte(nil), key...)
	}
	if _, err := blake2b.New256(key); err != nil {
		return nil, fmt.Errorf("audit: hash key: %w", err)
	}
	return &Hasher{key: key}, nil
}

// HashSensitive returns the hex digest of value.
func (h *Hasher) HashSensitive(value string) string {
	mac, _ := blake2b.New256(h.key)
	_, _ = mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

// Describe returns the digest and length of text for embedding in event data.
func (h *Hasher) Describe(text string) map[string]any {
	return map[string]any{
		"hash":   h.HashSensitive(text),
		"length": len(text),
	}
}
