package sigchain

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so business logic is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts unique ID generation so tests are deterministic.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }

// TokenGenerator produces verification tokens. Tokens are the sole credential
// for public verification, so production implementations must draw from a
// CSPRNG with at least 128 bits of entropy. They must never be derived from
// document or seal attributes.
type TokenGenerator interface {
	NewToken() (string, error)
}

// RandomTokenGenerator produces 256-bit tokens from crypto/rand, encoded as
// unpadded URL-safe base64 so they can ride in a path segment.
type RandomTokenGenerator struct{}

func (RandomTokenGenerator) NewToken() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf[:]), nil
}
