package testutil

import (
	"github.com/famproject/sigchain/internal/encryption"
	"github.com/famproject/sigchain/internal/sigchain"
)

// NewTestEncryptor creates a new deterministic encryptor for testing.
func NewTestEncryptor() sigchain.Encryptor {
	return encryption.NewTestEncryptor()
}
