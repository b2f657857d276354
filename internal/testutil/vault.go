package testutil

import (
	"github.com/famproject/sigchain/internal/sigchain"
	"github.com/famproject/sigchain/internal/vault"
)

// NewTestVault creates a new in-memory vault for testing.
func NewTestVault() sigchain.Vault {
	return vault.NewMemoryVault("test-vault")
}
