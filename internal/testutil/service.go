package testutil

import (
	"testing"

	"github.com/famproject/sigchain/internal/sigchain"
)

// TestBaseURL is the public origin used in verification URLs during tests.
const TestBaseURL = "https://verify.example.test"

// StubQRRenderer returns a fixed PNG-looking payload for any URL.
type StubQRRenderer struct{}

func (StubQRRenderer) Render(url string) ([]byte, error) {
	return []byte("\x89PNG" + url), nil
}

// ServiceDeps bundles the fakes backing a test Service so assertions can
// reach into them.
type ServiceDeps struct {
	Store  sigchain.Store
	Vault  sigchain.Vault
	Clock  *StubClock
	IDs    *StubIDGenerator
	Tokens *StubTokenGenerator
}

// NewTestService creates a Service wired entirely to deterministic fakes:
// in-memory store, in-memory vault, header-stamping encryptor, fixed clock,
// sequential IDs and tokens.
func NewTestService(t *testing.T) (*sigchain.Service, *ServiceDeps) {
	t.Helper()

	deps := &ServiceDeps{
		Store:  NewTestStore(t),
		Vault:  NewTestVault(),
		Clock:  FixedClock(),
		IDs:    NewStubIDGenerator(),
		Tokens: NewStubTokenGenerator(),
	}
	svc := sigchain.NewService(deps.Store, deps.Vault, NewTestEncryptor(), StubQRRenderer{},
		sigchain.NewNopLogger(), deps.Clock, deps.IDs, deps.Tokens, TestBaseURL)
	return svc, deps
}
