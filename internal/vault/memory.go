package vault

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/famproject/sigchain/internal/sigchain"
)

// MemoryVault is an in-memory implementation of the Vault interface.
// It holds all archived documents and assets in maps, making it useful for
// tests and throwaway environments. Safe for concurrent use.
type MemoryVault struct {
	name      string
	documents map[string][]byte // content hash -> encrypted document bytes
	assets    map[string][]byte // asset name -> bytes
	mu        sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:      name,
		documents: make(map[string][]byte),
		assets:    make(map[string][]byte),
	}
}

// PutDocument stores document bytes addressed by content hash.
func (m *MemoryVault) PutDocument(contentHash string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Idempotent: the key is the plaintext hash, so identical content
	// overwrites with identical bytes.
	m.documents[contentHash] = data
	return nil
}

// GetDocument retrieves archived document bytes by content hash.
func (m *MemoryVault) GetDocument(contentHash string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.documents[contentHash]
	if !ok {
		return fmt.Errorf("document not found: %s", contentHash)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	return nil
}

// PutAsset stores a named verification asset.
func (m *MemoryVault) PutAsset(name string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read asset: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[name] = data
	return nil
}

// GetAsset retrieves a named verification asset.
func (m *MemoryVault) GetAsset(name string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.assets[name]
	if !ok {
		return fmt.Errorf("asset not found: %s", name)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write asset: %w", err)
	}
	return nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup() error {
	return nil
}

// Compile-time check that MemoryVault implements the sigchain.Vault interface
var _ sigchain.Vault = (*MemoryVault)(nil)
