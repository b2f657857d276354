package sigchain

import "io"

// Vault provides an interface for the document archive backends.
// All operations use io.Reader/io.Writer for streaming so large signed
// documents never have to sit in memory twice.
type Vault interface {
	// PutDocument stores (already encrypted) document bytes addressed by the
	// content hash of the plaintext. Idempotent: storing the same hash
	// multiple times is safe. size is the number of bytes read from r.
	PutDocument(contentHash string, r io.Reader, size int64) error

	// GetDocument retrieves archived document bytes by content hash and
	// writes them to w.
	GetDocument(contentHash string, w io.Writer) error

	// PutAsset stores a named verification asset (e.g. a rendered QR PNG,
	// keyed by seal ID). size is the number of bytes read from r.
	PutAsset(name string, r io.Reader, size int64) error

	// GetAsset retrieves a named verification asset and writes it to w.
	GetAsset(name string, w io.Writer) error

	// ValidateSetup verifies the vault is accessible and properly configured.
	ValidateSetup() error
}
