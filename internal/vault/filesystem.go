package vault

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/famproject/sigchain/internal/sigchain"
)

// FileSystemVault is a filesystem-based implementation of the Vault
// interface. It stores archived documents and assets in a directory
// structure:
//
//	<root>/
//	  documents/
//	    <content hash>      (encrypted document bytes, named by SHA-256)
//	  assets/
//	    qr/<seal id>.png    (rendered QR codes and other assets)
type FileSystemVault struct {
	name         string
	root         string
	documentsDir string
	assetsDir    string
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	documentsDir := filepath.Join(root, "documents")
	assetsDir := filepath.Join(root, "assets")

	if err := os.MkdirAll(documentsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create documents directory: %w", err)
	}
	if err := os.MkdirAll(assetsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create assets directory: %w", err)
	}

	return &FileSystemVault{
		name:         name,
		root:         root,
		documentsDir: documentsDir,
		assetsDir:    assetsDir,
	}, nil
}

// PutDocument stores document bytes addressed by content hash.
// Idempotent: storing the same hash multiple times is safe.
func (v *FileSystemVault) PutDocument(contentHash string, r io.Reader, size int64) error {
	destPath := filepath.Join(v.documentsDir, contentHash)

	// If the document already exists, skip (idempotent by content address).
	if _, err := os.Stat(destPath); err == nil {
		written, err := io.Copy(io.Discard, r)
		if err != nil {
			return fmt.Errorf("failed to read document: %w", err)
		}
		if written != size {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
		}
		return nil
	}

	return v.writeFile(destPath, r, size)
}

// GetDocument retrieves archived document bytes by content hash.
func (v *FileSystemVault) GetDocument(contentHash string, w io.Writer) error {
	srcPath := filepath.Join(v.documentsDir, contentHash)
	return v.readFile(srcPath, w, fmt.Sprintf("document not found: %s", contentHash))
}

// PutAsset stores a named verification asset. Assets may be rewritten.
func (v *FileSystemVault) PutAsset(name string, r io.Reader, size int64) error {
	destPath, err := v.assetPath(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create asset directory: %w", err)
	}
	return v.writeFile(destPath, r, size)
}

// GetAsset retrieves a named verification asset.
func (v *FileSystemVault) GetAsset(name string, w io.Writer) error {
	srcPath, err := v.assetPath(name)
	if err != nil {
		return err
	}
	return v.readFile(srcPath, w, fmt.Sprintf("asset not found: %s", name))
}

// assetPath resolves an asset name inside the assets directory, refusing
// names that would escape it.
func (v *FileSystemVault) assetPath(name string) (string, error) {
	cleaned := filepath.Clean(name)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid asset name: %s", name)
	}
	return filepath.Join(v.assetsDir, cleaned), nil
}

// ValidateSetup verifies the vault directories exist and are writable.
func (v *FileSystemVault) ValidateSetup() error {
	for _, dir := range []string{v.documentsDir, v.assetsDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("vault directory inaccessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("vault path is not a directory: %s", dir)
		}
	}
	return nil
}

// writeFile streams r into a temp file and renames it into place so readers
// never observe a partially written archive entry.
func (v *FileSystemVault) writeFile(destPath string, r io.Reader, size int64) error {
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".vault-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	written, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write file: %w", err)
	}
	if written != size {
		os.Remove(tmpPath)
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize file: %w", err)
	}
	return nil
}

func (v *FileSystemVault) readFile(srcPath string, w io.Writer, notFoundMsg string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s", notFoundMsg)
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return nil
}

// Compile-time check that FileSystemVault implements the sigchain.Vault interface
var _ sigchain.Vault = (*FileSystemVault)(nil)
