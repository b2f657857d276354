package vault

import (
	"fmt"

	"github.com/famproject/sigchain/internal/config"
	"github.com/famproject/sigchain/internal/sigchain"
)

// NewVaultFromConfig creates a Vault from the vault section of the config.
func NewVaultFromConfig(cfg config.VaultConfig) (sigchain.Vault, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryVault(cfg.Name), nil
	case "filesystem":
		if cfg.FSVaultRoot == "" {
			return nil, fmt.Errorf("filesystem vault requires fs_vault_root")
		}
		return NewFileSystemVault(cfg.Name, cfg.FSVaultRoot)
	case "s3":
		return NewS3Vault(cfg)
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}
