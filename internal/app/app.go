package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/famproject/sigchain/internal/api"
	"github.com/famproject/sigchain/internal/config"
	"github.com/famproject/sigchain/internal/database"
	"github.com/famproject/sigchain/internal/encryption"
	"github.com/famproject/sigchain/internal/model"
	"github.com/famproject/sigchain/internal/qr"
	"github.com/famproject/sigchain/internal/sigchain"
	"github.com/famproject/sigchain/internal/vault"
)

// App is the application layer between the CLI and the signature Service.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string arguments, and manages resource lifecycle on Close.
type App struct {
	cfg       *config.Config
	store     sigchain.Store
	vault     sigchain.Vault
	encryptor sigchain.Encryptor
	service   *sigchain.Service
	logger    sigchain.Logger
	logFile   *os.File
}

// New creates a fully wired App from the given config. operation identifies
// the CLI command being run (e.g. "Sign", "VerifyChain") and tags every log
// line of the run. The caller must call Close when done.
func New(cfg *config.Config, operation string) (*App, error) {
	store, err := database.NewStoreFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	if st, ok := store.(*database.SQLiteStore); ok {
		if err := st.CheckMigrations(); err != nil {
			store.Close()
			return nil, fmt.Errorf("database schema out of date: %w", err)
		}
	}

	v, err := vault.NewVaultFromConfig(cfg.Vault)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating vault: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405Z") + "-" + operation
	slogger, logFile, err := newLogger(cfg.LogDir, runID)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	svc := sigchain.NewService(store, v, enc, qr.NewRenderer(), logger,
		sigchain.RealClock{}, sigchain.UUIDGenerator{}, sigchain.RandomTokenGenerator{}, cfg.PublicURL)

	return &App{
		cfg:       cfg,
		store:     store,
		vault:     v,
		encryptor: enc,
		service:   svc,
		logger:    logger,
		logFile:   logFile,
	}, nil
}

// SignFile reads the document bytes from path and executes the full signing
// flow for the given document identity and actor.
func (a *App) SignFile(ctx context.Context, path string, req sigchain.SignRequest) (*sigchain.SignResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	req.Content = content
	return a.service.SignDocument(ctx, req)
}

// VerifyChain replays a document's event chain read-only.
func (a *App) VerifyChain(ctx context.Context, documentID string) (*sigchain.ChainVerification, error) {
	return a.service.VerifyChain(ctx, documentID)
}

// MarkChainVerified replays the chain and flips the verified flag when it
// holds end to end.
func (a *App) MarkChainVerified(ctx context.Context, documentID string) (*sigchain.ChainVerification, error) {
	return a.service.MarkChainVerified(ctx, documentID)
}

// AuditTrail returns a document's full event history in chain order.
func (a *App) AuditTrail(ctx context.Context, documentID string) ([]*model.SignatureEvent, error) {
	return a.service.AuditTrail(ctx, documentID)
}

// VerifyToken resolves a verification token. documentPath, when non-empty,
// names a local file whose bytes are hashed for the integrity verdict.
func (a *App) VerifyToken(ctx context.Context, token, documentPath string) (*sigchain.VerificationResult, error) {
	var content []byte
	if documentPath != "" {
		var err error
		content, err = os.ReadFile(documentPath)
		if err != nil {
			return nil, fmt.Errorf("reading document: %w", err)
		}
	}
	return a.service.Verify(ctx, token, content)
}

// Dashboard returns the aggregate audit read model.
func (a *App) Dashboard(ctx context.Context) (*sigchain.DashboardStats, error) {
	return a.service.Dashboard(ctx)
}

// FetchDocument retrieves an archived document by content hash, decrypting
// it with the archive private key unlocked by passphrase, and writes the
// plaintext to outPath.
func (a *App) FetchDocument(contentHash, passphrase, outPath string) error {
	var dec sigchain.DecryptionContext
	if a.encryptor.IsConfigured() {
		var err error
		dec, err = a.encryptor.Unlock(passphrase)
		if err != nil {
			return fmt.Errorf("unlocking archive key: %w", err)
		}
	}
	content, err := a.service.FetchArchivedDocument(contentHash, dec)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, content, 0600); err != nil {
		return fmt.Errorf("writing document: %w", err)
	}
	return nil
}

// InitKeys generates the archive encryption key pair protected by passphrase.
func (a *App) InitKeys(passphrase string) error {
	if a.encryptor.IsConfigured() {
		return fmt.Errorf("encryption keys already exist")
	}
	return a.encryptor.Setup(passphrase)
}

// Serve starts the HTTP verification service and blocks until it exits.
func (a *App) Serve() error {
	if err := a.vault.ValidateSetup(); err != nil {
		a.logger.Warn("vault validation failed, QR assets may be unavailable", "error", err)
	}
	router := api.NewRouter(a.service, a.logger,
		a.cfg.Server.VerifyRatePerMinute, a.cfg.Server.VerifyRateBurst)
	return router.Run(a.cfg.Server.Addr)
}

// Close releases the store and the log file.
func (a *App) Close() error {
	var firstErr error
	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing store: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
