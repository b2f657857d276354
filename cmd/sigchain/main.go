package main

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/famproject/sigchain/internal/app"
	"github.com/famproject/sigchain/internal/config"
	"github.com/famproject/sigchain/internal/sigchain"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "Sign", "Serve").
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.New(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// readPassphrase prompts on stderr and reads without echo.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pass, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(pass), nil
}

var rootCmd = &cobra.Command{
	Use:   "sigchain",
	Short: "Tamper-evident document signature chain",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		fmt.Printf("Public URL: %s\n", cfg.PublicURL)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Public URL: %s\n", cfg.PublicURL)
		fmt.Printf("Database:   %s\n", cfg.Database.Type)
		fmt.Printf("Vault:      %s\n", cfg.Vault.Type)
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage archive encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the archive key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("InitKeys")
		if err != nil {
			return err
		}
		defer a.Close()

		pass, err := readPassphrase("Passphrase for new archive key: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if pass != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := a.InitKeys(pass); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Println("Archive key pair generated.")
		return nil
	},
}

// sign command
var signCmd = &cobra.Command{
	Use:   "sign FILE",
	Short: "Sign a document and seal its hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		docID, _ := cmd.Flags().GetString("document-id")
		docName, _ := cmd.Flags().GetString("name")
		version, _ := cmd.Flags().GetInt("doc-version")
		signerID, _ := cmd.Flags().GetString("signer-id")
		signerName, _ := cmd.Flags().GetString("signer-name")
		role, _ := cmd.Flags().GetString("role")
		consent, _ := cmd.Flags().GetString("consent")
		session, _ := cmd.Flags().GetString("session")

		if docID == "" {
			return fmt.Errorf("--document-id is required")
		}
		if signerID == "" {
			return fmt.Errorf("--signer-id is required")
		}
		if session == "" {
			session = "cli-" + time.Now().UTC().Format("20060102T150405Z")
		}

		a, err := newApp("Sign")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.SignFile(cmd.Context(), args[0], sigchain.SignRequest{
			DocumentID:   docID,
			DocumentName: docName,
			Version:      version,
			ConsentText:  consent,
			RoleAtSign:   role,
			Actor:        sigchain.ActingUser{ID: signerID, Name: signerName, Role: role},
			Request:      sigchain.RequestContext{SessionID: session},
		})
		if err != nil {
			return fmt.Errorf("signing failed: %w", err)
		}

		fmt.Printf("Signed %s\n", docID)
		fmt.Printf("Hash:      %s\n", res.Snapshot.HashValue)
		fmt.Printf("Seal code: %s\n", res.Seal.SealCode)
		fmt.Printf("Verify at: %s\n", res.QRURL)
		return nil
	},
}

// verify-chain command
var verifyChainCmd = &cobra.Command{
	Use:   "verify-chain DOCUMENT_ID",
	Short: "Replay a document's event chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mark, _ := cmd.Flags().GetBool("mark")

		a, err := newApp("VerifyChain")
		if err != nil {
			return err
		}
		defer a.Close()

		var res *sigchain.ChainVerification
		if mark {
			res, err = a.MarkChainVerified(cmd.Context(), args[0])
		} else {
			res, err = a.VerifyChain(cmd.Context(), args[0])
		}
		if res != nil && !res.Valid {
			fmt.Printf("CHAIN BROKEN at position %d: %s\n", res.BrokenAtPosition, res.Reason)
			os.Exit(1)
		}
		if err != nil {
			return err
		}

		fmt.Printf("Chain valid: %d event(s)\n", len(res.Events))
		return nil
	},
}

// audit-trail command
var auditTrailCmd = &cobra.Command{
	Use:   "audit-trail DOCUMENT_ID",
	Short: "View a document's event history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("AuditTrail")
		if err != nil {
			return err
		}
		defer a.Close()

		events, err := a.AuditTrail(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if len(events) == 0 {
			fmt.Println("No events recorded.")
			return nil
		}

		for _, ev := range events {
			verified := " "
			if ev.Verified {
				verified = "V"
			}
			fmt.Printf("#%-3d %s %-20s %s  %s  %s\n",
				ev.ChainPosition,
				verified,
				ev.EventType,
				ev.EventAt.Format("2006-01-02 15:04:05"),
				ev.ActorID,
				ev.EventHash[:12],
			)
		}
		return nil
	},
}

// verify command
var verifyCmd = &cobra.Command{
	Use:   "verify TOKEN [FILE]",
	Short: "Verify a seal token, optionally against local document bytes",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Verify")
		if err != nil {
			return err
		}
		defer a.Close()

		path := ""
		if len(args) > 1 {
			path = args[1]
		}

		res, err := a.VerifyToken(cmd.Context(), args[0], path)
		if err != nil {
			return err
		}

		fmt.Printf("Document:  %s\n", res.DocumentID)
		fmt.Printf("Integrity: %s\n", res.Integrity)
		fmt.Printf("Chain:     valid=%t\n", res.ChainValid)
		fmt.Printf("Seal:      %s (%s), issued %s\n",
			res.Seal.Code, res.Seal.AuthorizedRole, res.Seal.IssuedAt.Format("2006-01-02 15:04:05"))
		if res.Signature.SignerID != "" {
			fmt.Printf("Signed by: %s (%s) at %s\n",
				res.Signature.SignerName, res.Signature.Role,
				res.Signature.SignedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

// dashboard command
var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "View aggregate audit statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Dashboard")
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.Dashboard(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Documents: %d total, %d signed, %d locked\n",
			stats.TotalDocuments, stats.SignedDocuments, stats.LockedDocuments)
		fmt.Printf("Events:    %d total, %d verified\n", stats.TotalEvents, stats.VerifiedEvents)
		for status, n := range stats.StatusCounts {
			fmt.Printf("  %-8s %d\n", status, n)
		}
		return nil
	},
}

// document command
var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Manage archived documents",
}

var documentFetchCmd = &cobra.Command{
	Use:   "fetch CONTENT_HASH OUT_FILE",
	Short: "Fetch and decrypt an archived document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("FetchDocument")
		if err != nil {
			return err
		}
		defer a.Close()

		pass, err := readPassphrase("Archive key passphrase: ")
		if err != nil {
			return err
		}

		if err := a.FetchDocument(args[0], pass, args[1]); err != nil {
			return fmt.Errorf("fetching document: %w", err)
		}
		fmt.Printf("Wrote %s\n", args[1])
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP verification service",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Serve")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Serve()
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	keysCmd.AddCommand(keysInitCmd)

	signCmd.Flags().String("document-id", "", "External document identifier")
	signCmd.Flags().String("name", "", "Document display name")
	signCmd.Flags().Int("doc-version", 1, "Document version being signed")
	signCmd.Flags().String("signer-id", "", "Signer user ID")
	signCmd.Flags().String("signer-name", "", "Signer display name")
	signCmd.Flags().String("role", "", "Signer role, also stamped on the seal")
	signCmd.Flags().String("consent", "", "Express consent text")
	signCmd.Flags().String("session", "", "Session ID for traceability")

	verifyChainCmd.Flags().Bool("mark", false, "Flip the verified flag when the chain holds")

	documentCmd.AddCommand(documentFetchCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(verifyChainCmd)
	rootCmd.AddCommand(auditTrailCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(documentCmd)
	rootCmd.AddCommand(serveCmd)
}
