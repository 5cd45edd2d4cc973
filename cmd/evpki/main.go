// Command evpki is the CLI tool for Plug&Charge certificates and signatures.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/remiblancher/evpki/internal/audit"
)

// Build-time variables (injected by GoReleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags
var auditLogPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "evpki",
	Short: "evpki - certificates and signatures for EV charging trust infrastructures",
	Long: `evpki manages the content-addressed certificates used by Plug&Charge
(ISO 15118) trust infrastructures: certificate documents identified by the
SHA-256 hash of their canonical JSON form, signed with raw ECDSA over the
SHA-512 digest of the document.

Supported curves:
  secp192r1 (P-192), secp256r1 (P-256), secp521r1 (P-521)

Examples:
  # Generate a key pair
  evpki key gen --curve secp256r1 --out sub-ca.pem

  # Create a certificate from a profile
  evpki cert create --profile sub-ca --owner "Charge Point Operator" --key sub-ca.pem --out sub-ca.json

  # Sign it with the root key and verify against the trust anchors
  evpki cert sign sub-ca.json --key root.pem --name "V2G Root"
  evpki cert verify sub-ca.json --anchors anchors.yaml --protocol "ISO 15118-20"

  # Serve the REST API
  evpki serve --data-dir ./evpki-data --anchors anchors.yaml`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Check for audit log path from environment if not set via flag
		if auditLogPath == "" {
			auditLogPath = os.Getenv("EVPKI_AUDIT_LOG")
		}

		// Initialize audit logging
		if auditLogPath != "" {
			if err := audit.InitFile(auditLogPath); err != nil {
				return fmt.Errorf("failed to initialize audit log: %w", err)
			}
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		// Close audit log
		return audit.Close()
	},
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&auditLogPath, "audit-log", "",
		"Path to audit log file (or set EVPKI_AUDIT_LOG env var)")

	rootCmd.AddCommand(keyCmd)     // evpki key ...
	rootCmd.AddCommand(certCmd)    // evpki cert ...
	rootCmd.AddCommand(anchorCmd)  // evpki anchor ...
	rootCmd.AddCommand(profileCmd) // evpki profile ...
	rootCmd.AddCommand(auditCmd)   // evpki audit ...
	rootCmd.AddCommand(serveCmd)
}
