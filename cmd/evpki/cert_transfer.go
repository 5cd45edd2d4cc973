package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/remiblancher/evpki/internal/audit"
	"github.com/remiblancher/evpki/internal/canonical"
	"github.com/remiblancher/evpki/internal/certificate"
	"github.com/remiblancher/evpki/internal/crypto"
	"github.com/remiblancher/evpki/internal/envelope"
	"github.com/remiblancher/evpki/internal/store"
)

var certExportCmd = &cobra.Command{
	Use:   "export <cert-or-id>",
	Short: "Export a certificate as JSON, CBOR or COSE",
	Long: `Export a certificate file, or a certificate of a store by identifier.

Formats:
  json  Canonical JSON document (default)
  cbor  Deterministic CBOR encoding of the same document
  cose  CBOR document sealed in a COSE_Sign1 envelope (requires --key)

Binary formats require --out.

Examples:
  evpki cert export contract.json --format cbor --out contract.cbor
  evpki cert export 3f1c... --store ./evpki-data --format cose --key oem.pem --out contract.cose`,
	Args: cobra.ExactArgs(1),
	RunE: runCertExport,
}

var certImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a certificate into a store",
	Long: `Import a JSON, CBOR or COSE certificate into a certificate store.

COSE envelopes are verified with --public-key when given. Signatures that
embed a public key must verify before the certificate is stored.

Examples:
  evpki cert import contract.cbor --store ./evpki-data
  evpki cert import contract.cose --public-key oem.pub.json --store ./evpki-data`,
	Args: cobra.ExactArgs(1),
	RunE: runCertImport,
}

var certListCmd = &cobra.Command{
	Use:   "list",
	Short: "List certificates of a store",
	RunE:  runCertList,
}

var (
	certExportFormat string
	certExportKey    string
	certExportStore  string
	certExportOutput string

	certImportFormat    string
	certImportPublicKey string
	certImportStore     string

	certListStore string
)

func init() {
	certExportCmd.Flags().StringVarP(&certExportFormat, "format", "f", formatJSON, "Output format (json, cbor, cose)")
	certExportCmd.Flags().StringVar(&certExportKey, "key", "", "Private key sealing the COSE envelope")
	certExportCmd.Flags().StringVar(&certExportStore, "store", "", "Certificate store to read the identifier from")
	certExportCmd.Flags().StringVarP(&certExportOutput, "out", "o", "", "Output file (default: stdout, JSON only)")

	certImportCmd.Flags().StringVarP(&certImportFormat, "format", "f", formatAuto, "Input format (auto, json, cbor, cose)")
	certImportCmd.Flags().StringVar(&certImportPublicKey, "public-key", "", "Key verifying a COSE envelope")
	certImportCmd.Flags().StringVar(&certImportStore, "store", "", "Certificate store directory (required)")
	_ = certImportCmd.MarkFlagRequired("store")

	certListCmd.Flags().StringVar(&certListStore, "store", "", "Certificate store directory (required)")
	_ = certListCmd.MarkFlagRequired("store")

	certCmd.AddCommand(certExportCmd)
	certCmd.AddCommand(certImportCmd)
	certCmd.AddCommand(certListCmd)
}

func runCertExport(cmd *cobra.Command, args []string) error {
	var (
		cert *certificate.Certificate
		err  error
	)
	if certExportStore != "" {
		id, perr := certificate.ParseCertificateID(args[0])
		if perr != nil {
			return perr
		}
		cert, err = store.NewStore(certExportStore).Load(id)
	} else {
		cert, err = loadCertificate(args[0])
	}
	if err != nil {
		return err
	}

	data, err := encodeCertificate(cert, certExportFormat, certExportKey)
	if err == nil && certExportFormat != formatJSON && (certExportOutput == "" || certExportOutput == "-") {
		err = fmt.Errorf("--out is required for %s output", certExportFormat)
	}
	if err == nil {
		err = writeOutput(cmd.OutOrStdout(), certExportOutput, data, 0644)
	}
	if aerr := audit.LogCertTransfer(audit.EventCertExported, cert.ID().String(), certExportOutput, certExportFormat, err == nil); aerr != nil && err == nil {
		err = aerr
	}
	if err != nil {
		return err
	}

	if certExportOutput != "" && certExportOutput != "-" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %s to %s (%s)\n", cert.ID(), certExportOutput, certExportFormat)
	}
	return nil
}

// encodeCertificate renders cert in format. COSE output is sealed with the
// private key at keyPath.
func encodeCertificate(cert *certificate.Certificate, format, keyPath string) ([]byte, error) {
	switch format {
	case formatJSON:
		return cert.MarshalJSON()
	case formatCBOR:
		return canonical.MarshalCBOR(cert.ToJSON(false))
	case formatCOSE:
		if keyPath == "" {
			return nil, fmt.Errorf("--key is required for cose output")
		}
		priv, err := crypto.LoadPrivateKey(keyPath)
		if err != nil {
			return nil, err
		}
		return envelope.SealCertificate(cert, priv)
	default:
		return nil, fmt.Errorf("unsupported format: %s (use json, cbor or cose)", format)
	}
}

func runCertImport(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read certificate: %w", err)
	}
	format := certImportFormat
	if format == formatAuto {
		format = detectFormat(data)
	}

	var pub *crypto.ECCPublicKey
	if certImportPublicKey != "" {
		if pub, err = loadPublicKey(certImportPublicKey); err != nil {
			return err
		}
	}

	cert, err := decodeCertificate(data, format, pub)
	if err == nil {
		err = checkEmbeddedSignatures(cert)
	}
	if err == nil {
		err = saveToStore(certImportStore, cert)
	}
	id := ""
	if cert != nil {
		id = cert.ID().String()
	}
	if aerr := audit.LogCertTransfer(audit.EventCertImported, id, path, format, err == nil); aerr != nil && err == nil {
		err = aerr
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %s into %s\n", cert.ID(), certImportStore)
	return nil
}

// checkEmbeddedSignatures rejects certificates carrying a signature that
// does not verify with its own embedded key.
func checkEmbeddedSignatures(cert *certificate.Certificate) error {
	for _, sig := range cert.Signatures() {
		if sig.PublicKey() == nil {
			continue
		}
		ok, err := certificate.VerifySignature(sig, cert, nil)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("signature %s by %q does not verify", sig.ID(), sig.Name())
		}
	}
	return nil
}

func runCertList(cmd *cobra.Command, args []string) error {
	st := store.NewStore(certListStore)
	if !st.Exists() {
		return fmt.Errorf("no certificate store at %s", certListStore)
	}
	entries, err := st.ReadIndex()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No certificates found.")
		return nil
	}
	now := time.Now()
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tOWNER\tNOT AFTER\tSTATUS")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.ID, e.Owner, canonical.FormatTime(e.NotAfter), e.Status(now))
	}
	return tw.Flush()
}
