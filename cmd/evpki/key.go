package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/remiblancher/evpki/internal/audit"
	"github.com/remiblancher/evpki/internal/canonical"
	"github.com/remiblancher/evpki/internal/crypto"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Key management commands",
	Long:  `Commands for generating and inspecting ECDSA key pairs.`,
}

var keyGenCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate an ECDSA key pair",
	Long: `Generate a new ECDSA key pair and save the private key as PEM.

Supported curves:
  secp192r1 (P-192)
  secp256r1 (P-256, default)
  secp521r1 (P-521)

Examples:
  evpki key gen --out root.pem
  evpki key gen --curve secp521r1 --out root-521.pem`,
	RunE: runKeyGen,
}

var keyPubCmd = &cobra.Command{
	Use:   "pub <keyfile>",
	Short: "Export the public key document of a private key",
	Long: `Print the public key of a PEM private key as a canonical key document.

The document can be passed to --public-key options of other commands.

Examples:
  evpki key pub root.pem --out root.pub.json
  evpki key pub root.pem --encoding base64`,
	Args: cobra.ExactArgs(1),
	RunE: runKeyPub,
}

var (
	keyGenCurve  string
	keyGenOutput string

	keyPubEncoding string
	keyPubOutput   string
)

func init() {
	keyGenCmd.Flags().StringVar(&keyGenCurve, "curve", string(crypto.CurveSecp256r1), "Curve (secp192r1, secp256r1, secp521r1)")
	keyGenCmd.Flags().StringVarP(&keyGenOutput, "out", "o", "", "Output private key file (required)")
	_ = keyGenCmd.MarkFlagRequired("out")

	keyPubCmd.Flags().StringVar(&keyPubEncoding, "encoding", string(crypto.DefaultEncoding), "Coordinate encoding (hex, base64)")
	keyPubCmd.Flags().StringVarP(&keyPubOutput, "out", "o", "", "Output file (default: stdout)")

	keyCmd.AddCommand(keyGenCmd)
	keyCmd.AddCommand(keyPubCmd)
}

func runKeyGen(cmd *cobra.Command, args []string) error {
	curve, err := crypto.ParseCurve(keyGenCurve)
	if err != nil {
		return err
	}

	kp, err := crypto.GenerateKeyPair(curve)
	if err != nil {
		_ = audit.LogKeyGenerated(keyGenOutput, string(curve), "", false)
		return fmt.Errorf("failed to generate key: %w", err)
	}
	if err := crypto.SavePrivateKey(keyGenOutput, kp.PrivateKey); err != nil {
		_ = audit.LogKeyGenerated(keyGenOutput, string(curve), kp.PublicKey.Fingerprint(), false)
		return err
	}
	if err := audit.LogKeyGenerated(keyGenOutput, string(curve), kp.PublicKey.Fingerprint(), true); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Key pair generated successfully!\n")
	fmt.Fprintf(out, "  Curve:       %s (%s)\n", curve, curve.StdName())
	fmt.Fprintf(out, "  Private key: %s\n", keyGenOutput)
	fmt.Fprintf(out, "  Fingerprint: %s\n", kp.PublicKey.Fingerprint())
	return nil
}

func runKeyPub(cmd *cobra.Command, args []string) error {
	enc, err := crypto.ParseEncoding(keyPubEncoding)
	if err != nil {
		return err
	}
	kp, err := loadKeyPair(args[0])
	if err != nil {
		return err
	}
	data, err := canonical.Marshal(kp.PublicKey.ToJSON(enc, false))
	if err != nil {
		return err
	}
	return writeOutput(cmd.OutOrStdout(), keyPubOutput, data, 0644)
}
