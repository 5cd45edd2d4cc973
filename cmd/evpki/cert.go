package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/remiblancher/evpki/internal/audit"
	"github.com/remiblancher/evpki/internal/canonical"
	"github.com/remiblancher/evpki/internal/certificate"
	"github.com/remiblancher/evpki/internal/crypto"
	"github.com/remiblancher/evpki/internal/profile"
	"github.com/remiblancher/evpki/internal/store"
	"github.com/remiblancher/evpki/internal/trust"
	"github.com/remiblancher/evpki/internal/usage"
)

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Certificate operations",
	Long: `Create, sign, verify and exchange certificate documents.

A certificate is identified by the SHA-256 hash of its canonical JSON form
without @id and signatures, so signing never changes its identifier.`,
}

var certCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a certificate from a profile",
	Long: `Create an unsigned certificate for one or more subject keys.

The profile fixes curve, usages, validity and policy URLs. Subject keys are
given as PEM private keys (--key) or public key documents (--public-key).

Examples:
  evpki cert create --profile contract --owner "Mobility Operator AG" \
      --public-key emaid.pub.json --out contract.json

  evpki cert create --profile root-ca --owner "V2G Root" --key root.pem \
      --not-before 2024-01-01T00:00:00.000Z --store ./evpki-data`,
	RunE: runCertCreate,
}

var certSignCmd = &cobra.Command{
	Use:   "sign <cert.json>",
	Short: "Append a signature to a certificate",
	Long: `Sign a certificate with a private key and append the signature.

The signer's public key is embedded unless --no-embed-key is given; signatures
without an embedded key can only be verified with a key supplied by the
verifier and are not accepted by the REST API.

Examples:
  evpki cert sign sub-ca.json --key root.pem --name "V2G Root"
  evpki cert sign sub-ca.json --key root.pem --name "V2G Root" --out signed.json`,
	Args: cobra.ExactArgs(1),
	RunE: runCertSign,
}

var certVerifyCmd = &cobra.Command{
	Use:   "verify <cert.json>",
	Short: "Verify the signatures of a certificate",
	Long: `Verify every signature of a certificate.

Without options, signatures verify with their embedded public key. With
--public-key, signatures without a key use the given one, and signatures
embedding a different key fail. With --anchors and --protocol, signatures
must verify with a trust anchor serving that ISO 15118 version at --at.

Examples:
  evpki cert verify sub-ca.json
  evpki cert verify sub-ca.json --public-key root.pub.json
  evpki cert verify sub-ca.json --anchors anchors.yaml --protocol "ISO 15118-20"`,
	Args: cobra.ExactArgs(1),
	RunE: runCertVerify,
}

var certShowCmd = &cobra.Command{
	Use:   "show <cert>",
	Short: "Display a certificate",
	Long:  `Display a certificate file (JSON, CBOR or COSE) in human-readable form.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runCertShow,
}

var certIDCmd = &cobra.Command{
	Use:   "id <cert.json>",
	Short: "Compute the identifier of a certificate document",
	Long: `Compute the content identifier of a certificate document and compare it
with the @id the document claims. Exits with an error on mismatch.`,
	Args: cobra.ExactArgs(1),
	RunE: runCertID,
}

var (
	certCreateProfile     string
	certCreateProfilesDir string
	certCreateOwner       string
	certCreateEMail       string
	certCreateWWW         string
	certCreateDescription string
	certCreateKeys        []string
	certCreatePublicKeys  []string
	certCreateNotBefore   string
	certCreateOutput      string
	certCreateStore       string

	certSignKey       string
	certSignName      string
	certSignEMail     string
	certSignWWW       string
	certSignNoEmbed   bool
	certSignNotBefore string
	certSignNotAfter  string
	certSignEncoding  string
	certSignOutput    string

	certVerifyPublicKey string
	certVerifyAnchors   string
	certVerifyProtocol  string
	certVerifyAt        string
)

func init() {
	certCreateCmd.Flags().StringVarP(&certCreateProfile, "profile", "P", "", "Certificate profile (required)")
	certCreateCmd.Flags().StringVar(&certCreateProfilesDir, "profiles-dir", "", "Directory of custom profiles")
	certCreateCmd.Flags().StringVar(&certCreateOwner, "owner", "", "Owner name (required)")
	certCreateCmd.Flags().StringVar(&certCreateEMail, "email", "", "Owner e-mail address")
	certCreateCmd.Flags().StringVar(&certCreateWWW, "www", "", "Owner web site")
	certCreateCmd.Flags().StringVar(&certCreateDescription, "description", "", "Override the profile description")
	certCreateCmd.Flags().StringSliceVar(&certCreateKeys, "key", nil, "Subject private key file (repeatable)")
	certCreateCmd.Flags().StringSliceVar(&certCreatePublicKeys, "public-key", nil, "Subject public key document (repeatable)")
	certCreateCmd.Flags().StringVar(&certCreateNotBefore, "not-before", "", "Start of validity (default: now)")
	certCreateCmd.Flags().StringVarP(&certCreateOutput, "out", "o", "", "Output file (default: stdout)")
	certCreateCmd.Flags().StringVar(&certCreateStore, "store", "", "Also save into this certificate store")
	_ = certCreateCmd.MarkFlagRequired("profile")
	_ = certCreateCmd.MarkFlagRequired("owner")

	certSignCmd.Flags().StringVar(&certSignKey, "key", "", "Signer private key file (required)")
	certSignCmd.Flags().StringVar(&certSignName, "name", "", "Signer name (required)")
	certSignCmd.Flags().StringVar(&certSignEMail, "email", "", "Signer e-mail address")
	certSignCmd.Flags().StringVar(&certSignWWW, "www", "", "Signer web site")
	certSignCmd.Flags().BoolVar(&certSignNoEmbed, "no-embed-key", false, "Do not embed the signer public key")
	certSignCmd.Flags().StringVar(&certSignNotBefore, "not-before", "", "Start of the signature validity")
	certSignCmd.Flags().StringVar(&certSignNotAfter, "not-after", "", "End of the signature validity")
	certSignCmd.Flags().StringVar(&certSignEncoding, "encoding", "", "Encoding of r and s (hex, base64)")
	certSignCmd.Flags().StringVarP(&certSignOutput, "out", "o", "", "Output file (default: overwrite input)")
	_ = certSignCmd.MarkFlagRequired("key")
	_ = certSignCmd.MarkFlagRequired("name")

	certVerifyCmd.Flags().StringVar(&certVerifyPublicKey, "public-key", "", "Verification key (document or PEM private key)")
	certVerifyCmd.Flags().StringVar(&certVerifyAnchors, "anchors", "", "Trust anchor store (YAML)")
	certVerifyCmd.Flags().StringVar(&certVerifyProtocol, "protocol", "", "ISO 15118 version selecting anchors")
	certVerifyCmd.Flags().StringVar(&certVerifyAt, "at", "", "Evaluation time (default: now)")

	certCmd.AddCommand(certCreateCmd)
	certCmd.AddCommand(certSignCmd)
	certCmd.AddCommand(certVerifyCmd)
	certCmd.AddCommand(certShowCmd)
	certCmd.AddCommand(certIDCmd)
}

func runCertCreate(cmd *cobra.Command, args []string) error {
	ps := profile.NewProfileStore(certCreateProfilesDir)
	if err := ps.Load(); err != nil {
		return err
	}
	p, ok := ps.Get(certCreateProfile)
	if !ok {
		return fmt.Errorf("profile not found: %s (available: %s)", certCreateProfile, strings.Join(ps.List(), ", "))
	}

	keys, err := loadPublicKeys(append(append([]string(nil), certCreateKeys...), certCreatePublicKeys...))
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("at least one --key or --public-key is required")
	}

	notBefore := canonical.Truncate(time.Now())
	if nb, err := parseOptionalTime(certCreateNotBefore); err != nil {
		return fmt.Errorf("invalid --not-before: %w", err)
	} else if nb != nil {
		notBefore = *nb
	}

	owner := certificate.Owner{Name: certCreateOwner, EMail: certCreateEMail, WWW: certCreateWWW}
	params, err := p.Params(owner, keys, notBefore)
	if err != nil {
		return err
	}
	if certCreateDescription != "" {
		params.Description = certCreateDescription
	}

	cert, err := certificate.New(params)
	if err == nil {
		err = cert.Validate()
	}
	if err != nil {
		_ = audit.LogCertCreated("", certCreateOwner, p.Name, false)
		return err
	}

	if certCreateStore != "" {
		if err := saveToStore(certCreateStore, cert); err != nil {
			return err
		}
	}
	if err := audit.LogCertCreated(cert.ID().String(), certCreateOwner, p.Name, true); err != nil {
		return err
	}

	if certCreateOutput == "" && certCreateStore != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Certificate %s stored in %s\n", cert.ID(), certCreateStore)
		return nil
	}
	return saveCertificate(cmd.OutOrStdout(), certCreateOutput, cert)
}

func runCertSign(cmd *cobra.Command, args []string) error {
	cert, err := loadCertificate(args[0])
	if err != nil {
		return err
	}
	kp, err := loadKeyPair(certSignKey)
	if err != nil {
		return err
	}
	enc, err := crypto.ParseEncoding(certSignEncoding)
	if err != nil {
		return err
	}

	opts := certificate.SignOptions{
		Name:     certSignName,
		EMail:    certSignEMail,
		WWW:      certSignWWW,
		Encoding: enc,
	}
	if !certSignNoEmbed {
		opts.PublicKey = kp.PublicKey
	}
	if opts.NotBefore, err = parseOptionalTime(certSignNotBefore); err != nil {
		return fmt.Errorf("invalid --not-before: %w", err)
	}
	if opts.NotAfter, err = parseOptionalTime(certSignNotAfter); err != nil {
		return fmt.Errorf("invalid --not-after: %w", err)
	}

	sig, err := certificate.Sign(cert, kp.PrivateKey, opts)
	if err != nil {
		_ = audit.LogCertSigned(cert.ID().String(), "", certSignName, string(kp.PublicKey.Curve()), false)
		return err
	}
	if certSignNoEmbed {
		// AddSignature only takes signatures carrying their key.
		cert, err = withSignature(cert, sig)
		if err != nil {
			return err
		}
	} else {
		cert.AddSignature(sig)
	}
	if err := audit.LogCertSigned(cert.ID().String(), sig.ID().String(), certSignName, string(kp.PublicKey.Curve()), true); err != nil {
		return err
	}

	out := certSignOutput
	if out == "" {
		out = args[0]
	}
	if err := saveCertificate(cmd.OutOrStdout(), out, cert); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Signature %s added to %s\n", sig.ID(), cert.ID())
	return nil
}

// withSignature rebuilds cert with sig appended, keeping keyless signatures.
func withSignature(cert *certificate.Certificate, sig *certificate.Signature) (*certificate.Certificate, error) {
	doc := cert.ToJSON(false)
	sigs, _ := doc["signatures"].([]canonical.Document)
	doc["signatures"] = append(sigs, sig.ToJSON(true, ""))
	data, err := canonical.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return certificate.ParseJSON(data)
}

func runCertVerify(cmd *cobra.Command, args []string) error {
	cert, err := loadCertificate(args[0])
	if err != nil {
		return err
	}
	at := time.Now().UTC()
	if t, err := parseOptionalTime(certVerifyAt); err != nil {
		return fmt.Errorf("invalid --at: %w", err)
	} else if t != nil {
		at = *t
	}

	out := cmd.OutOrStdout()
	result := verifyResult{certID: cert.ID().String()}

	switch {
	case certVerifyProtocol != "" || certVerifyAnchors != "":
		if certVerifyProtocol == "" || certVerifyAnchors == "" {
			return fmt.Errorf("--anchors and --protocol must be used together")
		}
		if err := verifyWithAnchors(cert, certVerifyAnchors, certVerifyProtocol, at, &result); err != nil {
			return err
		}
	default:
		var pub *crypto.ECCPublicKey
		if certVerifyPublicKey != "" {
			if pub, err = loadPublicKey(certVerifyPublicKey); err != nil {
				return err
			}
		}
		verifyWithKey(cert, pub, &result)
	}

	if !cert.IsValidAt(at) {
		result.problems = append(result.problems, fmt.Sprintf("%s is outside the validity window", canonical.FormatTime(at)))
	}
	if len(cert.Signatures()) == 0 {
		result.problems = append(result.problems, "certificate carries no signatures")
	}

	reason := ""
	if len(result.problems) > 0 {
		reason = result.problems[0]
	}
	if err := audit.LogVerification(result.certID, len(result.valid), reason); err != nil {
		return err
	}

	result.print(out)
	if len(result.valid) == 0 {
		return fmt.Errorf("no valid signature")
	}
	return nil
}

func runCertShow(cmd *cobra.Command, args []string) error {
	cert, err := loadCertificate(args[0])
	if err != nil {
		return err
	}
	printCertificate(cmd.OutOrStdout(), cert)
	return nil
}

func runCertID(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read certificate: %w", err)
	}
	doc, err := canonical.ParseJSON(data)
	if err != nil {
		return err
	}
	claimed, err := doc.OptString("@id")
	if err != nil {
		return err
	}
	cert, err := certificate.Parse(canonical.Without(doc, "@id"))
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), cert.ID())
	if claimed != "" && claimed != cert.ID().String() {
		return fmt.Errorf("%w: document claims %s", certificate.ErrIdentifierMismatch, claimed)
	}
	return nil
}

func printCertificate(w io.Writer, cert *certificate.Certificate) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", cert.ID())
	fmt.Fprintf(tw, "Owner:\t%s\n", cert.Owner().Name)
	if d := cert.Description(); d != "" {
		fmt.Fprintf(tw, "Description:\t%s\n", d)
	}
	fmt.Fprintf(tw, "Not Before:\t%s\n", canonical.FormatTime(cert.NotBefore()))
	fmt.Fprintf(tw, "Not After:\t%s\n", canonical.FormatTime(cert.NotAfter()))
	for i, k := range cert.PublicKeys() {
		fmt.Fprintf(tw, "Public Key %d:\t%s %s\n", i+1, k.Curve().StdName(), k.Fingerprint())
	}
	for _, u := range cert.Usages() {
		name := strings.TrimPrefix(u.Tag(), usage.TagPrefix)
		if sc, ok := u.(usage.SignCertificates); ok && sc.MaxPathLength != nil {
			name = fmt.Sprintf("%s (maxPathLength=%d)", name, *sc.MaxPathLength)
		}
		fmt.Fprintf(tw, "Usage:\t%s\n", name)
	}
	if p := cert.Policy(); p != "" {
		fmt.Fprintf(tw, "Policy:\t%s\n", p)
	}
	for _, sig := range cert.Signatures() {
		key := "no embedded key"
		if k := sig.PublicKey(); k != nil {
			key = k.Fingerprint()
		}
		fmt.Fprintf(tw, "Signature:\t%s by %s (%s)\n", sig.ID(), sig.Name(), key)
	}
	_ = tw.Flush()
}

// verifyResult collects the per-signature outcome of cert verify.
type verifyResult struct {
	certID   string
	valid    []string
	problems []string
}

func (r *verifyResult) print(w io.Writer) {
	if len(r.valid) > 0 {
		fmt.Fprintf(w, "Certificate %s: VALID (%d signature(s))\n", r.certID, len(r.valid))
	} else {
		fmt.Fprintf(w, "Certificate %s: INVALID\n", r.certID)
	}
	for _, v := range r.valid {
		fmt.Fprintf(w, "  OK    %s\n", v)
	}
	for _, p := range r.problems {
		fmt.Fprintf(w, "  FAIL  %s\n", p)
	}
}

func verifyWithKey(cert *certificate.Certificate, pub *crypto.ECCPublicKey, r *verifyResult) {
	for _, sig := range cert.Signatures() {
		ok, err := certificate.VerifySignature(sig, cert, pub)
		switch {
		case err != nil:
			r.problems = append(r.problems, fmt.Sprintf("%s: %v", sig.ID(), err))
		case ok:
			r.valid = append(r.valid, fmt.Sprintf("%s (%s)", sig.ID(), sig.Name()))
		default:
			r.problems = append(r.problems, fmt.Sprintf("%s (%s): signature does not verify", sig.ID(), sig.Name()))
		}
	}
}

func verifyWithAnchors(cert *certificate.Certificate, path, protocol string, at time.Time, r *verifyResult) error {
	version, err := trust.ParseProtocolVersion(protocol)
	if err != nil {
		return err
	}
	anchors, err := trust.LoadStore(path)
	if err != nil {
		return err
	}
	candidates := anchors.For(version, at)
	if len(candidates) == 0 {
		r.problems = append(r.problems, fmt.Sprintf("no trust anchor serves %s at %s", version, canonical.FormatTime(at)))
		return nil
	}

	for _, sig := range cert.Signatures() {
		matched := false
		for _, a := range candidates {
			if ok, err := certificate.VerifySignature(sig, cert, a.PublicKey); err == nil && ok {
				r.valid = append(r.valid, fmt.Sprintf("%s (%s, anchor %q)", sig.ID(), sig.Name(), a.Name))
				matched = true
				break
			}
		}
		if !matched {
			r.problems = append(r.problems, fmt.Sprintf("%s (%s): no %s anchor verifies", sig.ID(), sig.Name(), version))
		}
	}
	return nil
}

// saveToStore saves cert into the store at dir, creating the store if needed.
func saveToStore(dir string, cert *certificate.Certificate) error {
	st := store.NewStore(dir)
	if !st.Exists() {
		if err := st.Init(); err != nil {
			return err
		}
	}
	return st.Save(cert)
}
