package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/remiblancher/evpki/internal/audit"
	"github.com/remiblancher/evpki/internal/canonical"
	"github.com/remiblancher/evpki/internal/trust"
)

var anchorCmd = &cobra.Command{
	Use:   "anchor",
	Short: "Trust anchor management",
	Long: `Commands for managing a YAML trust anchor store.

Each anchor names a root public key, its validity window and the ISO 15118
versions it is provisioned for. An anchor without versions serves all of them.`,
}

var anchorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trust anchors",
	Long: `List the anchors of a trust store, optionally only those serving a
protocol version at a given time.

Examples:
  evpki anchor list --anchors anchors.yaml
  evpki anchor list --anchors anchors.yaml --protocol "ISO 15118-2"`,
	RunE: runAnchorList,
}

var anchorAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a trust anchor",
	Long: `Add a trust anchor to a store, creating the store file if needed.

Examples:
  evpki anchor add --anchors anchors.yaml --name "V2G Root" \
      --public-key root.pub.json --protocol "ISO 15118-20" --not-after 2064-01-01T00:00:00.000Z`,
	RunE: runAnchorAdd,
}

var (
	anchorFile string

	anchorListProtocol string
	anchorListAt       string

	anchorAddName      string
	anchorAddPublicKey string
	anchorAddNotBefore string
	anchorAddNotAfter  string
	anchorAddComment   string
	anchorAddProtocols []string
)

func init() {
	anchorCmd.PersistentFlags().StringVar(&anchorFile, "anchors", "", "Trust anchor store (required)")
	_ = anchorCmd.MarkPersistentFlagRequired("anchors")

	anchorListCmd.Flags().StringVar(&anchorListProtocol, "protocol", "", "Only anchors serving this ISO 15118 version")
	anchorListCmd.Flags().StringVar(&anchorListAt, "at", "", "Evaluation time for --protocol (default: now)")

	anchorAddCmd.Flags().StringVar(&anchorAddName, "name", "", "Anchor name (required)")
	anchorAddCmd.Flags().StringVar(&anchorAddPublicKey, "public-key", "", "Anchor key (document or PEM private key, required)")
	anchorAddCmd.Flags().StringVar(&anchorAddNotBefore, "not-before", "", "Start of validity (default: now)")
	anchorAddCmd.Flags().StringVar(&anchorAddNotAfter, "not-after", "", "End of validity (default: open)")
	anchorAddCmd.Flags().StringVar(&anchorAddComment, "comment", "", "Free-form comment")
	anchorAddCmd.Flags().StringSliceVar(&anchorAddProtocols, "protocol", nil, "ISO 15118 version served (repeatable)")
	_ = anchorAddCmd.MarkFlagRequired("name")
	_ = anchorAddCmd.MarkFlagRequired("public-key")

	anchorCmd.AddCommand(anchorListCmd)
	anchorCmd.AddCommand(anchorAddCmd)
}

func runAnchorList(cmd *cobra.Command, args []string) error {
	st, err := trust.LoadStore(anchorFile)
	if err != nil {
		_ = audit.LogAnchorsLoaded(anchorFile, 0, false, err.Error())
		return err
	}
	if err := audit.LogAnchorsLoaded(anchorFile, st.Len(), true, ""); err != nil {
		return err
	}

	anchors := st.All()
	if anchorListProtocol != "" {
		version, err := trust.ParseProtocolVersion(anchorListProtocol)
		if err != nil {
			return err
		}
		at := time.Now().UTC()
		if t, err := parseOptionalTime(anchorListAt); err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		} else if t != nil {
			at = *t
		}
		anchors = st.For(version, at)
	}

	out := cmd.OutOrStdout()
	if len(anchors) == 0 {
		fmt.Fprintln(out, "No trust anchors found.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCURVE\tNOT BEFORE\tNOT AFTER\tPROTOCOLS\tFINGERPRINT")
	for _, a := range anchors {
		notAfter := "-"
		if !a.NotAfter.IsZero() {
			notAfter = canonical.FormatTime(a.NotAfter)
		}
		protocols := "all"
		if len(a.Protocols) > 0 {
			names := make([]string, len(a.Protocols))
			for i, p := range a.Protocols {
				names[i] = p.String()
			}
			protocols = strings.Join(names, ", ")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			a.Name, a.Curve().StdName(), canonical.FormatTime(a.NotBefore), notAfter, protocols, a.PublicKey.Fingerprint())
	}
	return tw.Flush()
}

func runAnchorAdd(cmd *cobra.Command, args []string) error {
	var existing []*trust.Anchor
	st, err := trust.LoadStore(anchorFile)
	switch {
	case err == nil:
		existing = st.All()
	case errors.Is(err, fs.ErrNotExist):
	default:
		return err
	}

	key, err := loadPublicKey(anchorAddPublicKey)
	if err != nil {
		return err
	}
	anchor := &trust.Anchor{
		Name:      anchorAddName,
		PublicKey: key,
		NotBefore: canonical.Truncate(time.Now()),
		Comment:   anchorAddComment,
	}
	if t, err := parseOptionalTime(anchorAddNotBefore); err != nil {
		return fmt.Errorf("invalid --not-before: %w", err)
	} else if t != nil {
		anchor.NotBefore = *t
	}
	if t, err := parseOptionalTime(anchorAddNotAfter); err != nil {
		return fmt.Errorf("invalid --not-after: %w", err)
	} else if t != nil {
		anchor.NotAfter = *t
	}
	for _, p := range anchorAddProtocols {
		version, err := trust.ParseProtocolVersion(p)
		if err != nil {
			return err
		}
		anchor.Protocols = append(anchor.Protocols, version)
	}

	updated, err := trust.NewStore(append(existing, anchor)...)
	if err != nil {
		return err
	}
	if err := updated.Save(anchorFile); err != nil {
		return err
	}
	if err := audit.LogAnchorsLoaded(anchorFile, updated.Len(), true, "added "+anchor.Name); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Anchor %q added to %s (%d anchors)\n", anchor.Name, anchorFile, updated.Len())
	return nil
}

