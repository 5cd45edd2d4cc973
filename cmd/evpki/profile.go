package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/remiblancher/evpki/internal/profile"
	"github.com/remiblancher/evpki/internal/usage"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Certificate profile management",
	Long: `Manage certificate profiles.

Profiles fix the curve, usages, validity and policy URLs of a certificate
type. Builtin profiles are compiled into the binary; YAML files in --dir
override them by name.

Builtin profiles:
  root-ca           Root of a charging trust infrastructure
  sub-ca            Intermediate CA
  oem-provisioning  Vehicle OEM provisioning certificate
  contract          Contract certificate (eMAID)
  legacy-contract   Contract certificate on secp192r1
  evse-leaf         Charging station TLS certificate

Examples:
  evpki profile list
  evpki profile show contract
  evpki profile install --dir ./profiles`,
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available profiles",
	RunE:  runProfileList,
}

var profileShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Display a profile as YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileShow,
}

var profileLintCmd = &cobra.Command{
	Use:   "lint <file>",
	Short: "Validate a profile YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileLint,
}

var profileInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Copy the builtin profiles to a directory for customization",
	RunE:  runProfileInstall,
}

var (
	profileDir       string
	profileOverwrite bool
)

func init() {
	profileCmd.PersistentFlags().StringVarP(&profileDir, "dir", "d", "", "Custom profiles directory")
	profileInstallCmd.Flags().BoolVar(&profileOverwrite, "overwrite", false, "Overwrite existing profiles")

	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileLintCmd)
	profileCmd.AddCommand(profileInstallCmd)
}

func runProfileList(cmd *cobra.Command, args []string) error {
	builtins, err := profile.BuiltinProfiles()
	if err != nil {
		return err
	}
	custom := map[string]*profile.Profile{}
	if profileDir != "" {
		if custom, err = profile.LoadProfilesFromDirectory(profileDir); err != nil {
			return err
		}
	}
	ps := profile.NewProfileStore(profileDir)
	if err := ps.Load(); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCURVE\tVALIDITY\tUSAGES\tSOURCE")
	for _, name := range ps.List() {
		p, _ := ps.Get(name)
		_, isBuiltin := builtins[name]
		_, isCustom := custom[name]
		source := "builtin"
		switch {
		case isCustom && isBuiltin:
			source = "custom (overrides builtin)"
		case isCustom:
			source = "custom"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.Name, p.Curve, validityString(p), usageNames(p.Usages), source)
	}
	return tw.Flush()
}

func runProfileShow(cmd *cobra.Command, args []string) error {
	ps := profile.NewProfileStore(profileDir)
	if err := ps.Load(); err != nil {
		return err
	}
	p, ok := ps.Get(args[0])
	if !ok {
		return fmt.Errorf("profile not found: %s", args[0])
	}
	data, err := profile.MarshalProfileYAML(p)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runProfileLint(cmd *cobra.Command, args []string) error {
	p, err := profile.LoadProfileFromFile(args[0])
	if err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "INVALID: %s\n", err)
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "VALID: %s\n  %s\n", p.Name, p.String())
	return nil
}

func runProfileInstall(cmd *cobra.Command, args []string) error {
	dir := profileDir
	if dir == "" {
		dir = "./profiles"
	}
	names, err := profile.InstallBuiltinProfiles(dir, profileOverwrite)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(names) == 0 {
		fmt.Fprintf(out, "All builtin profiles already defined in %s (use --overwrite to replace)\n", dir)
		return nil
	}
	fmt.Fprintf(out, "Installed builtin profiles to %s:\n", dir)
	for _, name := range names {
		fmt.Fprintf(out, "  - %s\n", name)
	}
	return nil
}

func validityString(p *profile.Profile) string {
	days := int(p.Validity.Hours() / 24)
	if days > 0 && days%365 == 0 {
		return fmt.Sprintf("%dy", days/365)
	}
	if days > 0 {
		return fmt.Sprintf("%dd", days)
	}
	return p.Validity.String()
}

func usageNames(usages []usage.Usage) string {
	names := make([]string, len(usages))
	for i, u := range usages {
		names[i] = strings.TrimPrefix(u.Tag(), usage.TagPrefix)
	}
	return strings.Join(names, ",")
}
