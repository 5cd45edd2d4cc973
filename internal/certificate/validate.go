package certificate

import (
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Validate checks the invariants New does not enforce: the validity window
// must not be inverted, and policy, distribution point and contact URLs must
// be absolute http(s) URLs on a registrable domain or an IP address. All
// problems are reported together.
//
// Validate does not evaluate usages or path-length constraints; that is the
// job of a chain validator.
func (c *Certificate) Validate() error {
	var errs []error

	if c.notBefore.After(c.notAfter) {
		errs = append(errs, fmt.Errorf("%w: %s > %s", ErrInvalidValidity, c.notBefore, c.notAfter))
	}

	if c.policy != "" {
		if err := validateURL(c.policy); err != nil {
			errs = append(errs, fmt.Errorf("policy: %w", err))
		}
	}
	for _, dp := range []struct {
		name string
		urls []string
	}{
		{"distributionPoints", c.distributionPoints},
		{"revocationDistributionPoints", c.revocationDistributionPoints},
		{"deltaDistributionPoints", c.deltaDistributionPoints},
	} {
		for _, u := range dp.urls {
			if err := validateURL(u); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", dp.name, err))
			}
		}
	}

	if c.owner.WWW != "" {
		if err := validateURL(c.owner.WWW); err != nil {
			errs = append(errs, fmt.Errorf("owner.www: %w", err))
		}
	}
	if c.owner.EMail != "" {
		if err := validateEMail(c.owner.EMail); err != nil {
			errs = append(errs, fmt.Errorf("owner.eMail: %w", err))
		}
	}

	for _, sig := range c.signatures {
		if sig.notBefore != nil && sig.notAfter != nil && sig.notBefore.After(*sig.notAfter) {
			errs = append(errs, fmt.Errorf("signature %s: %w", sig.id, ErrInvalidValidity))
		}
	}

	if len(errs) > 0 {
		return newError("validate", c.id.String(), errors.Join(errs...))
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %q must use http or https", ErrInvalidURL, raw)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("%w: %q has no host", ErrInvalidURL, raw)
	}
	if err := validateHost(u.Hostname()); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidURL, raw, err)
	}
	return nil
}

func validateEMail(raw string) error {
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEMail, err)
	}
	at := strings.LastIndex(addr.Address, "@")
	if at < 0 {
		return fmt.Errorf("%w: %q", ErrInvalidEMail, raw)
	}
	if err := validateHost(addr.Address[at+1:]); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidEMail, raw, err)
	}
	return nil
}

// validateHost accepts IP addresses and names below a public suffix.
func validateHost(host string) error {
	if net.ParseIP(host) != nil {
		return nil
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(strings.ToLower(host)); err != nil {
		return err
	}
	return nil
}
