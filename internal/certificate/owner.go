package certificate

import (
	"fmt"
	"strings"

	"github.com/remiblancher/evpki/internal/canonical"
)

// Owner describes the party a certificate is issued to.
type Owner struct {
	Name        string
	Description string
	ExternalID  string // identifier of the owner in an external registry
	EMail       string
	WWW         string
}

// ToJSON renders the owner record.
func (o Owner) ToJSON() canonical.Document {
	doc := canonical.Document{"name": o.Name}
	if o.Description != "" {
		doc["description"] = o.Description
	}
	if o.ExternalID != "" {
		doc["id"] = o.ExternalID
	}
	if o.EMail != "" {
		doc["eMail"] = o.EMail
	}
	if o.WWW != "" {
		doc["www"] = o.WWW
	}
	return doc
}

// ParseOwner decodes an owner record.
func ParseOwner(doc canonical.Document) (Owner, error) {
	var (
		o   Owner
		err error
	)
	if o.Name, err = doc.String("name"); err != nil {
		return Owner{}, fmt.Errorf("owner: %w", err)
	}
	if o.Description, err = doc.OptString("description"); err != nil {
		return Owner{}, fmt.Errorf("owner: %w", err)
	}
	if o.ExternalID, err = doc.OptString("id"); err != nil {
		return Owner{}, fmt.Errorf("owner: %w", err)
	}
	if o.EMail, err = doc.OptString("eMail"); err != nil {
		return Owner{}, fmt.Errorf("owner: %w", err)
	}
	if o.WWW, err = doc.OptString("www"); err != nil {
		return Owner{}, fmt.Errorf("owner: %w", err)
	}
	return o, nil
}

func (o Owner) isZero() bool {
	return strings.TrimSpace(o.Name) == ""
}
