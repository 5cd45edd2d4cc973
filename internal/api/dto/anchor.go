package dto

// AnchorInfo describes a trust anchor.
type AnchorInfo struct {
	Name      string        `json:"name"`
	PublicKey PublicKeyInfo `json:"public_key"`
	NotBefore string        `json:"not_before"`
	NotAfter  string        `json:"not_after,omitempty"`
	Comment   string        `json:"comment,omitempty"`
	Protocols []string      `json:"protocols,omitempty"`
	Active    bool          `json:"active"`
}

// AnchorListResponse lists trust anchors.
type AnchorListResponse struct {
	Anchors []AnchorInfo `json:"anchors"`
}
