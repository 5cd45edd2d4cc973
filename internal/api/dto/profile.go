package dto

// ProfileInfo describes a certificate profile.
type ProfileInfo struct {
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	Curve         string   `json:"curve"`
	Usages        []string `json:"usages,omitempty"`
	MaxPathLength *int     `json:"max_path_length,omitempty"`
	Validity      string   `json:"validity"`
	IsIssuer      bool     `json:"is_issuer"`
	Policy        string   `json:"policy,omitempty"`
}

// ProfileListResponse lists profiles.
type ProfileListResponse struct {
	Profiles []ProfileInfo `json:"profiles"`
}
