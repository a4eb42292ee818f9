package types

import "time"

// Credentials is a resolved bearer credential for the metadata service
type Credentials struct {
	AccessToken string
	ServerURL   string
	CreatedAt   time.Time
	// ExpiryDate is zero for tokens that do not expire
	ExpiryDate time.Time
}

// Expired reports whether the credential has a known expiry in the past
func (c *Credentials) Expired(now time.Time) bool {
	return !c.ExpiryDate.IsZero() && now.After(c.ExpiryDate)
}

// StoredCredentials is the persisted form of Credentials
type StoredCredentials struct {
	Profile     string `json:"profile"`
	AccessToken string `json:"access_token,omitempty"`
	ServerURL   string `json:"server_url,omitempty"`
	CreatedAt   string `json:"created_at"`
	ExpiryDate  string `json:"expiry_date,omitempty"`
}
