package chtransport

import "net/http"

// AuthConfig holds the three mutually exclusive authentication modes of
// spec.md §4.5/§6. Exactly zero or one of Password, AccessToken, SSLAuth may
// be set; Validate enforces this with a ConfigError, and NewEngine calls it
// at build time, never at call time, per spec.md §7 "ConfigError is thrown
// from the builder".
type AuthConfig struct {
	Username    string
	Password    string
	AccessToken string
	SSLAuth     bool
}

// Validate enforces the mutual-exclusion invariant.
func (a AuthConfig) Validate() error {
	set := 0
	if a.Password != "" {
		set++
	}
	if a.AccessToken != "" {
		set++
	}
	if a.SSLAuth {
		set++
	}
	if set > 1 {
		return &ConfigError{Option: "auth", Message: "password, access_token, and ssl_auth are mutually exclusive"}
	}
	return nil
}

// Apply sets the request's Authorization header according to the configured
// mode. SSL-client-auth carries no Authorization header at all (identity
// comes from the TLS handshake), matching spec.md §4.5 step 3.
func (a AuthConfig) Apply(req *http.Request) {
	switch {
	case a.AccessToken != "":
		req.Header.Set("Authorization", "Bearer "+a.AccessToken)
	case a.SSLAuth:
		// Identity is established by the client certificate; no header.
	default:
		if a.Username != "" || a.Password != "" {
			req.SetBasicAuth(a.Username, a.Password)
		}
	}
}
