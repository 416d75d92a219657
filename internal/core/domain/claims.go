package domain

import "github.com/golang-jwt/jwt/v5"

// EphemeralClaims is the payload of a request-bound capability token.
// The token authorizes exactly one call: Method + Path + the body hashing to BodyHash.
type EphemeralClaims struct {
	Method   string `json:"method,omitempty"`
	Path     string `json:"path,omitempty"`
	BodyHash string `json:"bodyHash,omitempty"`
	Nonce    string `json:"nonce,omitempty"`
	Net      string `json:"net,omitempty"`
	jwt.RegisteredClaims
}

// MissingClaim returns the first required claim that is absent, or "".
func (c *EphemeralClaims) MissingClaim() string {
	switch {
	case c.Issuer == "":
		return "iss"
	case c.Subject == "":
		return "sub"
	case c.Method == "":
		return "method"
	case c.Path == "":
		return "path"
	case c.BodyHash == "":
		return "bodyHash"
	case c.Nonce == "":
		return "nonce"
	}
	return ""
}
