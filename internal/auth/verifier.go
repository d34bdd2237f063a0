// Package auth verifies operator bearer tokens at the transport edge.
//
// The gateway core trusts operator identifiers handed to it; this
// package is where the transport layer establishes them. Tokens are
// HS256 JWTs whose subject claim names the operator.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Verifier validates operator tokens.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier with the shared HS256 secret. An empty
// secret disables verification entirely (development mode); callers get
// the operator id from the request path instead.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Enabled reports whether token verification is configured.
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// Verify parses and validates a token, returning the operator id from
// the subject claim.
func (v *Verifier) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return sub, nil
}

// FromRequest extracts and verifies the bearer token of an HTTP
// request, returning the authenticated operator id.
func (v *Verifier) FromRequest(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", fmt.Errorf("%w: malformed authorization header", ErrInvalidToken)
	}
	return v.Verify(tokenString)
}

// IssueToken mints an operator token. Used by tests and provisioning
// tooling, not by the gateway request path.
func (v *Verifier) IssueToken(operatorID string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": operatorID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(ttl).Unix(),
	})
	return token.SignedString(v.secret)
}
