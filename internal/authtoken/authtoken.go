// Package authtoken inspects OAuth-sourced bearer tokens held by a
// Provider credential (spec.md §3's "OAuth wins if both set" rule).
// Fold never mints or refreshes these tokens - access-token refresh is
// out of scope - but a token that has already expired is worth
// detecting locally rather than spending an HTTP round trip and a
// circuit-breaker failure finding out the hard way.
package authtoken

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Expired reports whether token is a JWT with an exp claim in the past.
// A token that isn't a parseable JWT (an opaque provider token, for
// example) is treated as never-expiring, since Fold has no way to know
// its lifetime; this function only ever grounds a reason to skip a
// provider, never a reason to trust one.
func Expired(token string) bool {
	if token == "" {
		return false
	}
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Now().After(exp.Time)
}
