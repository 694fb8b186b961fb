// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity extracts claims from an unverified bearer JWT.
//
// This package performs no signature verification whatsoever. It
// delegates the segment decoding to jwt.Parser.ParseUnverified, the
// library's own non-verifying parse primitive, and never calls a
// verifying method. Callers must not treat the returned claims as an
// authenticated identity — anyone can mint a token with an arbitrary
// "sub". Signature verification, if a deployment needs it, belongs in
// a layer in front of this one.
package identity

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the decoded JSON object from a JWT payload segment. It is
// an alias for jwt.MapClaims purely so callers can use the same claim
// accessor helpers the rest of the ecosystem expects, not because any
// jwt.MapClaims validation method is ever invoked on it.
type Claims = jwt.MapClaims

// ErrMalformedPayload is returned when the Authorization header carries
// something that looks enough like a bearer JWT that the caller
// committed to treating it as one, but a segment failed to
// base64url-decode. Per spec §4.3, this is the one failure mode the
// admission pipeline must turn into 401 rather than silently falling
// back to anonymous.
var ErrMalformedPayload = errors.New("identity: undecodable JWT payload segment")

// Extract reads the Authorization header from headers and attempts to
// decode it as "Bearer <jwt>". It returns (nil, nil) for any input
// that simply isn't a bearer token (absent header, wrong scheme) or
// that jwt.Parser.ParseUnverified rejects for a reason other than a
// corrupt base64 segment (wrong segment count, a segment that decodes
// but isn't a JSON object) — spec's "None" outcome, which is not an
// error. It returns (nil, ErrMalformedPayload) only when the failure is
// a base64.CorruptInputError, i.e. a segment that isn't valid base64url
// at all.
func Extract(header http.Header) (Claims, error) {
	raw := header.Get("Authorization")
	if raw == "" {
		return nil, nil
	}

	parts := strings.Fields(raw)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, nil
	}

	claims := Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(parts[1], claims); err != nil {
		var corrupt base64.CorruptInputError
		if errors.As(err, &corrupt) {
			return nil, ErrMalformedPayload
		}
		return nil, nil
	}
	return claims, nil
}

// Subject concatenates the string values of the named claims, in
// order, with no separator (spec §4.4 step 4, §9 "no separator" Open
// Question resolution). ok is false if claims is nil or any named
// claim is missing or not a string, in which case the caller falls
// back to the effective quota's bucket code.
func Subject(claims Claims, params []string) (string, bool) {
	if claims == nil {
		return "", false
	}
	var b strings.Builder
	for _, p := range params {
		v, present := claims[p]
		s, isString := v.(string)
		if !present || !isString {
			return "", false
		}
		b.WriteString(s)
	}
	return b.String(), true
}
