// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package admission implements the per-request decision pipeline from
// spec §4.4: resolve the effective quota, derive the subject code,
// build the bucket key, and consult the quota registry.
package admission

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/quotagate/gateway/internal/config"
	"github.com/quotagate/gateway/internal/gwerr"
	"github.com/quotagate/gateway/internal/identity"
	"github.com/quotagate/gateway/internal/quota"
	"github.com/quotagate/gateway/internal/routeindex"
)

// Pipeline wires the route index and quota registry into the
// admission decision. It holds no per-request state and is safe to
// share across goroutines (the Index is immutable and the Registry is
// internally synchronized).
type Pipeline struct {
	Index    *routeindex.Index
	Registry *quota.Registry
	Global   config.Quota
	// TrustForwardedFor enables honoring the first X-Forwarded-For
	// entry as the client address for IP-fallback subjects, for
	// deployments that sit behind a trusted load balancer.
	TrustForwardedFor bool
}

// Decision is the outcome of running the pipeline against one request.
// Err is gwerr.ErrUnauthorized, gwerr.ErrRateLimited, or nil
// (admitted, proceed to forwarding).
type Decision struct {
	Err            error
	EffectiveQuota config.Quota
	Key            quota.TokenHash
}

// Run executes spec §4.4 steps 1-6 against req.
func (p *Pipeline) Run(req *http.Request) Decision {
	claims, err := identity.Extract(req.Header)
	if errors.Is(err, identity.ErrMalformedPayload) {
		return Decision{Err: gwerr.ErrUnauthorized}
	}

	effective := p.resolveQuota(req)

	if claims == nil && p.Global.JWTValidation.Validate {
		return Decision{Err: gwerr.ErrUnauthorized}
	}

	subject := p.deriveSubject(claims, effective, req)

	key := quota.TokenHash{
		Subject: subject,
		Path:    req.URL.Path,
		Method:  strings.ToUpper(req.Method),
	}

	outcome := p.Registry.Admit(
		effective.Code,
		quota.Settings{Max: effective.Max, Duration: effective.Duration},
		effective.Disabled,
		key,
	)
	if outcome == quota.Denied {
		return Decision{Err: gwerr.ErrRateLimited, EffectiveQuota: effective, Key: key}
	}
	return Decision{EffectiveQuota: effective, Key: key}
}

// resolveQuota implements spec §4.4 step 3: a route match whose
// method map contains the request's (uppercased) method wins;
// otherwise the global quota governs.
func (p *Pipeline) resolveQuota(req *http.Request) config.Quota {
	if p.Index == nil {
		return p.Global
	}
	match, ok := p.Index.Lookup(req.URL.Path)
	if !ok {
		return p.Global
	}
	if q, ok := match.Methods[strings.ToUpper(req.Method)]; ok {
		return q
	}
	return p.Global
}

// deriveSubject implements spec §4.4 step 4.
func (p *Pipeline) deriveSubject(claims identity.Claims, effective config.Quota, req *http.Request) string {
	if claims != nil {
		if subj, ok := identity.Subject(claims, effective.JWTValidation.Params); ok {
			return subj
		}
		return effective.Code
	}
	return p.clientIP(req)
}

// clientIP implements the IP-fallback subject from spec §4.4 step 4:
// the connection's real IP, honoring the first X-Forwarded-For entry
// when configured to trust one, or the literal "not_found" string.
func (p *Pipeline) clientIP(req *http.Request) string {
	if p.TrustForwardedFor {
		if fwd := req.Header.Get("X-Forwarded-For"); fwd != "" {
			first := strings.TrimSpace(strings.Split(fwd, ",")[0])
			if first != "" {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	if host == "" {
		return "not_found"
	}
	return host
}
