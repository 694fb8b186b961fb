// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package config defines the gateway's JSON configuration document and
// the types the rest of the pipeline depends on: quotas, JWT-claim
// selection, and the route-pattern to method-to-quota mapping.
package config

import (
	"fmt"

	"github.com/quotagate/gateway/internal/gwerr"
	"github.com/quotagate/gateway/internal/gwjson"
)

// JWTValidation selects which claim(s) of the unverified bearer token
// form the rate-limit subject, and whether a missing/invalid token
// should be rejected outright.
type JWTValidation struct {
	Validate bool     `json:"validate"`
	Params   []string `json:"params"`
}

// Quota is the burst/replenishment contract for one bucket pool,
// plus the subject-selection rule applied to requests governed by it.
type Quota struct {
	// Code names the shared bucket pool this quota draws from. Left
	// empty in source configuration, a route quota's code is filled in
	// deterministically by routeindex.Build from the owning (pattern,
	// method) pair; the global quota's code defaults to the literal
	// "global" instead, applied by Parse.
	Code          string        `json:"code"`
	Max           uint32        `json:"max"`
	Duration      uint64        `json:"duration"`
	JWTValidation JWTValidation `json:"jwt_validation"`
	Disabled      bool          `json:"disabled"`
}

// MethodMap is the leaf of a route pattern: HTTP method (as provided
// in the document) to the Quota governing that method on that pattern.
type MethodMap map[string]Quota

// Document is the JSON configuration document described in spec §6.
// Field names match the wire format used by the original implementation
// and reproduced in spec §6's example, not the prose names of spec §3.
type Document struct {
	Port          uint16               `json:"port"`
	Proxy         string               `json:"proxy"`
	Timeout       uint64               `json:"timeout"`
	GlobalLimiter Quota                `json:"global_limiter"`
	Limiters      map[string]MethodMap `json:"limiters"`
}

// Parse decodes a JSON configuration document. It does not validate it;
// call Validate before using the result.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := gwjson.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s", gwerr.ErrConfigInvalid, err)
	}
	// spec §3: a Quota's bucket_code defaults to the literal "global"
	// when omitted. Route quotas get their own deterministic
	// (pattern, method) derivation in routeindex.Build instead; this
	// default applies only to the global quota, which has no such pair.
	if doc.GlobalLimiter.Code == "" {
		doc.GlobalLimiter.Code = "global"
	}
	return &doc, nil
}

// Validate enforces the load-time contracts from spec §4.1: every
// quota (including the global one) needs max >= 1 and duration >= 1.
// Patterns colliding on the same segment path (e.g. two different
// parameter names at the same position) are caught later by
// routeindex.Build, which is the component that actually knows how
// patterns compare once split into segments.
func (d *Document) Validate() error {
	if err := d.GlobalLimiter.validate("global_limiter"); err != nil {
		return err
	}
	for pattern, methods := range d.Limiters {
		for method, quota := range methods {
			if err := quota.validate(fmt.Sprintf("limiters[%s][%s]", pattern, method)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (q Quota) validate(field string) error {
	if q.Max < 1 {
		return fmt.Errorf("%w: %s.max must be >= 1, got %d", gwerr.ErrConfigInvalid, field, q.Max)
	}
	if q.Duration < 1 {
		return fmt.Errorf("%w: %s.duration must be >= 1, got %d", gwerr.ErrConfigInvalid, field, q.Duration)
	}
	return nil
}
