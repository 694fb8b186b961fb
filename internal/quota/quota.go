// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package quota owns the live token-bucket pools described in spec
// §4.2: one pool per bucket code, lazily created on first admission
// check, each pool itself a keyed map from TokenHash to an independent
// token bucket.
package quota

import (
	"sync"

	"golang.org/x/time/rate"
)

// TokenHash is the key presented to the registry for each admission
// check: the tuple (subject_code, path, method). Equality and hashing
// use all three fields, which a Go struct used as a map key gives for
// free.
type TokenHash struct {
	Subject string
	Path    string
	Method  string
}

// Settings is the replenishment contract for a bucket pool: burst
// capacity max, refilling at max/duration tokens per second.
type Settings struct {
	Max      uint32
	Duration uint64
}

// Outcome is the result of an admission check.
type Outcome int

const (
	Admitted Outcome = iota
	Denied
)

// pool is the keyed bucket store for a single bucket code: one
// *rate.Limiter per TokenHash, created lazily.
type pool struct {
	max      float64
	interval float64 // seconds
	limiters sync.Map // TokenHash -> *rate.Limiter
}

func newPool(s Settings) *pool {
	return &pool{max: float64(s.Max), interval: float64(s.Duration)}
}

// limiterFor returns the existing limiter for key, creating one with a
// full burst of max tokens if this is the first time key is seen. A
// brand-new limiter's first Allow() call always succeeds, which is
// exactly what gives both a freshly created pool and a freshly seen
// key within an existing pool the "creation admits" behaviour spec §9
// describes — it falls out of the token bucket's own semantics rather
// than needing a special-cased bypass.
func (p *pool) limiterFor(key TokenHash) *rate.Limiter {
	if existing, ok := p.limiters.Load(key); ok {
		return existing.(*rate.Limiter)
	}
	ratePerSec := p.max / p.interval
	lim := rate.NewLimiter(rate.Limit(ratePerSec), int(p.max))
	actual, _ := p.limiters.LoadOrStore(key, lim)
	return actual.(*rate.Limiter)
}

// Registry is the process-wide set of live bucket pools. It is safe
// for concurrent use by arbitrarily many goroutines: distinct bucket
// codes never contend with each other, and distinct keys within the
// same pool are backed by independent *rate.Limiter instances in a
// sync.Map, so they don't block each other either.
type Registry struct {
	pools sync.Map // bucket code -> *pool
}

// NewRegistry returns an empty registry. Pools are created lazily by
// Admit on first use of a bucket code.
func NewRegistry() *Registry {
	return &Registry{}
}

// Admit is the single admission primitive from spec §4.2: disabled
// quotas always admit without touching any state; otherwise the pool
// for code is fetched or lazily created (first writer wins on a
// creation race, via LoadOrStore), and the key's own bucket within
// that pool makes the decision.
func (r *Registry) Admit(code string, settings Settings, disabled bool, key TokenHash) Outcome {
	if disabled {
		return Admitted
	}

	actual, loaded := r.pools.Load(code)
	if !loaded {
		actual, _ = r.pools.LoadOrStore(code, newPool(settings))
	}

	if actual.(*pool).limiterFor(key).Allow() {
		return Admitted
	}
	return Denied
}
