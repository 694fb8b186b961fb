// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package routeindex builds the immutable path-pattern trie described
// in spec §3/§4.1: a route pattern ("/users/:id") to method to Quota
// mapping, with deterministic bucket-code assignment and static-first,
// non-backtracking match lookup.
//
// Each trie node indexes its static children with an immutable radix
// tree (hashicorp/go-immutable-radix) keyed by path segment; a single
// named-parameter edge, if present, is tried only after the static
// children miss, so literal segments always outrank parameters at the
// same depth.
package routeindex

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	iradix "github.com/hashicorp/go-immutable-radix/v2"

	"github.com/quotagate/gateway/internal/config"
	"github.com/quotagate/gateway/internal/gwerr"
)

// Match is the result of a successful lookup: the pattern that matched,
// the named parameters extracted from the request path, and the
// method-to-quota map declared for that pattern.
type Match struct {
	Pattern string
	Params  map[string]string
	Methods config.MethodMap
}

type leaf struct {
	pattern string
	methods config.MethodMap
}

type paramEdge struct {
	name string
	next *node
}

type node struct {
	static *iradix.Tree[*node]
	param  *paramEdge
	leaf   *leaf
}

func newNode() *node {
	return &node{static: iradix.New[*node]()}
}

// Index is the immutable route recognizer built once from a
// config.Document and shared read-only across all request goroutines.
type Index struct {
	root *node
}

// Build constructs the trie from the document's route declarations,
// assigning a deterministic bucket code to any Quota whose Code is
// empty. Build fails if two patterns collide on the exact same
// segment path (spec §4.1: "duplicate patterns are rejected").
func Build(doc *config.Document) (*Index, error) {
	root := newNode()
	for pattern, methods := range doc.Limiters {
		segments := splitPattern(pattern)
		assigned := make(config.MethodMap, len(methods))
		for method, quota := range methods {
			if quota.Code == "" {
				quota.Code = deriveBucketCode(pattern, method)
			}
			assigned[strings.ToUpper(method)] = quota
		}
		var err error
		root, err = insert(root, pattern, segments, assigned)
		if err != nil {
			return nil, err
		}
	}
	return &Index{root: root}, nil
}

func insert(root *node, pattern string, segments []string, methods config.MethodMap) (*node, error) {
	cur := root
	for _, seg := range segments {
		var next *node
		if isParam(seg) {
			name := seg[1:]
			if cur.param != nil {
				if cur.param.name != name {
					return nil, fmt.Errorf("%w: pattern %q conflicts with an existing parameter name %q at the same position",
						gwerr.ErrConfigInvalid, pattern, cur.param.name)
				}
				next = cur.param.next
			} else {
				next = newNode()
				cur.param = &paramEdge{name: name, next: next}
			}
		} else {
			key := []byte(seg)
			if existing, ok := cur.static.Get(key); ok {
				next = existing
			} else {
				next = newNode()
				tree, _, _ := cur.static.Insert(key, next)
				cur.static = tree
			}
		}
		cur = next
	}

	if cur.leaf != nil {
		return nil, fmt.Errorf("%w: duplicate route pattern %q", gwerr.ErrConfigInvalid, pattern)
	}
	cur.leaf = &leaf{pattern: pattern, methods: methods}
	return root, nil
}

// Lookup resolves a request path against the trie, returning the
// matched pattern's method map, or ok=false if nothing matches (the
// caller then falls back to the global quota per spec §4.1).
//
// The descent is greedy: at each segment a static child is taken
// whenever one exists, the parameter edge only otherwise, and a chosen
// branch is never backtracked. A path therefore matches nothing when a
// static child leads to no leaf, even if the parameter edge would: with
// "/users/static/x" and "/users/:id" declared, "/users/static" has no
// match.
func (idx *Index) Lookup(path string) (Match, bool) {
	segments := splitPath(path)
	params := make(map[string]string)
	cur := idx.root
	for _, seg := range segments {
		if child, ok := cur.static.Get([]byte(seg)); ok {
			cur = child
			continue
		}
		if cur.param != nil {
			params[cur.param.name] = seg
			cur = cur.param.next
			continue
		}
		return Match{}, false
	}
	if cur.leaf == nil {
		return Match{}, false
	}
	return Match{Pattern: cur.leaf.pattern, Params: params, Methods: cur.leaf.methods}, true
}

func isParam(segment string) bool {
	return strings.HasPrefix(segment, ":")
}

func splitPattern(pattern string) []string {
	return splitPath(pattern)
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// deriveBucketCode deterministically derives a bucket code for a
// (pattern, method) pair that omitted an explicit one in source
// configuration. It must be stable across process restarts for the
// same configuration (spec §3), so it is a pure hash of the two
// inputs rather than anything time- or memory-address-derived.
func deriveBucketCode(pattern, method string) string {
	sum := sha256.Sum256([]byte(strings.ToUpper(method) + " " + pattern))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
