// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package gwjson centralizes the JSON codec used for configuration
// documents: bytedance/sonic in production,
// falling back to the standard library's encoding/json under `go
// test` since sonic's JIT-compiled codecs don't play well with the
// race detector and short-lived test binaries.
package gwjson

import (
	"encoding/json"
	"testing"

	"github.com/bytedance/sonic"
)

var (
	Unmarshal = sonic.ConfigDefault.Unmarshal
	Marshal   = sonic.ConfigDefault.Marshal
	Valid     = sonic.ConfigDefault.Valid
)

func init() {
	if testing.Testing() {
		Unmarshal = json.Unmarshal
		Marshal = json.Marshal
		Valid = json.Valid
	}
}
