// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package quota

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdmit_disabledAlwaysAdmits(t *testing.T) {
	r := NewRegistry()
	key := TokenHash{Subject: "a", Path: "/x", Method: "GET"}
	for i := 0; i < 100; i++ {
		out := r.Admit("code", Settings{Max: 1, Duration: 60}, true, key)
		require.Equal(t, Admitted, out)
	}
}

func TestAdmit_burstThenDeny(t *testing.T) {
	r := NewRegistry()
	key := TokenHash{Subject: "alice", Path: "/api", Method: "GET"}
	settings := Settings{Max: 2, Duration: 60}

	require.Equal(t, Admitted, r.Admit("bucket", settings, false, key))
	require.Equal(t, Admitted, r.Admit("bucket", settings, false, key))
	require.Equal(t, Denied, r.Admit("bucket", settings, false, key))
}

func TestAdmit_anonymousBlockedScenario(t *testing.T) {
	// spec §8 scenario 1: global quota {max:1, duration:60}. Two
	// admission-eligible requests for the same subject: first
	// admitted, second denied.
	r := NewRegistry()
	key := TokenHash{Subject: "alice", Path: "/", Method: "GET"}
	settings := Settings{Max: 1, Duration: 60}

	require.Equal(t, Admitted, r.Admit("global", settings, false, key))
	require.Equal(t, Denied, r.Admit("global", settings, false, key))
}

func TestAdmit_distinctSubjectsDoNotShareState(t *testing.T) {
	r := NewRegistry()
	settings := Settings{Max: 2, Duration: 60}

	keyA := TokenHash{Subject: "a", Path: "/api", Method: "GET"}
	keyB := TokenHash{Subject: "b", Path: "/api", Method: "GET"}

	require.Equal(t, Admitted, r.Admit("bucket", settings, false, keyA))
	require.Equal(t, Admitted, r.Admit("bucket", settings, false, keyA))
	require.Equal(t, Denied, r.Admit("bucket", settings, false, keyA))

	require.Equal(t, Admitted, r.Admit("bucket", settings, false, keyB))
	require.Equal(t, Admitted, r.Admit("bucket", settings, false, keyB))
}

func TestAdmit_ipFallbackScenario(t *testing.T) {
	r := NewRegistry()
	settings := Settings{Max: 1, Duration: 60}

	key1 := TokenHash{Subject: "10.0.0.1", Path: "/", Method: "GET"}
	key2 := TokenHash{Subject: "10.0.0.2", Path: "/", Method: "GET"}

	require.Equal(t, Admitted, r.Admit("global", settings, false, key1))
	require.Equal(t, Denied, r.Admit("global", settings, false, key1))
	require.Equal(t, Admitted, r.Admit("global", settings, false, key2))
}

func TestAdmit_sharedBucketCodeAcrossRoutes(t *testing.T) {
	// Two distinct routes sharing an explicit bucket code draw from one
	// pool, the documented cross-route sharing knob (spec §9).
	r := NewRegistry()
	settings := Settings{Max: 1, Duration: 60}

	keyRouteA := TokenHash{Subject: "alice", Path: "/a", Method: "GET"}
	keyRouteB := TokenHash{Subject: "alice", Path: "/b", Method: "GET"}

	require.Equal(t, Admitted, r.Admit("shared", settings, false, keyRouteA))
	// Same bucket code, different TokenHash (different path) -- still
	// a fresh key within the shared pool, so it gets its own budget.
	require.Equal(t, Admitted, r.Admit("shared", settings, false, keyRouteB))
}

func TestAdmit_concurrentCallsOnSameKeyAreSerialized(t *testing.T) {
	r := NewRegistry()
	key := TokenHash{Subject: "alice", Path: "/x", Method: "GET"}
	settings := Settings{Max: 50, Duration: 60}

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Admit("bucket", settings, false, key) == Admitted {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 50, admitted)
}

func TestAdmit_concurrentCreationRaceAdmitsOnce(t *testing.T) {
	r := NewRegistry()
	settings := Settings{Max: 1, Duration: 60}

	var wg sync.WaitGroup
	results := make([]Outcome, 20)
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := TokenHash{Subject: "s", Path: "/", Method: "GET"}
			results[i] = r.Admit("bucket-unique", settings, false, key)
		}()
	}
	wg.Wait()
	// All 20 goroutines race to create/consult the SAME bucket-code's
	// SAME key; exactly one of the max=1 budget should be admitted.
	admitted := 0
	for _, o := range results {
		if o == Admitted {
			admitted++
		}
	}
	require.Equal(t, 1, admitted)
}
