// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Source resolves a configuration document from one of three places,
// in priority order, matching the original implementation's bootstrap
// (original_source/src/main.rs): an inline JSON value, a local file,
// or a remote URL.
type Source struct {
	// Inline is the literal JSON document (CONFIG_SETTING env var).
	Inline string
	// FilePath is a local file to read if Inline is empty.
	FilePath string
	// URL is fetched over HTTP(S) if both Inline and the file are
	// unavailable.
	URL string

	// HTTPClient is used for URL fetches. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Load resolves and parses the configuration document, then validates
// it. A validation failure or an inability to resolve any of the three
// sources is fatal: the caller should exit non-zero.
func (s Source) Load(ctx context.Context) (*Document, error) {
	data, origin, err := s.resolve(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config from %s: %w", origin, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("config from %s: %w", origin, err)
	}
	return doc, nil
}

func (s Source) resolve(ctx context.Context) (data []byte, origin string, err error) {
	if s.Inline != "" {
		return []byte(s.Inline), "CONFIG_SETTING", nil
	}

	if s.FilePath != "" {
		if data, err := os.ReadFile(s.FilePath); err == nil {
			return data, s.FilePath, nil
		}
	}

	if s.URL != "" {
		client := s.HTTPClient
		if client == nil {
			client = http.DefaultClient
		}
		reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, s.URL, nil)
		if err != nil {
			return nil, "", fmt.Errorf("building request for %s: %w", s.URL, err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, "", fmt.Errorf("fetching config from %s: %w", s.URL, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, "", fmt.Errorf("fetching config from %s: status %d", s.URL, resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, "", fmt.Errorf("reading config body from %s: %w", s.URL, err)
		}
		return body, s.URL, nil
	}

	return nil, "", fmt.Errorf("no configuration source available: CONFIG_SETTING, config.json, and CONFIG_URL are all unset")
}
