// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package dl

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultUserAgent is sent on every request unless overridden via
// ClientConfig.UserAgent.
const DefaultUserAgent = "pkgforge/soar"

// ClientConfig configures the process-wide shared HTTP client (§4.3).
type ClientConfig struct {
	Proxy     string
	UserAgent string
	Headers   map[string]string
}

var (
	clientMu  sync.RWMutex
	client    *http.Client
	clientCfg ClientConfig
)

// buildClient constructs an *http.Client from cfg. A non-empty Proxy must
// parse as a URL or the build fails.
func buildClient(cfg ClientConfig) (*http.Client, error) {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url %q: %w", cfg.Proxy, err)
		}
		tr.Proxy = http.ProxyURL(proxyURL)
	}

	return &http.Client{Transport: tr}, nil
}

// SharedClient lazily constructs (on first use) and returns the
// process-wide HTTP client. Safe for concurrent first-use.
func SharedClient() *http.Client {
	clientMu.RLock()
	c := client
	clientMu.RUnlock()
	if c != nil {
		return c
	}

	clientMu.Lock()
	defer clientMu.Unlock()
	if client == nil {
		// buildClient with zero-value ClientConfig never errors.
		client, _ = buildClient(ClientConfig{})
	}
	return client
}

// Reconfigure atomically replaces the shared client and its stored config.
// On failure (e.g. an invalid proxy URL) the previous client is retained
// and the error is returned.
func Reconfigure(cfg ClientConfig) error {
	newClient, err := buildClient(cfg)
	if err != nil {
		return err
	}

	clientMu.Lock()
	defer clientMu.Unlock()
	client = newClient
	clientCfg = cfg
	return nil
}

// currentConfig returns the config most recently applied via Reconfigure.
func currentConfig() ClientConfig {
	clientMu.RLock()
	defer clientMu.RUnlock()
	return clientCfg
}

// applyRequestHeaders sets the User-Agent and any custom headers from the
// shared config onto req.
func applyRequestHeaders(req *http.Request) {
	cfg := currentConfig()
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
}

// ParseHeaderFlag parses a user-supplied "K: V" string, splitting once on
// the first colon and trimming both sides. Malformed entries (no colon)
// return ok=false.
func ParseHeaderFlag(s string) (key, value string, ok bool) {
	idx := strings.Index(s, ":")
	if idx < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(s[:idx])
	value = strings.TrimSpace(s[idx+1:])
	if key == "" {
		return "", "", false
	}
	return key, value, true
}

// ParseHeaderFlags parses a repeatable set of "K: V" strings into a header
// map, skipping malformed entries.
func ParseHeaderFlags(flags []string) map[string]string {
	headers := make(map[string]string, len(flags))
	for _, f := range flags {
		if k, v, ok := ParseHeaderFlag(f); ok {
			headers[k] = v
		}
	}
	return headers
}
