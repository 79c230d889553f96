// Package httpclient builds pooled *http.Client instances shared across the
// proxy's upstream and backend connections.
package httpclient

import (
	"net/http"
	"time"
)

// NewPooled creates an http.Client with connection pooling and tuned
// transport settings suitable for many short-lived upstream requests sharing
// a small set of hosts.
func NewPooled(poolSize int, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:          poolSize,
			MaxIdleConnsPerHost:   poolSize,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}

// NewStreaming creates an http.Client tuned for long-lived streaming
// responses (e.g. SSE relays), where Timeout must not cap total body
// duration — the caller enforces idle-between-events timeouts itself.
func NewStreaming(poolSize int, headerTimeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:          poolSize,
			MaxIdleConnsPerHost:   poolSize,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: headerTimeout,
			ForceAttemptHTTP2:     true,
		},
	}
}
