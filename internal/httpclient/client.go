// Package httpclient configures the outbound HTTP client shared by the
// dataset fetchers.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// NewOutbound creates a pooled outbound client tuned for many
// concurrent short-to-medium provider requests. timeout bounds each
// whole request; main passes the configurable download timeout
// (ETMAP_DOWNLOAD_TIMEOUT_SECONDS).
func NewOutbound(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   128,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
