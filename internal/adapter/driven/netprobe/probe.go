// Package netprobe implements the Connectivity port by dialing the GitHub API host.
package netprobe

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"time"

	"github.com/ericfisherdev/prmonitor/internal/domain/port/driven"
)

// DefaultAPIURL is probed when no GitHub Enterprise URL is configured.
const DefaultAPIURL = "https://api.github.com/"

// Compile-time interface satisfaction check.
var _ driven.Connectivity = (*Probe)(nil)

// Probe reports the network as online when a TCP connection to the API host
// can be opened within the timeout.
type Probe struct {
	addr    string
	timeout time.Duration
}

// NewProbe creates a Probe for the host of apiURL. The port defaults to the
// scheme's well-known port.
func NewProbe(apiURL string, timeout time.Duration) (*Probe, error) {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	u, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("parsing API URL: %w", err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("API URL %q has no host", apiURL)
	}

	port := u.Port()
	if port == "" {
		port = "443"
		if u.Scheme == "http" {
			port = "80"
		}
	}

	return &Probe{addr: net.JoinHostPort(u.Hostname(), port), timeout: timeout}, nil
}

// Addr returns the host:port the probe dials.
func (p *Probe) Addr() string {
	return p.addr
}

// IsOnline dials the API host and closes the connection right away.
func (p *Probe) IsOnline(ctx context.Context) bool {
	dialer := net.Dialer{Timeout: p.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		slog.Debug("network probe failed", "addr", p.addr, "error", err)
		return false
	}
	_ = conn.Close()
	return true
}
