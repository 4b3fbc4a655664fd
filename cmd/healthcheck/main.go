// Command healthcheck exits non-zero unless the monitor at
// PRMONITOR_LISTEN_ADDR reports a readable status. A GitHub error badge still
// counts as healthy: the process is up and serving.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"
)

const (
	defaultAddr  = "127.0.0.1:8080"
	checkTimeout = 2 * time.Second
)

// statusBody is the subset of GET /api/v1/status the check depends on.
type statusBody struct {
	Status string `json:"status"`
	Badge  struct {
		Kind string `json:"kind"`
	} `json:"badge"`
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	baseURL := "http://" + normalizeAddr(os.Getenv("PRMONITOR_LISTEN_ADDR"))
	if err := checkStatus(ctx, &http.Client{Timeout: checkTimeout}, baseURL); err != nil {
		fmt.Fprintln(os.Stderr, "healthcheck:", err)
		os.Exit(1)
	}
}

func checkStatus(ctx context.Context, client *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/v1/status", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("get status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get status: unexpected HTTP %d", resp.StatusCode)
	}

	var body statusBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	if body.Status == "" || body.Badge.Kind == "" {
		return errors.New("status response is missing status or badge")
	}
	return nil
}

// normalizeAddr points the check at loopback when the monitor binds every
// interface; the check runs next to the process it inspects.
func normalizeAddr(raw string) string {
	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return defaultAddr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
