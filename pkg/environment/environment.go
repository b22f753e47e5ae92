// Package environment abstracts the device's connectivity so the queue,
// the synchronizer and the uploader can be driven deterministically.
package environment

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/formsync/internal/logger"
)

// NetworkClass is the effective connection type.
type NetworkClass string

const (
	NetworkSlow2G  NetworkClass = "slow-2g"
	Network2G      NetworkClass = "2g"
	Network3G      NetworkClass = "3g"
	Network4G      NetworkClass = "4g"
	NetworkUnknown NetworkClass = ""
)

// ParseNetworkClass parses a class name; unrecognized names are unknown.
func ParseNetworkClass(s string) NetworkClass {
	switch c := NetworkClass(strings.ToLower(strings.TrimSpace(s))); c {
	case NetworkSlow2G, Network2G, Network3G, Network4G:
		return c
	default:
		return NetworkUnknown
	}
}

// Probe reports connectivity.
type Probe interface {
	IsOffline(ctx context.Context) bool
	NetworkClass(ctx context.Context) NetworkClass
}

// Static is a Probe whose answers are set explicitly. Safe for concurrent
// use; tests flip it to simulate connectivity changes.
type Static struct {
	mu      sync.RWMutex
	offline bool
	class   NetworkClass
}

// NewStatic creates a static probe.
func NewStatic(offline bool, class NetworkClass) *Static {
	return &Static{offline: offline, class: class}
}

func (s *Static) IsOffline(context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offline
}

func (s *Static) NetworkClass(context.Context) NetworkClass {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.class
}

// SetOffline changes the offline answer.
func (s *Static) SetOffline(offline bool) {
	s.mu.Lock()
	s.offline = offline
	s.mu.Unlock()
}

// SetNetworkClass changes the network class answer.
func (s *Static) SetNetworkClass(class NetworkClass) {
	s.mu.Lock()
	s.class = class
	s.mu.Unlock()
}

// HTTPProbe considers the device online when a HEAD request to URL gets
// any HTTP response within Timeout. A server error still proves
// connectivity; only transport failures count as offline.
type HTTPProbe struct {
	URL     string
	Timeout time.Duration
	Class   NetworkClass // reported as-is; there is no portable way to measure it
	Client  *http.Client
}

// NewHTTPProbe creates a probe against url.
func NewHTTPProbe(url string, timeout time.Duration, class NetworkClass) *HTTPProbe {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPProbe{URL: url, Timeout: timeout, Class: class, Client: &http.Client{}}
}

func (p *HTTPProbe) IsOffline(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		logger.Warn("Invalid connectivity probe URL", "url", p.URL, logger.Err(err))
		return true
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		logger.Debug("Connectivity probe failed", "url", p.URL, logger.Err(err))
		return true
	}
	_ = resp.Body.Close()
	return false
}

func (p *HTTPProbe) NetworkClass(context.Context) NetworkClass {
	return p.Class
}
