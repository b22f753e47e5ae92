// Package health queries the status server of a running formsctl agent.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/marmos91/formsync/pkg/api/handlers"
)

// DefaultTimeout bounds a status request.
const DefaultTimeout = 5 * time.Second

// Response is the envelope returned by the agent's status endpoints.
type Response struct {
	Status    string           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Data      *handlers.Status `json:"data,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// FetchStatus requests GET <baseURL>/status.
func FetchStatus(ctx context.Context, client *http.Client, baseURL string) (*Response, error) {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	url := strings.TrimRight(baseURL, "/") + "/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent unreachable at %s: %w", baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse agent status: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := out.Error
		if msg == "" {
			msg = resp.Status
		}
		return &out, fmt.Errorf("agent status unavailable: %s", msg)
	}
	return &out, nil
}
