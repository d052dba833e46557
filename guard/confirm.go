package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/opscache"
)

// HTTPError is a non-2xx answer from the confirmation endpoint.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (h *HTTPError) Error() string {
	return fmt.Sprintf("http error: %d: %s: %s", h.StatusCode, h.Status, h.Body)
}

// HTTPConfirmer calls a login-status endpoint:
//
//	POST <URL>
//	Authorization: Bearer <token>
//	X-Request-ID: <uuid>
//
//	200 {"valid": true|false}
//
// Any non-2xx status or undecodable body is a transport failure.
type HTTPConfirmer struct {
	URL    string
	Client *http.Client
}

var _ Confirmer = (*HTTPConfirmer)(nil)

func NewHTTPConfirmer(url string, timeout time.Duration) *HTTPConfirmer {
	return &HTTPConfirmer{URL: url, Client: &http.Client{Timeout: timeout}}
}

type confirmResponse struct {
	Valid bool `json:"valid"`
}

func (c *HTTPConfirmer) Confirm(ctx context.Context, token string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, nil)
	if err != nil {
		return false, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, opscache.Transport("confirm", "", err)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
	if err != nil {
		return false, opscache.Transport("confirm", "", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, opscache.Transport("confirm", "", &HTTPError{resp.StatusCode, resp.Status, string(b)})
	}

	var out confirmResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return false, opscache.Transport("confirm", "", fmt.Errorf("decode response: %w", err))
	}
	return out.Valid, nil
}
