// internal/api/client.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spotterhq/spotter/internal/storage"
	"github.com/spotterhq/spotter/pkg/core"
)

const (
	candidatesPath  = "/api/v1/candidates"
	healthcheckPath = "/healthcheck"
	maxErrorBody    = 512
)

// Client fetches candidates from a live candidate service, such as an
// aircraft position feed or a points-of-interest index.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type candidatesResponse struct {
	Candidates []core.CandidateObject `json:"candidates"`
}

// New creates a new API client.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Init is a no-op; reachability is checked with Healthcheck.
func (c *Client) Init() error {
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Healthcheck checks if the candidate service is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthcheckPath, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

// FetchCandidates queries the service for candidates near origin.
// Transport and server failures wrap core.ErrCandidateSourceUnavailable.
func (c *Client) FetchCandidates(ctx context.Context, category core.Category, origin core.GeoCoordinate, radius float64) ([]core.CandidateObject, error) {
	q := url.Values{}
	q.Set("category", string(category))
	q.Set("lat", strconv.FormatFloat(origin.Latitude, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(origin.Longitude, 'f', -1, 64))
	q.Set("radius", strconv.FormatFloat(radius, 'f', 0, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+candidatesPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", core.ErrCandidateSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", core.ErrCandidateSourceUnavailable, statusError(resp))
	}

	var body candidatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", core.ErrCandidateSourceUnavailable, err)
	}

	// The service may return its own category labels; keep only what was asked for.
	out := body.Candidates[:0]
	for _, cand := range body.Candidates {
		if cand.Category == "" {
			cand.Category = category
		}
		if cand.Category == category && cand.Position.Valid() {
			out = append(out, cand)
		}
	}
	return out, nil
}

// AddCandidates posts records to the service.
func (c *Client) AddCandidates(ctx context.Context, records []storage.Record) error {
	payload, err := json.Marshal(map[string]any{"candidates": records})
	if err != nil {
		return fmt.Errorf("failed to encode candidates: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+candidatesPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return errors.New(statusError(resp))
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
}

func statusError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Sprintf("status %d", resp.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", resp.StatusCode, msg)
}
