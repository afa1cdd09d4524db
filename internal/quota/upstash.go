package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// upstashTimeout keeps a slow REST backend from hanging a request; a
// timeout counts as a backend failure and triggers chain fallback.
const upstashTimeout = 5 * time.Second

// UpstashStore is the request-style backend: every operation is one HTTP
// call to an Upstash/Vercel-KV style REST endpoint that performs the atomic
// increment server-side.
type UpstashStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewUpstashStore creates a REST counter backend, or nil when the endpoint
// is not configured so the chain skips it entirely.
func NewUpstashStore(baseURL, token string) *UpstashStore {
	if baseURL == "" || token == "" {
		return nil
	}
	return &UpstashStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: upstashTimeout},
	}
}

// Name implements Store
func (s *UpstashStore) Name() string { return "upstash" }

// Get fetches the counter via GET /get/{key}
func (s *UpstashStore) Get(ctx context.Context, key string) (int64, bool, error) {
	endpoint := fmt.Sprintf("%s/get/%s", s.baseURL, url.PathEscape(key))
	body, err := s.do(ctx, http.MethodGet, endpoint)
	if err != nil {
		return 0, false, err
	}

	val, found, err := parseResult(body)
	if err != nil {
		return 0, false, err
	}
	return val, found, nil
}

// IncrBy increments via POST /incrby/{key}/{by}?ttl={seconds}; the backend
// applies the expiry itself.
func (s *UpstashStore) IncrBy(ctx context.Context, key string, by int64, ttl time.Duration) (int64, error) {
	endpoint := fmt.Sprintf("%s/incrby/%s/%d?ttl=%d",
		s.baseURL, url.PathEscape(key), by, int64(ttl.Seconds()))
	body, err := s.do(ctx, http.MethodPost, endpoint)
	if err != nil {
		return 0, err
	}

	val, found, err := parseResult(body)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("incrby returned null result")
	}
	return val, nil
}

func (s *UpstashStore) do(ctx context.Context, method, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// parseResult decodes the {"result": ...} envelope. GET returns the value
// as a JSON string, INCRBY as a number, absent keys as null.
func parseResult(body []byte) (int64, bool, error) {
	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return 0, false, fmt.Errorf("failed to decode response: %w", err)
	}

	raw := strings.TrimSpace(string(envelope.Result))
	if raw == "" || raw == "null" {
		return 0, false, nil
	}
	raw = strings.Trim(raw, `"`)

	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("non-numeric result %q", raw)
	}
	return val, true, nil
}
