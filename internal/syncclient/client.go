// Package syncclient talks to the shared key-value bucket that devices in a
// sync group read and write. It holds no state between calls.
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bermanqa/qlog/internal/config"
	"github.com/bermanqa/qlog/internal/models"
)

// Sentinel errors. Transport failures wrap ErrTransport; 401 and 403 also
// wrap ErrUnauthorized or ErrForbidden.
var (
	ErrTransport        = errors.New("remote store unavailable")
	ErrMalformedPayload = errors.New("malformed remote payload")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
)

// DeviceHeader carries the writer's device id on every request.
const DeviceHeader = "X-Device-ID"

// Client is an HTTP client for one bucket of a key-value service.
type Client struct {
	BaseURL   string
	Bucket    string
	KeyPrefix string
	DeviceID  string
	HTTP      *http.Client
}

// New creates a client from remote settings.
func New(cfg config.Remote, deviceID string) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL:   strings.TrimRight(cfg.URL, "/"),
		Bucket:    cfg.Bucket,
		KeyPrefix: cfg.KeyPrefix,
		DeviceID:  deviceID,
		HTTP:      &http.Client{Timeout: timeout},
	}
}

// NamespaceKey maps a sync identifier to the object key every device in the
// group addresses.
func (c *Client) NamespaceKey(identifier string) string {
	return c.KeyPrefix + identifier
}

func (c *Client) objectPath(key string) string {
	return "/" + url.PathEscape(c.Bucket) + "/" + url.PathEscape(key)
}

// Fetch returns the collection stored under key. A missing key or an empty
// body is an empty collection.
func (c *Client) Fetch(ctx context.Context, key string) ([]models.Report, error) {
	body, err := c.doRequest(ctx, http.MethodGet, c.objectPath(key), nil)
	if errors.Is(err, ErrNotFound) {
		return []models.Report{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeReports(body)
}

func decodeReports(body []byte) ([]models.Report, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return []models.Report{}, nil
	}
	var reports []models.Report
	if err := json.Unmarshal(body, &reports); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if reports == nil {
		reports = []models.Report{}
	}
	return reports, nil
}

// Upsert replaces the value under key with reports.
func (c *Client) Upsert(ctx context.Context, key string, reports []models.Report) error {
	if reports == nil {
		reports = []models.Report{}
	}
	data, err := json.Marshal(reports)
	if err != nil {
		return fmt.Errorf("marshal reports: %w", err)
	}
	_, err = c.doRequest(ctx, http.MethodPost, c.objectPath(key), data)
	return err
}

// HealthResponse is the response from GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// HealthCheck verifies the service is reachable.
func (c *Client) HealthCheck(ctx context.Context) (*HealthResponse, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return nil, err
	}
	var resp HealthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal health: %w", err)
	}
	return &resp, nil
}

// apiError is the error body sent by qlog-kv.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.DeviceID != "" {
		req.Header.Set(DeviceHeader, c.DeviceID)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}

	if resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(respBody))
		var env errorEnvelope
		if json.Unmarshal(respBody, &env) == nil && env.Error.Code != "" {
			msg = env.Error.Message
		}
		switch resp.StatusCode {
		case http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s", ErrNotFound, msg)
		case http.StatusUnauthorized:
			return nil, fmt.Errorf("%w: %w: %s", ErrTransport, ErrUnauthorized, msg)
		case http.StatusForbidden:
			return nil, fmt.Errorf("%w: %w: %s", ErrTransport, ErrForbidden, msg)
		}
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrTransport, resp.StatusCode, msg)
	}
	return respBody, nil
}
