// Package webhook posts signed sync status notifications to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	qsync "github.com/bermanqa/qlog/internal/sync"
)

const (
	TimestampHeader = "X-Qlog-Timestamp"
	SignatureHeader = "X-Qlog-Signature"
	userAgent       = "qlog-webhook/1"
	defaultTimeout  = 10 * time.Second
)

// Payload is the POST body for one status change.
type Payload struct {
	DeviceID    string `json:"device_id,omitempty"`
	Identifier  string `json:"sync_id"`
	State       string `json:"state"`
	Reason      string `json:"reason,omitempty"`
	Error       string `json:"error,omitempty"`
	LastSuccess string `json:"last_success,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// BuildPayload converts an orchestrator status event into a webhook payload.
func BuildPayload(deviceID string, ev qsync.Event, now time.Time) Payload {
	p := Payload{
		DeviceID:   deviceID,
		Identifier: ev.Status.Identifier,
		State:      string(ev.Status.State),
		Reason:     string(ev.Reason),
		Timestamp:  now.UTC().Format(time.RFC3339),
	}
	if ev.Status.LastError != nil {
		p.Error = ev.Status.LastError.Error()
	}
	if !ev.Status.LastSuccess.IsZero() {
		p.LastSuccess = ev.Status.LastSuccess.UTC().Format(time.RFC3339)
	}
	return p
}

// Sign returns the hex HMAC-SHA256 of "<timestamp>.<body>".
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Dispatch performs a synchronous HTTP POST to the webhook URL.
// Returns nil on success (2xx status).
func Dispatch(ctx context.Context, client *http.Client, url, secret string, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set(TimestampHeader, ts)
	if secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(secret, ts, body))
	}

	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("POST %s: status %d", url, resp.StatusCode)
	}
	return nil
}
