package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bermanqa/qlog/internal/config"
	"github.com/bermanqa/qlog/internal/models"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(config.Remote{
		URL:       srv.URL,
		Bucket:    "qlog",
		KeyPrefix: "reports_",
		Timeout:   2 * time.Second,
	}, "dev-1")
}

func TestNamespaceKeyDeterministic(t *testing.T) {
	c := New(config.Remote{Bucket: "qlog", KeyPrefix: "reports_"}, "")
	if got := c.NamespaceKey("BAKERY1"); got != "reports_BAKERY1" {
		t.Fatalf("NamespaceKey: got %q", got)
	}
	if got := c.objectPath("reports_A B"); got != "/qlog/reports_A%20B" {
		t.Fatalf("objectPath: got %q", got)
	}
}

func TestFetchAbsent(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"not found", http.StatusNotFound, `{"error":{"code":"not_found","message":"no such key"}}`},
		{"empty body", http.StatusOK, ""},
		{"whitespace body", http.StatusOK, "  \n"},
		{"null", http.StatusOK, "null"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			got, err := c.Fetch(context.Background(), "reports_X")
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if got == nil || len(got) != 0 {
				t.Fatalf("want empty collection, got %#v", got)
			}
		})
	}
}

func TestFetchDecodes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/qlog/reports_BAKERY1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get(DeviceHeader) != "dev-1" {
			t.Errorf("device header: %q", r.Header.Get(DeviceHeader))
		}
		io.WriteString(w, `[{"id":"2","productName":"Rye","status":"done"}]`)
	})
	got, err := c.Fetch(context.Background(), c.NamespaceKey("BAKERY1"))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 1 || got[0].ID != "2" || got[0].Status != models.StatusDone {
		t.Fatalf("Fetch: %+v", got)
	}
}

func TestFetchMalformed(t *testing.T) {
	for _, body := range []string{`{bad`, `{"id":"1"}`} {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, body)
		})
		_, err := c.Fetch(context.Background(), "k")
		if !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("body %q: want ErrMalformedPayload, got %v", body, err)
		}
	}
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusInternalServerError, ErrTransport},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrForbidden},
	}
	for _, tt := range tests {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		})
		_, err := c.Fetch(context.Background(), "k")
		if !errors.Is(err, tt.want) || !errors.Is(err, ErrTransport) {
			t.Errorf("status %d: got %v", tt.status, err)
		}
	}
}

func TestFetchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(config.Remote{URL: url, Bucket: "qlog", Timeout: time.Second}, "")
	if _, err := c.Fetch(context.Background(), "k"); !errors.Is(err, ErrTransport) {
		t.Fatalf("want ErrTransport, got %v", err)
	}
}

func TestUpsertSendsArray(t *testing.T) {
	var got []models.Report
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type: %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		io.WriteString(w, `{"ok":true,"version":1}`)
	})

	if err := c.Upsert(context.Background(), "k", nil); err != nil {
		t.Fatalf("Upsert nil: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("nil collection should be sent as [], got %#v", got)
	}

	in := []models.Report{{ID: "1", ProductName: "Bun"}}
	if err := c.Upsert(context.Background(), "k", in); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if len(got) != 1 || got[0].ProductName != "Bun" {
		t.Fatalf("server received %+v", got)
	}
}

func TestHealthCheck(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		io.WriteString(w, `{"status":"ok"}`)
	})
	resp, err := c.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if resp.Status != "ok" {
		t.Fatalf("status: %q", resp.Status)
	}
}

func TestWebsocketURL(t *testing.T) {
	got, err := websocketURL("https://kv.example/qlog/k/watch")
	if err != nil || got != "wss://kv.example/qlog/k/watch" {
		t.Fatalf("got %q %v", got, err)
	}
	if _, err := websocketURL("ftp://x"); err == nil {
		t.Fatal("expected error for non-http url")
	}
}
