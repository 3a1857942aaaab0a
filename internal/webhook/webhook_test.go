package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bermanqa/qlog/internal/config"
	qsync "github.com/bermanqa/qlog/internal/sync"
)

var testNow = time.Date(2026, 2, 18, 10, 0, 0, 0, time.UTC)

func TestBuildPayload(t *testing.T) {
	ev := qsync.Event{
		Kind:   qsync.StatusChanged,
		Reason: qsync.ReasonMutation,
		Status: qsync.Snapshot{
			State:       qsync.StateError,
			Identifier:  "BAKERY1",
			LastError:   errors.New("connection refused"),
			LastSuccess: testNow.Add(-time.Hour),
		},
	}

	p := BuildPayload("dev-1", ev, testNow)

	if p.Identifier != "BAKERY1" || p.State != "error" || p.Reason != "mutation" {
		t.Errorf("payload = %+v", p)
	}
	if p.Error != "connection refused" {
		t.Errorf("Error = %q", p.Error)
	}
	if p.LastSuccess != "2026-02-18T09:00:00Z" || p.Timestamp != "2026-02-18T10:00:00Z" {
		t.Errorf("times = %q, %q", p.LastSuccess, p.Timestamp)
	}
}

func TestBuildPayload_NoErrorNoSuccess(t *testing.T) {
	p := BuildPayload("", qsync.Event{Status: qsync.Snapshot{State: qsync.StateSyncing}}, testNow)
	if p.Error != "" || p.LastSuccess != "" {
		t.Errorf("payload = %+v", p)
	}
}

func TestDispatch_Success(t *testing.T) {
	var gotBody []byte
	var gotHeaders http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	err := Dispatch(context.Background(), nil, srv.URL, "", Payload{Identifier: "ABC", State: "success"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if gotHeaders.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotHeaders.Get("Content-Type"))
	}
	if gotHeaders.Get(TimestampHeader) == "" {
		t.Errorf("%s header missing", TimestampHeader)
	}
	if gotHeaders.Get(SignatureHeader) != "" {
		t.Errorf("%s should be absent without secret", SignatureHeader)
	}

	var p Payload
	if err := json.Unmarshal(gotBody, &p); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if p.Identifier != "ABC" {
		t.Errorf("body sync_id = %q", p.Identifier)
	}
}

func TestDispatch_WithSecret(t *testing.T) {
	secret := "test-hmac-key"
	var gotBody []byte
	var gotHeaders http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	if err := Dispatch(context.Background(), nil, srv.URL, secret, Payload{State: "error"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	sig := gotHeaders.Get(SignatureHeader)
	if !strings.HasPrefix(sig, "sha256=") {
		t.Fatalf("signature = %q", sig)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gotHeaders.Get(TimestampHeader)))
	mac.Write([]byte("."))
	mac.Write(gotBody)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if sig != expected {
		t.Errorf("signature mismatch:\n  got:  %s\n  want: %s", sig, expected)
	}
}

func TestDispatch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer srv.Close()

	err := Dispatch(context.Background(), nil, srv.URL, "", Payload{})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if !strings.Contains(err.Error(), "status 500") {
		t.Errorf("error = %q, want to contain 'status 500'", err.Error())
	}
}

func TestNotifierForwardsTerminalStates(t *testing.T) {
	got := make(chan Payload, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p Payload
		json.NewDecoder(r.Body).Decode(&p)
		got <- p
	}))
	defer srv.Close()

	n := NewNotifier(config.Webhook{URL: srv.URL, Secret: "s"}, "dev-9", nil)
	n.Now = func() time.Time { return testNow }

	events := make(chan qsync.Event, 4)
	events <- qsync.Event{Kind: qsync.StatusChanged, Status: qsync.Snapshot{State: qsync.StateSyncing}}
	events <- qsync.Event{Kind: qsync.CollectionChanged, Status: qsync.Snapshot{State: qsync.StateSuccess}}
	events <- qsync.Event{Kind: qsync.StatusChanged, Status: qsync.Snapshot{State: qsync.StateSuccess, Identifier: "X1"}}
	close(events)

	done := make(chan struct{})
	go func() {
		n.Run(context.Background(), events)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after channel close")
	}

	if len(got) != 1 {
		t.Fatalf("dispatched %d payloads, want 1", len(got))
	}
	p := <-got
	if p.State != "success" || p.Identifier != "X1" || p.DeviceID != "dev-9" {
		t.Errorf("payload = %+v", p)
	}
}

func TestIsEnabled(t *testing.T) {
	if IsEnabled(config.Webhook{}) {
		t.Error("empty URL should be disabled")
	}
	if !IsEnabled(config.Webhook{URL: "https://example.com/hook"}) {
		t.Error("URL set should be enabled")
	}
}
