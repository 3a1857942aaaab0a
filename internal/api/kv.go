package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/bermanqa/qlog/internal/serverdb"
)

const (
	deviceHeader  = "X-Device-ID"
	versionHeader = "X-Version"
	watchWriteTTL = 5 * time.Second
)

// PutResponse acknowledges a write.
type PutResponse struct {
	OK      bool  `json:"ok"`
	Version int64 `json:"version"`
}

// handleGet returns the stored JSON document verbatim, or 404.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	bucket, key := r.PathValue("bucket"), r.PathValue("key")
	s.metrics.RecordRead()

	e, err := s.store.Get(r.Context(), bucket, key)
	if errors.Is(err, serverdb.ErrNotFound) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "key not found")
		return
	}
	if err != nil {
		logFor(r.Context()).Error("get", "bucket", bucket, "key", key, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to read key")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(versionHeader, strconv.FormatInt(e.Version, 10))
	w.WriteHeader(http.StatusOK)
	w.Write(e.Value)
}

// handlePut replaces the document under bucket/key. The body must be valid JSON.
func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	bucket, key := r.PathValue("bucket"), r.PathValue("key")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "failed to read body")
		return
	}
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidJSON, "body must be valid JSON")
		return
	}

	e, err := s.store.Put(r.Context(), bucket, key, body, r.Header.Get(deviceHeader))
	if err != nil {
		logFor(r.Context()).Error("put", "bucket", bucket, "key", key, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to write key")
		return
	}
	s.metrics.RecordWrite()
	s.hub.Publish(topic(bucket, key), Change{
		Key:       key,
		DeviceID:  e.DeviceID,
		Version:   e.Version,
		UpdatedAt: e.UpdatedAt,
	})
	logFor(r.Context()).Debug("put", "bucket", bucket, "key", key, "version", e.Version, "bytes", len(body))

	writeJSON(w, http.StatusOK, PutResponse{OK: true, Version: e.Version})
}

// handleWatch upgrades to a websocket and streams Change messages for one key
// until the client goes away or the server shuts down.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	bucket, key := r.PathValue("bucket"), r.PathValue("key")
	log := logFor(r.Context())

	// Watches outlive the server's per-request write timeout.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.config.CORSAllowedOrigins,
	})
	if err != nil {
		log.Warn("watch upgrade failed", "err", err)
		return
	}

	changes, cancel := s.hub.Subscribe(topic(bucket, key))
	defer cancel()
	s.metrics.WatcherDelta(1)
	defer s.metrics.WatcherDelta(-1)
	log.Debug("watch opened", "bucket", bucket, "key", key)

	ctx := conn.CloseRead(s.ctx)
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case c, ok := <-changes:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			wctx, done := context.WithTimeout(ctx, watchWriteTTL)
			err := wsjson.Write(wctx, conn, c)
			done()
			if err != nil {
				log.Debug("watch write failed", "err", err)
				conn.CloseNow()
				return
			}
		}
	}
}
