package syncclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Change announces a write to a watched key.
type Change struct {
	Key       string    `json:"key"`
	DeviceID  string    `json:"device_id"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Watch subscribes to writes on key. The returned channel is closed when ctx
// is cancelled or the connection drops; callers reconnect as needed.
func (c *Client) Watch(ctx context.Context, key string) (<-chan Change, error) {
	wsURL, err := websocketURL(c.BaseURL + c.objectPath(key) + "/watch")
	if err != nil {
		return nil, err
	}

	h := http.Header{}
	if c.DeviceID != "" {
		h.Set(DeviceHeader, c.DeviceID)
	}
	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: h})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: watch not supported by server", ErrNotFound)
		}
		return nil, fmt.Errorf("%w: dial watch: %v", ErrTransport, err)
	}

	ch := make(chan Change, 16)
	go func() {
		defer close(ch)
		defer conn.Close(websocket.StatusNormalClosure, "")
		for {
			var msg Change
			if err := wsjson.Read(ctx, conn, &msg); err != nil {
				return
			}
			select {
			case ch <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func websocketURL(httpURL string) (string, error) {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://"), nil
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://"), nil
	}
	return "", errors.New("remote url must start with http:// or https://")
}
