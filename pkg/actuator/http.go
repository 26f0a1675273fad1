package actuator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-animatronic/internal/httpc"
)

// DefaultBridgeTimeout bounds one servo command to a remote bridge. It must
// stay well under a tick period multiple or the mixer falls behind.
const DefaultBridgeTimeout = 50 * time.Millisecond

// HTTPDriver sends servo commands to a bridge daemon that owns the PWM
// hardware (e.g. a Raspberry Pi running the servo HAT).
//
//	POST {BaseURL}/api/servo/{ch}          {"value": 92.5}
//	POST {BaseURL}/api/servo/{ch}/release
type HTTPDriver struct {
	BaseURL string
	client  *http.Client
}

// NewHTTPDriver creates a bridge driver. A zero timeout uses DefaultBridgeTimeout.
func NewHTTPDriver(baseURL string, timeout time.Duration) *HTTPDriver {
	if timeout <= 0 {
		timeout = DefaultBridgeTimeout
	}
	return &HTTPDriver{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  httpc.NewClient(timeout),
	}
}

// SetPosition posts the value for ch.
func (d *HTTPDriver) SetPosition(ch int, value float64) error {
	payload := map[string]interface{}{
		"value": value,
	}
	return d.post(fmt.Sprintf("/api/servo/%d", ch), payload)
}

// Release asks the bridge to stop driving ch.
func (d *HTTPDriver) Release(ch int) error {
	return d.post(fmt.Sprintf("/api/servo/%d/release", ch), nil)
}

func (d *HTTPDriver) post(path string, payload interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal servo command: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := httpc.NewRequest(context.Background(), http.MethodPost, d.BaseURL+path, "application/json", body)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("servo bridge request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("servo bridge status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
