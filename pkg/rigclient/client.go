// Package rigclient talks to a running rig's control surface.
package rigclient

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

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-animatronic/internal/httpc"
	"github.com/teslashibe/go-animatronic/pkg/clip"
	"github.com/teslashibe/go-animatronic/pkg/mixer"
	"github.com/teslashibe/go-animatronic/pkg/web"
)

// ErrNotFound is returned for 404 responses.
var ErrNotFound = errors.New("rigclient: not found")

// APIError is a non-2xx response from the rig.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rig returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps 404 to ErrNotFound.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// Client is a rig control surface client.
type Client struct {
	BaseURL string
	http    *http.Client
}

// New creates a client for the rig at baseURL (e.g. http://rig.local:8080).
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		http:    httpc.Client,
	}
}

// Status returns the mixer snapshot.
func (c *Client) Status(ctx context.Context) (mixer.Status, error) {
	var st mixer.Status
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &st)
	return st, err
}

// Clips lists the rig's clip library.
func (c *Client) Clips(ctx context.Context) ([]web.ClipInfo, error) {
	var clips []web.ClipInfo
	err := c.do(ctx, http.MethodGet, "/api/clips", nil, &clips)
	return clips, err
}

// Layers lists the active layers.
func (c *Client) Layers(ctx context.Context) ([]mixer.LayerInfo, error) {
	var layers []mixer.LayerInfo
	err := c.do(ctx, http.MethodGet, "/api/layers", nil, &layers)
	return layers, err
}

// CreateLayer adds a layer.
func (c *Client) CreateLayer(ctx context.Context, req web.CreateLayerRequest) (mixer.LayerInfo, error) {
	var info mixer.LayerInfo
	err := c.do(ctx, http.MethodPost, "/api/layers", req, &info)
	return info, err
}

// RemoveLayer removes the named layer.
func (c *Client) RemoveLayer(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, layerPath(name, ""), nil, nil)
}

// SetWeight sets a layer weight, fading over d when d > 0.
func (c *Client) SetWeight(ctx context.Context, name string, weight float64, d time.Duration) (mixer.LayerInfo, error) {
	var info mixer.LayerInfo
	req := web.WeightRequest{Weight: weight, Duration: d.Seconds()}
	err := c.do(ctx, http.MethodPost, layerPath(name, "weight"), req, &info)
	return info, err
}

// PlayLayer restarts a layer at frame. A nil loop keeps its looping flag.
func (c *Client) PlayLayer(ctx context.Context, name string, from int, loop *bool) (mixer.LayerInfo, error) {
	var info mixer.LayerInfo
	err := c.do(ctx, http.MethodPost, layerPath(name, "play"), web.PlayRequest{From: from, Loop: loop}, &info)
	return info, err
}

// LayerAction runs pause, resume or stop on a layer.
func (c *Client) LayerAction(ctx context.Context, name, action string) (mixer.LayerInfo, error) {
	var info mixer.LayerInfo
	err := c.do(ctx, http.MethodPost, layerPath(name, action), nil, &info)
	return info, err
}

// Transport runs play, pause or stop on the mixer.
func (c *Client) Transport(ctx context.Context, action string) (mixer.Status, error) {
	var st mixer.Status
	err := c.do(ctx, http.MethodPost, "/api/transport/"+url.PathEscape(action), nil, &st)
	return st, err
}

// SetFrameRate changes the mixer tick rate.
func (c *Client) SetFrameRate(ctx context.Context, hz float64) error {
	return c.do(ctx, http.MethodPut, "/api/transport/rate", web.RateRequest{Hz: hz}, nil)
}

// Playlist returns playlist progress.
func (c *Client) Playlist(ctx context.Context) (mixer.PlaylistState, error) {
	var st mixer.PlaylistState
	err := c.do(ctx, http.MethodGet, "/api/playlist", nil, &st)
	return st, err
}

// SetPlaylist starts a playlist.
func (c *Client) SetPlaylist(ctx context.Context, entries []clip.PlaylistEntry) (mixer.PlaylistState, error) {
	var st mixer.PlaylistState
	err := c.do(ctx, http.MethodPost, "/api/playlist", entries, &st)
	return st, err
}

// AdvancePlaylist moves to the next playlist entry.
func (c *Client) AdvancePlaylist(ctx context.Context) (mixer.PlaylistState, error) {
	var st mixer.PlaylistState
	err := c.do(ctx, http.MethodPost, "/api/playlist/next", nil, &st)
	return st, err
}

// ResetPlaylist clears the playlist.
func (c *Client) ResetPlaylist(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/playlist", nil, nil)
}

// Watch streams telemetry to fn until ctx is cancelled or the connection
// drops. Returns nil on cancellation.
func (c *Client) Watch(ctx context.Context, fn func(mixer.Status)) error {
	wsURL, err := c.telemetryURL()
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("telemetry dial failed: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var st mixer.Status
		if err := conn.ReadJSON(&st); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("telemetry read failed: %w", err)
		}
		fn(st)
	}
}

func (c *Client) telemetryURL() (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid rig url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/telemetry"
	return u.String(), nil
}

func layerPath(name, action string) string {
	p := "/api/layers/" + url.PathEscape(name)
	if action != "" {
		p += "/" + url.PathEscape(action)
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := httpc.NewRequest(ctx, method, c.BaseURL+path, contentType, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &apiErr) != nil || apiErr.Error == "" {
			apiErr.Error = strings.TrimSpace(string(data))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
