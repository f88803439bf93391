// Package coopclient is a thin typed client for the agent sidecar's HTTP
// control surface (spec.md §6, "Agent sidecar HTTP surface"). The sidecar
// itself is out of scope; this package only speaks its documented
// request/response shapes over a per-agent Unix socket
// (agents/<id>/coop.sock), the same way the teacher's internal clients
// wrap a narrow HTTP surface behind typed Go methods rather than handing
// callers a bare *http.Client.
package coopclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Client talks to one sidecar's control socket.
type Client struct {
	hc         *http.Client
	socketPath string
}

// New dials lazily: the returned Client is cheap to construct, the
// transport only opens a connection on first request.
func New(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		hc: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
}

// AgentPrompt is the pending-prompt detail embedded in AgentState.
type AgentPrompt struct {
	Type      string   `json:"type"`
	Questions []string `json:"questions,omitempty"`
	Input     any      `json:"input,omitempty"`
}

// AgentState is the body of GET /api/v1/agent.
type AgentState struct {
	State         string       `json:"state"`
	LastMessage   string       `json:"last_message,omitempty"`
	Prompt        *AgentPrompt `json:"prompt,omitempty"`
	ErrorCategory string       `json:"error_category,omitempty"`
	ErrorDetail   string       `json:"error_detail,omitempty"`
}

// NudgeResult is the body of POST /api/v1/agent/nudge.
type NudgeResult struct {
	Delivered bool   `json:"delivered"`
	Reason    string `json:"reason,omitempty"`
}

// UsageSummary is the body of GET /api/v1/session/usage.
type UsageSummary struct {
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	CachedTokens int64     `json:"cached_tokens"`
	AsOf         time.Time `json:"as_of"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("coopclient: encode request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, "http://coop"+path, rdr)
	if err != nil {
		return fmt.Errorf("coopclient: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("coopclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("coopclient: %s %s: status %d: %s", method, path, resp.StatusCode, string(data))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Health reports whether the sidecar answers GET /api/v1/health with 200.
func (c *Client) Health(ctx context.Context) bool {
	return c.do(ctx, http.MethodGet, "/api/v1/health", nil, nil) == nil
}

// State fetches GET /api/v1/agent.
func (c *Client) State(ctx context.Context) (AgentState, error) {
	var st AgentState
	err := c.do(ctx, http.MethodGet, "/api/v1/agent", nil, &st)
	return st, err
}

// Nudge sends POST /api/v1/agent/nudge.
func (c *Client) Nudge(ctx context.Context, message string) (NudgeResult, error) {
	var res NudgeResult
	err := c.do(ctx, http.MethodPost, "/api/v1/agent/nudge", map[string]string{"message": message}, &res)
	return res, err
}

// Input falls back to raw input delivery when Nudge reports delivered=false.
func (c *Client) Input(ctx context.Context, text string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/input", map[string]any{"text": text, "enter": true}, nil)
}

// Respond sends POST /api/v1/agent/respond.
func (c *Client) Respond(ctx context.Context, accept bool, option *int, text string) error {
	body := map[string]any{"accept": accept}
	if option != nil {
		body["option"] = *option
	}
	if text != "" {
		body["text"] = text
	}
	return c.do(ctx, http.MethodPost, "/api/v1/agent/respond", body, nil)
}

// Shutdown sends POST /api/v1/shutdown.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/shutdown", nil, nil)
}

// Signal sends POST /api/v1/signal.
func (c *Client) Signal(ctx context.Context, signal string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/signal", map[string]string{"signal": signal}, nil)
}

// ResolveStop sends POST /api/v1/stop/resolve.
func (c *Client) ResolveStop(ctx context.Context, allow bool) error {
	return c.do(ctx, http.MethodPost, "/api/v1/stop/resolve", map[string]bool{"allow": allow}, nil)
}

// ScreenText fetches GET /api/v1/screen/text.
func (c *Client) ScreenText(ctx context.Context) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/screen/text", nil, &out)
	return out.Text, err
}

// Catchup fetches GET /api/v1/transcripts/catchup.
func (c *Client) Catchup(ctx context.Context, sinceTranscript string, sinceLine int) ([]byte, error) {
	path := fmt.Sprintf("/api/v1/transcripts/catchup?since_transcript=%s&since_line=%d", sinceTranscript, sinceLine)
	var raw json.RawMessage
	err := c.do(ctx, http.MethodGet, path, nil, &raw)
	return raw, err
}

// Usage fetches GET /api/v1/session/usage.
func (c *Client) Usage(ctx context.Context) (UsageSummary, error) {
	var u UsageSummary
	err := c.do(ctx, http.MethodGet, "/api/v1/session/usage", nil, &u)
	return u, err
}

// WSURL returns the ws:// URL a bridge task should dial against this
// socket's HTTP listener (the socket is passed separately since
// gorilla/websocket dials a net.Conn, not a URL, for unix transports).
func (c *Client) WSURL() string {
	return "ws://coop/ws?subscribe=state,messages"
}

// SocketPath returns the underlying control-socket path, for adapters
// that need to dial it directly (e.g. the WS bridge).
func (c *Client) SocketPath() string {
	return c.socketPath
}
