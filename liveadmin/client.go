// Package liveadmin contains typed clients for the live-admin HTTP API:
// room listing and verify-code refresh (single and batch). All calls POST
// JSON over https and authenticate with a shared token header.
package liveadmin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/onnwee/live-refresher/config"
	"github.com/onnwee/live-refresher/httperr"
)

const (
	listPath         = "/api/live/liveList"
	refreshOnePath   = "/api/live/refreshVerifyCode"
	refreshBatchPath = "/api/live/batchRefVerifyCode"

	// One page is assumed to cover every active room; there is no
	// pagination loop.
	listPageSize = 100
)

// FallbackFailureMessage is reported when a refresh fails without the server
// supplying a reason.
const FallbackFailureMessage = "刷新失败"

// RoomID tolerates both string and numeric identifiers, which differ across
// deployed server versions.
type RoomID string

func (r *RoomID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = RoomID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*r = RoomID(n.String())
	return nil
}

// Room is one live room as returned by the list endpoint.
type Room struct {
	ID   RoomID `json:"id"`
	Name string `json:"name"`
}

// Client calls one or more live-admin servers with a shared token.
type Client struct {
	Token      string
	AuthScheme config.AuthScheme
	HTTPClient *http.Client
}

// The original tooling used a 10 second request timeout; keep that as the
// default when no client is injected.
var defaultHTTPClient = &http.Client{Timeout: 10 * time.Second}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return defaultHTTPClient
}

// envelope is the common response wrapper of every live-admin endpoint. The
// data shape differs per endpoint, so it is kept raw here.
type envelope struct {
	Meta struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	} `json:"meta"`
	Data json.RawMessage `json:"data"`
}

// post sends one authenticated JSON request and returns the status code and
// raw body.
func (c *Client) post(ctx context.Context, server config.Server, path string, payload any) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("encode request: %w", err)
	}
	url := "https://" + server.URL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.AuthScheme == config.SchemeBearer {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	} else {
		req.Header.Set("Token", c.Token)
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, raw, nil
}

// FetchLiveList returns the current rooms of one server.
func (c *Client) FetchLiveList(ctx context.Context, server config.Server) ([]Room, error) {
	payload := map[string]any{
		"param": map[string]any{"pageNo": 1, "pageSize": listPageSize},
	}
	status, raw, err := c.post(ctx, server, listPath, payload)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &httperr.Transport{Status: status, Body: strings.TrimSpace(string(raw))}
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &httperr.Protocol{Reason: "live list response is not JSON"}
	}
	if !env.Meta.Success {
		return nil, &httperr.Upstream{Message: env.Meta.Message}
	}
	if !isJSONArray(env.Data) {
		return nil, &httperr.Protocol{Reason: "unexpected list shape"}
	}
	var rooms []Room
	if err := json.Unmarshal(env.Data, &rooms); err != nil {
		return nil, &httperr.Protocol{Reason: "unexpected list shape"}
	}
	return rooms, nil
}

// RefreshOne requests a fresh verify code for a single room. The code is
// carried in data.code.
func (c *Client) RefreshOne(ctx context.Context, server config.Server, id RoomID) (string, error) {
	return c.refresh(ctx, server, refreshOnePath, string(id), func(data json.RawMessage) string {
		var d struct {
			Code string `json:"code"`
		}
		_ = json.Unmarshal(data, &d)
		return d.Code
	})
}

// RefreshMany requests one shared verify code for a batch of rooms. Unlike
// the single endpoint the code sits directly in data; the asymmetry is a
// server-side quirk and has to be preserved.
func (c *Client) RefreshMany(ctx context.Context, server config.Server, ids []RoomID) (string, error) {
	joined := make([]string, len(ids))
	for i, id := range ids {
		joined[i] = string(id)
	}
	return c.refresh(ctx, server, refreshBatchPath, strings.Join(joined, ","), func(data json.RawMessage) string {
		var code string
		_ = json.Unmarshal(data, &code)
		return code
	})
}

// refresh handles the shared status/JSON handling of both refresh endpoints.
// A 2xx body that fails to parse is treated as an empty payload, which reads
// as an upstream failure with the fallback message rather than a hard error.
func (c *Client) refresh(ctx context.Context, server config.Server, path, param string, extract func(json.RawMessage) string) (string, error) {
	status, raw, err := c.post(ctx, server, path, map[string]any{"param": param})
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", &httperr.Transport{Status: status, Body: strings.TrimSpace(string(raw))}
	}
	var env envelope
	_ = json.Unmarshal(raw, &env)
	if !env.Meta.Success {
		msg := env.Meta.Message
		if msg == "" {
			msg = FallbackFailureMessage
		}
		return "", &httperr.Upstream{Message: msg}
	}
	return extract(env.Data), nil
}

func isJSONArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}
