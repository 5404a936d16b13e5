// Package notify formats per-server refresh results and posts them as text
// messages to a WeCom (企业微信) group-chat webhook.
package notify

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

	"github.com/onnwee/live-refresher/httperr"
	"github.com/onnwee/live-refresher/refresher"
)

// DefaultEndpoint is the WeCom webhook send URL; the key is appended as a
// query parameter.
const DefaultEndpoint = "https://qyapi.weixin.qq.com/cgi-bin/webhook/send"

// Notifier posts formatted run reports to one webhook.
type Notifier struct {
	WebhookKey string
	Endpoint   string // defaults to DefaultEndpoint
	HTTPClient *http.Client
}

var defaultHTTPClient = &http.Client{Timeout: 10 * time.Second}

func (n *Notifier) http() *http.Client {
	if n.HTTPClient != nil {
		return n.HTTPClient
	}
	return defaultHTTPClient
}

func (n *Notifier) endpoint() string {
	if n.Endpoint != "" {
		return n.Endpoint
	}
	return DefaultEndpoint
}

// Format renders one server's result as the chat message body.
func Format(res refresher.ServerResult) string {
	if res.Error != "" {
		return fmt.Sprintf("[%s]刷码失败\n原因：%s", res.Alias, res.Error)
	}
	if len(res.Rooms) == 0 {
		return fmt.Sprintf("[%s]无匹配直播间", res.Alias)
	}
	var b strings.Builder
	if res.Success {
		fmt.Fprintf(&b, "[%s]刷码成功", res.Alias)
	} else {
		fmt.Fprintf(&b, "[%s]刷码完成，部分失败", res.Alias)
	}
	for _, o := range res.Rooms {
		if o.Success {
			fmt.Fprintf(&b, "\n%s:%s", o.Name, o.Code)
		} else {
			fmt.Fprintf(&b, "\n%s 刷新失败: %s", o.Name, o.Message)
		}
	}
	return b.String()
}

// Send formats and posts one result. A non-2xx response is a transport
// failure; a 2xx response with errcode != 0 means the provider rejected the
// message.
func (n *Notifier) Send(ctx context.Context, res refresher.ServerResult) error {
	payload := map[string]any{
		"msgtype": "text",
		"text":    map[string]string{"content": Format(res)},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	url := n.endpoint() + "?key=" + n.WebhookKey
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read webhook response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httperr.Transport{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var ack struct {
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	if err := json.Unmarshal(raw, &ack); err != nil {
		return &httperr.Protocol{Reason: "webhook response is not JSON"}
	}
	if ack.ErrCode != 0 {
		return &httperr.Upstream{Message: fmt.Sprintf("%s (errcode %d)", ack.ErrMsg, ack.ErrCode)}
	}
	return nil
}
