package liveadmin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/onnwee/live-refresher/config"
	"github.com/onnwee/live-refresher/httperr"
)

var testServerCfg = config.Server{Alias: "east", URL: "east.example.com"}

func newTestClient(ts *httptest.Server, scheme config.AuthScheme) *Client {
	return &Client{
		Token:      "secret",
		AuthScheme: scheme,
		HTTPClient: &http.Client{
			Transport: &rewriteTransport{
				Transport: http.DefaultTransport,
				host:      ts.URL,
			},
		},
	}
}

func TestFetchLiveList(t *testing.T) {
	tests := []struct {
		name        string
		statusCode  int
		body        string
		wantRooms   int
		wantErr     any // pointer to expected error type, nil for success
		errContains string
	}{
		{
			name:       "success",
			statusCode: http.StatusOK,
			body:       `{"meta":{"success":true},"data":[{"id":1,"name":"Room Alpha"},{"id":"2","name":"Room Beta"}]}`,
			wantRooms:  2,
		},
		{
			name:        "non-2xx status",
			statusCode:  http.StatusBadGateway,
			body:        "gateway exploded",
			wantErr:     &httperr.Transport{},
			errContains: "502",
		},
		{
			name:        "meta reports failure",
			statusCode:  http.StatusOK,
			body:        `{"meta":{"success":false,"message":"token 无效"}}`,
			wantErr:     &httperr.Upstream{},
			errContains: "token 无效",
		},
		{
			name:        "data is not a list",
			statusCode:  http.StatusOK,
			body:        `{"meta":{"success":true},"data":{"rows":[]}}`,
			wantErr:     &httperr.Protocol{},
			errContains: "unexpected list shape",
		},
		{
			name:        "data missing",
			statusCode:  http.StatusOK,
			body:        `{"meta":{"success":true}}`,
			wantErr:     &httperr.Protocol{},
			errContains: "unexpected list shape",
		},
		{
			name:        "body is not JSON",
			statusCode:  http.StatusOK,
			body:        "<html>proxy error</html>",
			wantErr:     &httperr.Protocol{},
			errContains: "not JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/live/liveList" {
					t.Errorf("path = %s, want /api/live/liveList", r.URL.Path)
				}
				if r.Method != http.MethodPost {
					t.Errorf("method = %s, want POST", r.Method)
				}
				var payload struct {
					Param map[string]any `json:"param"`
				}
				if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
					t.Errorf("request body not JSON: %v", err)
				} else if payload.Param["pageSize"] == nil {
					t.Error("request body missing pagination param")
				}
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			rooms, err := newTestClient(ts, config.SchemeToken).FetchLiveList(context.Background(), testServerCfg)

			if tt.wantErr != nil {
				if err == nil {
					t.Fatalf("FetchLiveList() = %v, want error", rooms)
				}
				if !asErrorType(err, tt.wantErr) {
					t.Fatalf("error type = %T, want %T", err, tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error %q does not contain %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchLiveList() error: %v", err)
			}
			if len(rooms) != tt.wantRooms {
				t.Fatalf("got %d rooms, want %d", len(rooms), tt.wantRooms)
			}
			// Numeric and string ids both normalize to strings.
			if rooms[0].ID != "1" || rooms[1].ID != "2" {
				t.Errorf("room ids = %q, %q, want 1 and 2", rooms[0].ID, rooms[1].ID)
			}
		})
	}
}

func TestAuthSchemes(t *testing.T) {
	tests := []struct {
		name       string
		scheme     config.AuthScheme
		wantHeader string
		wantValue  string
	}{
		{"token header", config.SchemeToken, "Token", "secret"},
		{"bearer header", config.SchemeBearer, "Authorization", "Bearer secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get(tt.wantHeader); got != tt.wantValue {
					t.Errorf("%s header = %q, want %q", tt.wantHeader, got, tt.wantValue)
				}
				_, _ = w.Write([]byte(`{"meta":{"success":true},"data":[]}`))
			}))
			defer ts.Close()

			if _, err := newTestClient(ts, tt.scheme).FetchLiveList(context.Background(), testServerCfg); err != nil {
				t.Fatalf("FetchLiveList() error: %v", err)
			}
		})
	}
}

func TestRefreshOne(t *testing.T) {
	tests := []struct {
		name        string
		statusCode  int
		body        string
		wantCode    string
		wantErr     any
		errContains string
	}{
		{
			name:       "success reads data.code",
			statusCode: http.StatusOK,
			body:       `{"meta":{"success":true},"data":{"code":"8848"}}`,
			wantCode:   "8848",
		},
		{
			name:        "meta failure uses server message",
			statusCode:  http.StatusOK,
			body:        `{"meta":{"success":false,"message":"房间不存在"}}`,
			wantErr:     &httperr.Upstream{},
			errContains: "房间不存在",
		},
		{
			name:        "meta failure without message uses fallback",
			statusCode:  http.StatusOK,
			body:        `{"meta":{"success":false}}`,
			wantErr:     &httperr.Upstream{},
			errContains: FallbackFailureMessage,
		},
		{
			name:        "malformed JSON treated as empty payload",
			statusCode:  http.StatusOK,
			body:        `{{{`,
			wantErr:     &httperr.Upstream{},
			errContains: FallbackFailureMessage,
		},
		{
			name:        "non-2xx status",
			statusCode:  http.StatusInternalServerError,
			body:        "boom",
			wantErr:     &httperr.Transport{},
			errContains: "500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/live/refreshVerifyCode" {
					t.Errorf("path = %s, want /api/live/refreshVerifyCode", r.URL.Path)
				}
				var payload struct {
					Param string `json:"param"`
				}
				if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
					t.Errorf("request body not JSON: %v", err)
				} else if payload.Param != "42" {
					t.Errorf("param = %q, want 42", payload.Param)
				}
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			code, err := newTestClient(ts, config.SchemeToken).RefreshOne(context.Background(), testServerCfg, "42")

			if tt.wantErr != nil {
				if err == nil {
					t.Fatal("RefreshOne() succeeded, want error")
				}
				if !asErrorType(err, tt.wantErr) {
					t.Fatalf("error type = %T, want %T", err, tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error %q does not contain %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("RefreshOne() error: %v", err)
			}
			if code != tt.wantCode {
				t.Errorf("code = %q, want %q", code, tt.wantCode)
			}
		})
	}
}

func TestRefreshManyReadsCodeFromDataDirectly(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/live/batchRefVerifyCode" {
			t.Errorf("path = %s, want /api/live/batchRefVerifyCode", r.URL.Path)
		}
		var payload struct {
			Param string `json:"param"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("request body not JSON: %v", err)
		} else if payload.Param != "42,43,44" {
			t.Errorf("param = %q, want comma-joined ids", payload.Param)
		}
		// Batch responses carry the shared code in data directly, not data.code.
		_, _ = w.Write([]byte(`{"meta":{"success":true},"data":"7777"}`))
	}))
	defer ts.Close()

	code, err := newTestClient(ts, config.SchemeToken).RefreshMany(context.Background(), testServerCfg, []RoomID{"42", "43", "44"})
	if err != nil {
		t.Fatalf("RefreshMany() error: %v", err)
	}
	if code != "7777" {
		t.Errorf("code = %q, want 7777", code)
	}
}

func TestRoomIDUnmarshal(t *testing.T) {
	var room Room
	if err := json.Unmarshal([]byte(`{"id":12345,"name":"n"}`), &room); err != nil {
		t.Fatalf("numeric id: %v", err)
	}
	if room.ID != "12345" {
		t.Errorf("numeric id = %q, want 12345", room.ID)
	}
	if err := json.Unmarshal([]byte(`{"id":null,"name":"n"}`), &room); err != nil {
		t.Fatalf("null id: %v", err)
	}
}

// asErrorType reports whether err matches the concrete type of want.
func asErrorType(err error, want any) bool {
	switch want.(type) {
	case *httperr.Transport:
		var e *httperr.Transport
		return errors.As(err, &e)
	case *httperr.Upstream:
		var e *httperr.Upstream
		return errors.As(err, &e)
	case *httperr.Protocol:
		var e *httperr.Protocol
		return errors.As(err, &e)
	}
	return false
}

// rewriteTransport rewrites all requests to use the test server.
type rewriteTransport struct {
	Transport http.RoundTripper
	host      string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	if t.host != "" {
		host := t.host
		host = strings.TrimPrefix(host, "http://")
		host = strings.TrimPrefix(host, "https://")
		req.URL.Host = host
	}
	return t.Transport.RoundTrip(req)
}
