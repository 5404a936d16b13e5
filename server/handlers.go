// Package server exposes the hosted HTTP surface: the /refresh trigger,
// liveness, and Prometheus metrics. It injects correlation IDs into request
// contexts for consistent logging.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/onnwee/live-refresher/config"
	"github.com/onnwee/live-refresher/liveadmin"
	"github.com/onnwee/live-refresher/notify"
	"github.com/onnwee/live-refresher/refresher"
)

// Handlers holds dependencies shared by all HTTP handlers.
type Handlers struct {
	// httpClient is used for every outbound call made while serving a
	// request (live-admin and webhook alike).
	httpClient *http.Client

	// notifyEndpoint overrides the webhook endpoint; empty means the real
	// WeCom URL. Tests point this at a local server.
	notifyEndpoint string
}

// NewHandlers creates a Handlers instance with a sane outbound timeout.
func NewHandlers() *Handlers {
	return &Handlers{
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// refreshResponse is the JSON body of a /refresh call. Per-server logical
// failures are data inside Results, not an HTTP error.
type refreshResponse struct {
	Success bool                     `json:"success"`
	Results []refresher.ServerResult `json:"results,omitempty"`
	Error   string                   `json:"error,omitempty"`
}

// HandleRefresh runs one full refresh pass. Configuration comes from the
// environment, overridable per request via query parameters named after the
// env keys lower-cased (e.g. ?server_alias_list=east,west). Only a
// configuration error yields a non-200 status.
func (h *Handlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	overrides := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			overrides[key] = values[0]
		}
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		status := http.StatusInternalServerError
		var cfgErr *config.Error
		if errors.As(err, &cfgErr) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, refreshResponse{Error: err.Error()})
		return
	}

	client := &liveadmin.Client{
		Token:      cfg.Token,
		AuthScheme: cfg.AuthScheme,
		HTTPClient: h.httpClient,
	}
	notifier := &notify.Notifier{
		WebhookKey: cfg.WebhookKey,
		Endpoint:   h.notifyEndpoint,
		HTTPClient: h.httpClient,
	}

	results := refresher.Run(r.Context(), cfg, client, notifier)
	writeJSON(w, http.StatusOK, refreshResponse{Success: true, Results: results})
}

// HandleHealthz responds to liveness probe requests.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
