// Package refresher orchestrates one stateless refresh pass: list the rooms
// of every configured server, match configured names, request fresh verify
// codes, and fan the per-server reports out to the chat webhook. Nothing is
// retained between passes.
package refresher

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/onnwee/live-refresher/config"
	"github.com/onnwee/live-refresher/httperr"
	"github.com/onnwee/live-refresher/liveadmin"
	"github.com/onnwee/live-refresher/match"
	"github.com/onnwee/live-refresher/telemetry"
)

// AdminAPI is the slice of the live-admin client the runner needs.
type AdminAPI interface {
	FetchLiveList(ctx context.Context, server config.Server) ([]liveadmin.Room, error)
	RefreshOne(ctx context.Context, server config.Server, id liveadmin.RoomID) (string, error)
	RefreshMany(ctx context.Context, server config.Server, ids []liveadmin.RoomID) (string, error)
}

// Notifier posts one per-server report to the chat webhook.
type Notifier interface {
	Send(ctx context.Context, result ServerResult) error
}

// Outcome is the refresh result for one matched name group. Groups refreshed
// through the batch endpoint succeed or fail as a whole.
type Outcome struct {
	Name    string `json:"name"`
	Code    string `json:"code"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ServerResult aggregates one server's pass. Error is set only for
// list-level failures (list fetch failed, nothing matched); per-group
// failures live in Rooms.
type ServerResult struct {
	Alias   string    `json:"alias"`
	Rooms   []Outcome `json:"rooms"`
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
}

// RunServer performs list, match, refresh for a single server. Every network
// or protocol failure is folded into the result; this never returns an error
// and never panics past an upstream hiccup.
func RunServer(ctx context.Context, api AdminAPI, server config.Server, groups []match.Group) ServerResult {
	ctx, span := telemetry.StartSpan(ctx, "refresher", "run-server", telemetry.ServerAttr(server.Alias))
	defer span.End()

	log := telemetry.LoggerWithCorr(ctx).With(slog.String("server", server.Alias))
	result := ServerResult{Alias: server.Alias}

	rooms, err := api.FetchLiveList(ctx, server)
	if err != nil {
		telemetry.ListFetchFailures.Inc()
		telemetry.RecordError(span, err)
		log.Warn("live list fetch failed", slog.Any("err", err))
		result.Error = err.Error()
		return result
	}

	matched := match.FilterRooms(rooms, groups)
	if len(matched) == 0 {
		log.Warn("no rooms matched", slog.Int("rooms", len(rooms)))
		result.Error = "no rooms matched"
		return result
	}

	for _, m := range matched {
		result.Rooms = append(result.Rooms, refreshGroup(ctx, api, server, m))
	}

	result.Success = allSucceeded(result.Rooms)
	if result.Success {
		telemetry.SetSpanSuccess(span)
	}
	log.Info("server processed", slog.Int("groups", len(result.Rooms)), slog.Bool("success", result.Success))
	return result
}

// refreshGroup refreshes one matched group, dispatching on group size: one
// room goes through the single endpoint, two or more through the batch
// endpoint with a single shared code.
func refreshGroup(ctx context.Context, api AdminAPI, server config.Server, m match.Matched) Outcome {
	name := m.Label()

	ids := make([]liveadmin.RoomID, 0, len(m.Rooms))
	for _, room := range m.Rooms {
		if room.ID == "" {
			telemetry.RefreshesFailed.Inc()
			return Outcome{Name: name, Message: "missing room id, cannot refresh"}
		}
		ids = append(ids, room.ID)
	}

	var code string
	var err error
	if len(ids) == 1 {
		code, err = api.RefreshOne(ctx, server, ids[0])
	} else {
		code, err = api.RefreshMany(ctx, server, ids)
	}
	if err != nil {
		telemetry.RefreshesFailed.Inc()
		return Outcome{Name: name, Message: failureMessage(err)}
	}
	telemetry.RefreshesSucceeded.Inc()
	return Outcome{Name: name, Code: code, Success: true}
}

// Run processes every configured server in order, then sends one webhook
// report per result in the same order. Notification failures are logged and
// do not stop the remaining sends.
func Run(ctx context.Context, cfg *config.Config, api AdminAPI, notifier Notifier) []ServerResult {
	if telemetry.GetCorrelation(ctx) == "" {
		ctx = telemetry.WithCorrelation(ctx, uuid.New().String())
	}
	telemetry.RunsStarted.Inc()
	log := telemetry.LoggerWithCorr(ctx)

	groups := match.ParseGroups(cfg.Names)

	var results []ServerResult
	telemetry.TimeFunc(telemetry.RunDuration, func() {
		for _, server := range cfg.Servers {
			var res ServerResult
			telemetry.TimeFunc(telemetry.ServerDuration, func() {
				res = RunServer(ctx, api, server, groups)
			})
			telemetry.ServersProcessed.Inc()
			results = append(results, res)
		}

		for _, res := range results {
			if err := notifier.Send(ctx, res); err != nil {
				telemetry.NotificationsFailed.Inc()
				log.Warn("notification failed", slog.String("server", res.Alias), slog.Any("err", err))
				continue
			}
			telemetry.NotificationsSent.Inc()
		}
	})

	return results
}

// allSucceeded reports whether at least one outcome exists and none failed.
func allSucceeded(outcomes []Outcome) bool {
	if len(outcomes) == 0 {
		return false
	}
	for _, o := range outcomes {
		if !o.Success {
			return false
		}
	}
	return true
}

// failureMessage extracts the server-reported reason when the error is an
// upstream failure, so notifications show the raw message without wrapping.
func failureMessage(err error) string {
	var ue *httperr.Upstream
	if errors.As(err, &ue) {
		return ue.Message
	}
	return err.Error()
}
