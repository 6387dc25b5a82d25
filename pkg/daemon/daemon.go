package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/modoterra/gatewatch/internal/buildinfo"
	"github.com/modoterra/gatewatch/pkg/activity"
	"github.com/modoterra/gatewatch/pkg/core"
	"github.com/modoterra/gatewatch/pkg/telemetry"
	"github.com/modoterra/gatewatch/pkg/transport/uds"
)

// Daemon is the main gatewatchd process. It owns the retention buffer and
// exposes the feed and activity operations over UDS and to the HTTP API.
type Daemon struct {
	server   *uds.Server
	poller   *telemetry.Poller
	activity *activity.Aggregator
	journal  *activity.Journal
	agents   func() ([]string, error)
	window   int
	instance string
	started  time.Time

	mu     sync.RWMutex
	subs   map[int]func([]core.RetainedEntry)
	nextID int

	logger *slog.Logger
}

// Options wires the daemon's collaborators.
type Options struct {
	Socket   string
	Poller   *telemetry.Poller
	Activity *activity.Aggregator
	Journal  *activity.Journal
	// Agents lists the known agent ids; nil reports none.
	Agents func() ([]string, error)
	// Window is the default tail window for polls.
	Window int
}

// New creates a new daemon instance.
func New(opts Options, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	window := opts.Window
	if window <= 0 {
		window = telemetry.DefaultWindow
	}
	d := &Daemon{
		server:   uds.NewServer(opts.Socket, logger),
		poller:   opts.Poller,
		activity: opts.Activity,
		journal:  opts.Journal,
		agents:   opts.Agents,
		window:   window,
		instance: uuid.NewString(),
		started:  time.Now(),
		subs:     make(map[int]func([]core.RetainedEntry)),
		logger:   logger,
	}
	d.registerHandlers()
	return d
}

// Run starts the UDS server and blocks until the context is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	return d.server.Start(ctx)
}

// Shutdown cleans up resources.
func (d *Daemon) Shutdown() {
	d.server.Shutdown()
}

// Server returns the underlying UDS server (for broadcasting events).
func (d *Daemon) Server() *uds.Server {
	return d.server
}

// Instance returns the id generated for this daemon process.
func (d *Daemon) Instance() string {
	return d.instance
}

// Subscribe registers fn to receive entries inserted by any poll. The
// returned func removes the subscription.
func (d *Daemon) Subscribe(fn func([]core.RetainedEntry)) func() {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.subs[id] = fn
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		delete(d.subs, id)
		d.mu.Unlock()
	}
}

// publish fans newly inserted entries out to UDS clients and subscribers.
func (d *Daemon) publish(entries []core.RetainedEntry) {
	if len(entries) == 0 {
		return
	}
	if evt, err := uds.NewEvent(uds.EventNetworkEntries, entries); err == nil {
		d.server.Broadcast(evt)
	} else {
		d.logger.Error("encode entries event", "err", err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, fn := range d.subs {
		fn(entries)
	}
}

// Feed returns buffered entries newer than sinceID and the pause flag.
func (d *Daemon) Feed(sinceID int64, limit int) uds.FeedResponse {
	buf := d.poller.Buffer()
	return uds.FeedResponse{Entries: buf.ListSince(sinceID, limit), Paused: buf.Paused()}
}

// Poll tails the gateway log once and publishes whatever it inserted. A
// window of zero uses the configured default.
func (d *Daemon) Poll(ctx context.Context, window int) (telemetry.PollResult, error) {
	if window <= 0 {
		window = d.window
	}
	res, err := d.poller.Poll(ctx, window)
	d.publish(res.Inserted)
	return res, err
}

// Clear empties the buffer. Ids keep increasing afterwards.
func (d *Daemon) Clear() {
	d.poller.Buffer().Clear()
	d.logger.Info("feed cleared")
}

// Pause sets the pause flag, or toggles it when set is nil, and returns the
// new value.
func (d *Daemon) Pause(set *bool) bool {
	buf := d.poller.Buffer()
	var paused bool
	if set != nil {
		paused = buf.SetPaused(*set)
	} else {
		paused = buf.TogglePause()
	}
	d.logger.Info("feed pause changed", "paused", paused)
	return paused
}

// Activity runs an activity feed query.
func (d *Daemon) Activity(ctx context.Context, q activity.Query) activity.Page {
	return d.activity.Query(ctx, q)
}

// LogActivity appends an entry to the activity journal.
func (d *Daemon) LogActivity(ctx context.Context, entry core.ActivityEntry) (core.ActivityEntry, error) {
	if d.journal == nil {
		return entry, fmt.Errorf("activity journal not configured")
	}
	return d.journal.Append(ctx, entry)
}

// KnownAgents lists the agent ids used to attribute gateway events.
func (d *Daemon) KnownAgents() ([]string, error) {
	if d.agents == nil {
		return []string{}, nil
	}
	ids, err := d.agents()
	if ids == nil {
		ids = []string{}
	}
	return ids, err
}

// Status summarizes the daemon for `gatewatch status` and /healthz.
type Status struct {
	Status   string              `json:"status"`
	Instance string              `json:"instance"`
	Version  string              `json:"version"`
	Started  time.Time           `json:"started"`
	LogPath  string              `json:"log_path"`
	Buffered int                 `json:"buffered"`
	LastID   int64               `json:"last_id"`
	Paused   bool                `json:"paused"`
	Clients  int                 `json:"clients"`
	LastPoll telemetry.PollStats `json:"last_poll"`
}

// Status reports buffer and poll state.
func (d *Daemon) Status() Status {
	buf := d.poller.Buffer()
	return Status{
		Status:   "ok",
		Instance: d.instance,
		Version:  buildinfo.Version,
		Started:  d.started,
		LogPath:  d.poller.Path(),
		Buffered: buf.Len(),
		LastID:   buf.LastID(),
		Paused:   buf.Paused(),
		Clients:  d.server.ClientCount(),
		LastPoll: d.poller.LastPoll(),
	}
}

func (d *Daemon) registerHandlers() {
	d.server.Handle(uds.MethodPing, d.handlePing)
	d.server.Handle(uds.MethodStatus, d.handleStatus)
	d.server.Handle(uds.MethodNetworkFeed, d.handleFeed)
	d.server.Handle(uds.MethodNetworkPoll, d.handlePoll)
	d.server.Handle(uds.MethodNetworkClear, d.handleClear)
	d.server.Handle(uds.MethodNetworkPause, d.handlePause)
	d.server.Handle(uds.MethodActivity, d.handleActivity)
	d.server.Handle(uds.MethodLogActivity, d.handleLogActivity)
}

func (d *Daemon) handlePing(_ context.Context, _ uds.Message) (any, error) {
	return uds.PingResponse{Pong: true, Instance: d.instance, Version: buildinfo.Version}, nil
}

func (d *Daemon) handleStatus(_ context.Context, _ uds.Message) (any, error) {
	return d.Status(), nil
}

func (d *Daemon) handleFeed(_ context.Context, msg uds.Message) (any, error) {
	var req uds.FeedRequest
	if err := msg.UnmarshalData(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return d.Feed(req.SinceID, req.Limit), nil
}

func (d *Daemon) handlePoll(ctx context.Context, msg uds.Message) (any, error) {
	var req uds.PollRequest
	if err := msg.UnmarshalData(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return d.Poll(ctx, req.Window)
}

func (d *Daemon) handleClear(_ context.Context, _ uds.Message) (any, error) {
	d.Clear()
	return uds.ClearResponse{Success: true}, nil
}

func (d *Daemon) handlePause(_ context.Context, msg uds.Message) (any, error) {
	var req uds.PauseRequest
	if err := msg.UnmarshalData(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return uds.PauseResponse{Paused: d.Pause(req.Pause)}, nil
}

func (d *Daemon) handleActivity(ctx context.Context, msg uds.Message) (any, error) {
	var q activity.Query
	if err := msg.UnmarshalData(&q); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return d.Activity(ctx, q), nil
}

func (d *Daemon) handleLogActivity(ctx context.Context, msg uds.Message) (any, error) {
	var entry core.ActivityEntry
	if err := msg.UnmarshalData(&entry); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return d.LogActivity(ctx, entry)
}
