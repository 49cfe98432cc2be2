package router

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/obsidianstack/volta/agent/internal/delivery"
	"github.com/obsidianstack/volta/agent/internal/handshake"
	"github.com/obsidianstack/volta/agent/internal/host"
	"github.com/obsidianstack/volta/agent/internal/remote"
	"github.com/obsidianstack/volta/pkg/types"
)

// Verifier is the handshake as the report gate sees it.
type Verifier interface {
	Verified() bool
	Verify(ctx context.Context) (bool, error)
	Identity() handshake.Identity
}

// Dispatcher hands a snapshot to a delivery goroutine.
type Dispatcher interface {
	Dispatch(snap types.DeviceState, s delivery.Settings)
}

// Router applies host events to the device state and reports it.
type Router struct {
	controller host.Controller
	files      host.FileStore
	verifier   Verifier
	dispatcher Dispatcher
	settings   delivery.Settings

	// now is replaced in tests.
	now func() time.Time

	state types.DeviceState
}

// New returns a Router with an empty snapshot.
func New(controller host.Controller, files host.FileStore, v Verifier, d Dispatcher, s delivery.Settings) *Router {
	return &Router{
		controller: controller,
		files:      files,
		verifier:   v,
		dispatcher: d,
		settings:   s,
		now:        time.Now,
		state: types.DeviceState{
			Name:  types.UnknownName,
			State: types.StateUnknown,
		},
	}
}

// State returns a copy of the current snapshot.
func (r *Router) State() types.DeviceState { return r.state }

// SetSettings changes the retry settings of later reports.
func (r *Router) SetSettings(s delivery.Settings) { r.settings = s }

// Handle applies ev and reports the result. Unknown events are ignored.
// It reports whether the event was recognised.
func (r *Router) Handle(ctx context.Context, ev host.Event) bool {
	e, ok := ParseEvent(ev.Name)
	if !ok {
		return false
	}
	slog.Debug("router: event fired", "event", ev.Name)

	r.apply(ctx, e, ev.Payload)
	r.report(ctx, e)
	return true
}

func (r *Router) apply(ctx context.Context, e Event, payload map[string]any) {
	switch e {
	case EventShutdown, EventDisconnected:
		r.state.State = types.StateOffline

	case EventConnected:
		r.refreshState(ctx)
		r.refreshTemperatures(ctx)

	case EventPrintStarted:
		r.state.Job = types.Job{}
		r.refreshState(ctx)
		r.refreshTemperatures(ctx)
		r.refreshJob(ctx)
		r.state.Job.StartedAt = types.FormatStartedAt(r.now())
		r.state.Job.Status = types.JobInProgress

	case EventPrintPaused, EventWaiting, EventPrintResumed:
		r.refreshState(ctx)

	case EventPrintFailed:
		r.refreshState(ctx)
		r.jobStatistics(ctx, payload)
		r.finishJob(types.JobFailed)

	case EventPrintDone:
		r.jobStatistics(ctx, payload)
		r.refreshState(ctx)
		r.finishJob(types.JobSuccess)

	case EventProgress:
		r.refreshJob(ctx)
		r.refreshTemperatures(ctx)

	case EventStartup:
	}
}

// finishJob moves the job to a terminal status once.
func (r *Router) finishJob(status string) {
	switch r.state.Job.Status {
	case types.JobSuccess, types.JobFailed:
		slog.Debug("router: job already finished", "status", r.state.Job.Status, "ignored", status)
		return
	}
	r.state.Job.Status = status
}

// Report runs the report gate and, when verified, dispatches a copy of the
// snapshot. It reports whether a delivery was dispatched.
func (r *Router) Report(ctx context.Context) bool {
	return r.report(ctx, EventNone)
}

// report is Report on behalf of e. A state set by a Shutdown or Disconnected
// event is kept after a first verification.
func (r *Router) report(ctx context.Context, e Event) bool {
	if !r.verifier.Verified() {
		ok, _ := r.verifier.Verify(ctx)
		if !ok {
			slog.Debug("router: not verified, report dropped")
			return false
		}
		id := r.verifier.Identity()
		r.state.ID = id.ID
		r.state.Name = id.Name
		if e != EventShutdown && e != EventDisconnected {
			r.refreshState(ctx)
		}
	}
	r.dispatcher.Dispatch(r.state, r.settings)
	return true
}

func (r *Router) refreshState(ctx context.Context) {
	id, err := r.controller.StateID(ctx)
	if err != nil || id == "" {
		if err != nil {
			logLookup(&remote.LookupError{Op: "printer state", Err: err})
		}
		r.state.State = types.StateUnknown
		return
	}
	r.state.State = strings.ToLower(id)
}

func (r *Router) refreshTemperatures(ctx context.Context) {
	r.state.Bed = types.Temperature{}
	r.state.Tool = types.Temperature{}

	temps, err := r.controller.Temperatures(ctx)
	if err != nil {
		logLookup(&remote.LookupError{Op: "temperatures", Err: err})
		return
	}
	if bed, ok := temps["bed"]; ok {
		r.state.Bed = temperature(bed)
	}
	if tool, ok := temps["tool0"]; ok {
		r.state.Tool = temperature(tool)
	}
}

func (r *Router) refreshJob(ctx context.Context) {
	p, err := r.controller.Progress(ctx)
	if err != nil {
		logLookup(&remote.LookupError{Op: "job progress", Err: err})
		r.resetJobProgress()
		return
	}
	r.state.Job.Progress = truncate(p.Completion)
	r.state.Job.TimeRemaining = truncate(p.PrintTimeLeft)
	r.state.Job.TimeElapsed = truncate(p.PrintTime)

	job, err := r.controller.CurrentJob(ctx)
	if err != nil {
		logLookup(&remote.LookupError{Op: "current job", Err: err})
		r.resetJobProgress()
		return
	}
	if job.Name != nil && *job.Name != "" {
		r.state.Job.Filename = *job.Name
	} else {
		r.state.Job.Filename = types.UnknownName
	}
}

func (r *Router) resetJobProgress() {
	r.state.Job.Progress = 0
	r.state.Job.TimeRemaining = 0
	r.state.Job.Filename = types.UnknownName
}

// jobStatistics reads the finished job's filament use and duration from the
// event payload and the file metadata.
func (r *Router) jobStatistics(ctx context.Context, payload map[string]any) {
	if t, ok := number(payload["time"]); ok {
		r.state.Job.TimeElapsed = int(t)
	}

	origin, _ := payload["origin"].(string)
	path, _ := payload["path"].(string)
	if path == "" {
		path, _ = payload["file"].(string)
	}

	md, err := r.files.Metadata(ctx, origin, path)
	if err != nil {
		logLookup(&remote.LookupError{Op: "file metadata", Err: err})
		return
	}
	r.state.Job.FilamentLength = 0
	if md.FilamentLength != nil {
		r.state.Job.FilamentLength = *md.FilamentLength
	}
}

func temperature(rd host.Reading) types.Temperature {
	return types.Temperature{Current: truncate(rd.Actual), Target: truncate(rd.Target)}
}

// truncate converts a host reading to int; nil and non-finite values are 0.
func truncate(v *float64) int {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0
	}
	return int(*v)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func logLookup(err *remote.LookupError) {
	slog.Error("router: lookup failed, using defaults", "op", err.Op, "err", err)
}
