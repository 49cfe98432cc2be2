package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/obsidianstack/volta/agent/internal/delivery"
	"github.com/obsidianstack/volta/agent/internal/handshake"
	"github.com/obsidianstack/volta/agent/internal/host"
	"github.com/obsidianstack/volta/pkg/types"
)

var fixedNow = time.Date(2024, 3, 9, 14, 30, 5, 123456000, time.UTC)

func f(v float64) *float64 { return &v }
func s(v string) *string   { return &v }

// fakeController returns canned readings; a non-nil err fails every call.
type fakeController struct {
	state    string
	temps    map[string]host.Reading
	progress host.Progress
	job      host.JobFile
	err      error
}

func (c *fakeController) StateID(context.Context) (string, error) { return c.state, c.err }
func (c *fakeController) Temperatures(context.Context) (map[string]host.Reading, error) {
	return c.temps, c.err
}
func (c *fakeController) Progress(context.Context) (host.Progress, error) { return c.progress, c.err }
func (c *fakeController) CurrentJob(context.Context) (host.JobFile, error) { return c.job, c.err }

type fakeFiles struct {
	md        host.FileMetadata
	err       error
	gotOrigin string
	gotPath   string
}

func (f *fakeFiles) Metadata(_ context.Context, origin, path string) (host.FileMetadata, error) {
	f.gotOrigin, f.gotPath = origin, path
	return f.md, f.err
}

type fakeVerifier struct {
	verified bool
	ok       bool
	calls    int
}

func (v *fakeVerifier) Verified() bool { return v.verified }
func (v *fakeVerifier) Verify(context.Context) (bool, error) {
	v.calls++
	if !v.ok {
		return false, errors.New("rejected")
	}
	v.verified = true
	return true, nil
}
func (v *fakeVerifier) Identity() handshake.Identity {
	return handshake.Identity{ID: "enc-id", Name: "Original Prusa i3 MK3"}
}

type recorder struct {
	snaps    []types.DeviceState
	settings []delivery.Settings
}

func (r *recorder) Dispatch(snap types.DeviceState, s delivery.Settings) {
	r.snaps = append(r.snaps, snap)
	r.settings = append(r.settings, s)
}

func (r *recorder) last(t *testing.T) types.DeviceState {
	t.Helper()
	if len(r.snaps) == 0 {
		t.Fatal("no snapshot dispatched")
	}
	return r.snaps[len(r.snaps)-1]
}

func printing() *fakeController {
	return &fakeController{
		state: "Printing",
		temps: map[string]host.Reading{
			"bed":   {Actual: f(59.7), Target: f(60)},
			"tool0": {Actual: f(214.9), Target: f(215)},
		},
		progress: host.Progress{Completion: f(12.8), PrintTime: f(300.6), PrintTimeLeft: f(2400)},
		job:      host.JobFile{Name: s("benchy.gcode"), Origin: "local", Path: "benchy.gcode"},
	}
}

func newRouter(c host.Controller, files host.FileStore, v Verifier) (*Router, *recorder) {
	rec := &recorder{}
	r := New(c, files, v, rec, delivery.Settings{MaxAttempts: 1, RetryDelay: 2 * time.Second})
	r.now = func() time.Time { return fixedNow }
	return r, rec
}

func TestHandle_PrintStarted(t *testing.T) {
	r, rec := newRouter(printing(), &fakeFiles{}, &fakeVerifier{verified: true})

	if !r.Handle(context.Background(), host.Event{Name: "PrintStarted", Payload: map[string]any{}}) {
		t.Fatal("Handle(PrintStarted) = false")
	}

	got := rec.last(t)
	want := types.DeviceState{
		Name:  types.UnknownName,
		State: "printing",
		Bed:   types.Temperature{Current: 59, Target: 60},
		Tool:  types.Temperature{Current: 214, Target: 215},
		Job: types.Job{
			Status:        types.JobInProgress,
			Progress:      12,
			TimeRemaining: 2400,
			TimeElapsed:   300,
			Filename:      "benchy.gcode",
			StartedAt:     "2024-03-09T14:30:05.123456",
		},
	}
	if got != want {
		t.Errorf("snapshot = %+v\nwant       %+v", got, want)
	}
}

func TestHandle_UnknownEventIgnored(t *testing.T) {
	v := &fakeVerifier{}
	r, rec := newRouter(printing(), &fakeFiles{}, v)
	before := r.State()

	for _, name := range []string{"ClientOpened", "SettingsUpdated", "", "printdone"} {
		if r.Handle(context.Background(), host.Event{Name: name, Payload: map[string]any{}}) {
			t.Errorf("Handle(%q) = true, want false", name)
		}
	}
	if len(rec.snaps) != 0 || v.calls != 0 {
		t.Errorf("unknown events caused %d reports and %d verifications", len(rec.snaps), v.calls)
	}
	if r.State() != before {
		t.Error("unknown event mutated the state")
	}
}

func TestHandle_OfflineEvents(t *testing.T) {
	for _, name := range []string{"Shutdown", "Disconnected"} {
		r, rec := newRouter(printing(), &fakeFiles{}, &fakeVerifier{verified: true})
		r.Handle(context.Background(), host.Event{Name: "Connected", Payload: map[string]any{}})
		r.Handle(context.Background(), host.Event{Name: name, Payload: map[string]any{}})
		if got := rec.last(t).State; got != types.StateOffline {
			t.Errorf("%s: state = %q, want offline", name, got)
		}
	}
}

func TestHandle_LookupFailuresDefault(t *testing.T) {
	c := &fakeController{err: errors.New("host unreachable")}
	r, rec := newRouter(c, &fakeFiles{err: errors.New("no such file")}, &fakeVerifier{verified: true})
	ctx := context.Background()

	r.Handle(ctx, host.Event{Name: "PrintStarted", Payload: map[string]any{}})
	got := rec.last(t)
	if got.State != types.StateUnknown {
		t.Errorf("state = %q, want unknown", got.State)
	}
	if got.Bed != (types.Temperature{}) || got.Tool != (types.Temperature{}) {
		t.Errorf("temperatures = %+v / %+v, want zeros", got.Bed, got.Tool)
	}
	if got.Job.Progress != 0 || got.Job.TimeRemaining != 0 || got.Job.Filename != types.UnknownName {
		t.Errorf("job = %+v, want zero progress and unknown filename", got.Job)
	}

	r.Handle(ctx, host.Event{Name: "PrintDone", Payload: map[string]any{"origin": "local", "path": "x.gcode"}})
	got = rec.last(t)
	if got.Job.FilamentLength != 0 {
		t.Errorf("filament_length = %v, want 0", got.Job.FilamentLength)
	}
}

func TestHandle_MissingReadingsAreZero(t *testing.T) {
	c := &fakeController{
		state: "Operational",
		temps: map[string]host.Reading{"bed": {Actual: f(21.5)}},
		job:   host.JobFile{},
	}
	r, rec := newRouter(c, &fakeFiles{}, &fakeVerifier{verified: true})

	r.Handle(context.Background(), host.Event{Name: "PrintProgress", Payload: map[string]any{"progress": 3}})
	got := rec.last(t)
	if got.Bed != (types.Temperature{Current: 21, Target: 0}) {
		t.Errorf("bed = %+v", got.Bed)
	}
	if got.Tool != (types.Temperature{}) {
		t.Errorf("tool = %+v, want zeros", got.Tool)
	}
	if got.Job.Progress != 0 || got.Job.TimeElapsed != 0 || got.Job.Filename != types.UnknownName {
		t.Errorf("job = %+v", got.Job)
	}
}

func TestHandle_JobStatusTransitions(t *testing.T) {
	tests := []struct {
		name   string
		events []string
		want   string
	}{
		{"done", []string{"PrintStarted", "PrintProgress", "PrintDone"}, types.JobSuccess},
		{"failed", []string{"PrintStarted", "PrintPaused", "PrintFailed"}, types.JobFailed},
		{"done is final", []string{"PrintStarted", "PrintDone", "PrintFailed"}, types.JobSuccess},
		{"failed is final", []string{"PrintStarted", "PrintFailed", "PrintDone"}, types.JobFailed},
		{"restart", []string{"PrintStarted", "PrintDone", "PrintStarted"}, types.JobInProgress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, rec := newRouter(printing(), &fakeFiles{}, &fakeVerifier{verified: true})
			for _, name := range tt.events {
				r.Handle(context.Background(), host.Event{Name: name, Payload: map[string]any{}})
			}
			if got := rec.last(t).Job.Status; got != tt.want {
				t.Errorf("status = %q, want %q", got, tt.want)
			}
			if len(rec.snaps) != len(tt.events) {
				t.Errorf("reports = %d, want %d", len(rec.snaps), len(tt.events))
			}
		})
	}
}

func TestHandle_JobStatistics(t *testing.T) {
	files := &fakeFiles{md: host.FileMetadata{FilamentLength: f(3812.5)}}
	r, rec := newRouter(printing(), files, &fakeVerifier{verified: true})
	ctx := context.Background()

	r.Handle(ctx, host.Event{Name: "PrintStarted", Payload: map[string]any{}})
	r.Handle(ctx, host.Event{Name: "PrintDone", Payload: map[string]any{
		"origin": "local", "file": "boats/benchy.gcode", "time": 5321.87,
	}})

	got := rec.last(t).Job
	if got.FilamentLength != 3812.5 {
		t.Errorf("filament_length = %v, want 3812.5", got.FilamentLength)
	}
	if got.TimeElapsed != 5321 {
		t.Errorf("time_elapsed = %d, want 5321", got.TimeElapsed)
	}
	if files.gotOrigin != "local" || files.gotPath != "boats/benchy.gcode" {
		t.Errorf("metadata lookup = %q/%q", files.gotOrigin, files.gotPath)
	}
}

func TestReport_GateVerifiesOnce(t *testing.T) {
	v := &fakeVerifier{ok: true}
	r, rec := newRouter(printing(), &fakeFiles{}, v)
	ctx := context.Background()

	r.Handle(ctx, host.Event{Name: "Startup", Payload: map[string]any{}})
	r.Handle(ctx, host.Event{Name: "Connected", Payload: map[string]any{}})

	if v.calls != 1 {
		t.Errorf("verify calls = %d, want 1", v.calls)
	}
	got := rec.last(t)
	if got.ID != "enc-id" || got.Name != "Original Prusa i3 MK3" {
		t.Errorf("identity = %q/%q", got.ID, got.Name)
	}
	if rec.snaps[0].State != "printing" {
		t.Errorf("first report state = %q, want printing", rec.snaps[0].State)
	}
}

func TestReport_GateDropsUnverified(t *testing.T) {
	v := &fakeVerifier{ok: false}
	r, rec := newRouter(printing(), &fakeFiles{}, v)

	r.Handle(context.Background(), host.Event{Name: "PrintStarted", Payload: map[string]any{}})
	if len(rec.snaps) != 0 {
		t.Errorf("dispatched %d snapshots while unverified", len(rec.snaps))
	}
	if got := r.State().Job.Status; got != types.JobInProgress {
		t.Errorf("state not mutated: status = %q", got)
	}
}

func TestSetSettings(t *testing.T) {
	r, rec := newRouter(printing(), &fakeFiles{}, &fakeVerifier{verified: true})
	r.SetSettings(delivery.Settings{MaxAttempts: 4, RetryDelay: time.Second})
	r.Report(context.Background())

	if got := rec.settings[0]; got.MaxAttempts != 4 || got.RetryDelay != time.Second {
		t.Errorf("settings = %+v", got)
	}
}

func TestParseEvent(t *testing.T) {
	for name, want := range eventNames {
		got, ok := ParseEvent(name)
		if !ok || got != want {
			t.Errorf("ParseEvent(%q) = %v, %v", name, got, ok)
		}
		if got.String() != name {
			t.Errorf("%v.String() = %q, want %q", got, got.String(), name)
		}
	}
	if _, ok := ParseEvent("Upload"); ok {
		t.Error("ParseEvent(Upload) ok = true")
	}
}

func TestReport_OfflineSurvivesFirstVerification(t *testing.T) {
	for _, name := range []string{"Shutdown", "Disconnected"} {
		c := &fakeController{err: errors.New("host going down")}
		r, rec := newRouter(c, &fakeFiles{}, &fakeVerifier{ok: true})

		r.Handle(context.Background(), host.Event{Name: name, Payload: map[string]any{}})
		got := rec.last(t)
		if got.State != types.StateOffline {
			t.Errorf("%s: state = %q, want offline", name, got.State)
		}
		if got.ID != "enc-id" {
			t.Errorf("%s: id = %q, want enc-id", name, got.ID)
		}
	}
}
