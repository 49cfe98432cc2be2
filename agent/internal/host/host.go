package host

import "context"

// Event names the feed produces that are not host lifecycle events.
const (
	EventStartup  = "Startup"
	EventProgress = "PrintProgress"
)

// Event is one notification from the host. Payload is the event's JSON
// payload decoded into generic values; it may be empty but is never nil.
type Event struct {
	Name    string
	Payload map[string]any
}

// Profile is the active printer profile.
type Profile struct {
	ID    string
	Name  string
	Model string
}

// Reading is one heater's temperatures. Nil means the host reported no value.
type Reading struct {
	Actual *float64
	Target *float64
}

// Progress is the running job's progress. Nil fields were not reported.
type Progress struct {
	Completion    *float64 // percent
	PrintTime     *float64 // seconds elapsed
	PrintTimeLeft *float64 // seconds remaining
}

// JobFile identifies the file of the current job.
type JobFile struct {
	Name   *string
	Origin string
	Path   string
}

// FileMetadata is the host's analysis of a job file.
type FileMetadata struct {
	// FilamentLength is the estimated filament use of the first tool in
	// millimetres, nil when the file has not been analysed.
	FilamentLength *float64
}

// ProfileSource returns the active printer profile.
type ProfileSource interface {
	CurrentProfile(ctx context.Context) (Profile, error)
}

// Controller reports live printer state.
type Controller interface {
	// StateID returns a lowercase state id such as "operational" or "printing".
	StateID(ctx context.Context) (string, error)
	// Temperatures returns readings keyed by heater ("bed", "tool0", ...).
	Temperatures(ctx context.Context) (map[string]Reading, error)
	Progress(ctx context.Context) (Progress, error)
	CurrentJob(ctx context.Context) (JobFile, error)
}

// FileStore returns file metadata by storage origin and path.
type FileStore interface {
	Metadata(ctx context.Context, origin, path string) (FileMetadata, error)
}
