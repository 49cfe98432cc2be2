package types

import "time"

// Operational states reported when the controller cannot be asked.
const (
	StateUnknown = "unknown"
	StateOffline = "offline"
)

// Job statuses. A job is in_progress from PrintStarted until exactly one of
// PrintDone (success) or PrintFailed (failed).
const (
	JobInProgress = "in_progress"
	JobSuccess    = "success"
	JobFailed     = "failed"
)

// UnknownName is used for the device name and job filename when the host
// cannot provide one.
const UnknownName = "unknown"

// StartedAtLayout is the timestamp format of Job.StartedAt: ISO-8601 in UTC
// with microseconds and no zone suffix.
const StartedAtLayout = "2006-01-02T15:04:05.000000"

// Temperature is a heater reading in whole degrees Celsius.
type Temperature struct {
	Current int `json:"current"`
	Target  int `json:"target"`
}

// Job describes the current or most recent print job.
type Job struct {
	Status         string  `json:"status,omitempty"`
	Progress       int     `json:"progress"`       // percent
	TimeRemaining  int     `json:"time_remaining"` // seconds
	TimeElapsed    int     `json:"time_elapsed"`   // seconds
	Filename       string  `json:"filename,omitempty"`
	FilamentLength float64 `json:"filament_length"` // millimetres
	StartedAt      string  `json:"started_at,omitempty"`
}

// DeviceState is the snapshot reported to the monitoring service.
type DeviceState struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	State string      `json:"state"`
	Bed   Temperature `json:"heatbed_temperature"`
	Tool  Temperature `json:"extruder_temperature"`
	Job   Job         `json:"printjob"`
}

// FormatStartedAt renders t in StartedAtLayout.
func FormatStartedAt(t time.Time) string {
	return t.UTC().Format(StartedAtLayout)
}
