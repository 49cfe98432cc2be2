package host

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/obsidianstack/volta/pkg/types"
)

const defaultHostTimeout = 5 * time.Second

// errNotOperational is returned for the host's 409 answer on printer
// endpoints, which it gives whenever no printer is connected.
var errNotOperational = pkgerrors.New("host: printer is not operational")

var nonWord = regexp.MustCompile(`[^a-z0-9]+`)

// APIClient reads printer state from the host's REST API.
// It implements ProfileSource, Controller and FileStore.
type APIClient struct {
	base   string
	apiKey string
	http   *http.Client
}

// NewAPIClient returns a client for the host at baseURL. apiKey may be
// empty when the host allows anonymous reads.
func NewAPIClient(baseURL, apiKey string) *APIClient {
	return &APIClient{
		base:   strings.TrimRight(baseURL, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: defaultHostTimeout},
	}
}

type profilesResponse struct {
	Profiles map[string]struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Model   string `json:"model"`
		Current bool   `json:"current"`
		Default bool   `json:"default"`
	} `json:"profiles"`
}

// CurrentProfile returns the profile marked current, falling back to the
// default profile.
func (c *APIClient) CurrentProfile(ctx context.Context) (Profile, error) {
	var body profilesResponse
	if err := c.getJSON(ctx, "/api/printerprofiles", &body); err != nil {
		return Profile{}, pkgerrors.Wrap(err, "host: list printer profiles")
	}

	var fallback *Profile
	for id, p := range body.Profiles {
		if p.ID == "" {
			p.ID = id
		}
		prof := Profile{ID: p.ID, Name: p.Name, Model: p.Model}
		if p.Current {
			return prof, nil
		}
		if p.Default {
			fallback = &prof
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return Profile{}, pkgerrors.New("host: no current or default printer profile")
}

type printerResponse struct {
	Temperature map[string]struct {
		Actual *float64 `json:"actual"`
		Target *float64 `json:"target"`
	} `json:"temperature"`
	State struct {
		Text  string          `json:"text"`
		Flags map[string]bool `json:"flags"`
	} `json:"state"`
}

// StateID returns the printer state. A disconnected printer is "offline".
func (c *APIClient) StateID(ctx context.Context) (string, error) {
	var body printerResponse
	err := c.getJSON(ctx, "/api/printer?exclude=sd", &body)
	if pkgerrors.Is(err, errNotOperational) {
		return types.StateOffline, nil
	}
	if err != nil {
		return "", pkgerrors.Wrap(err, "host: printer state")
	}
	return stateID(body.State.Text, body.State.Flags), nil
}

// Temperatures returns the heater readings. A disconnected printer has none.
func (c *APIClient) Temperatures(ctx context.Context) (map[string]Reading, error) {
	var body printerResponse
	err := c.getJSON(ctx, "/api/printer?exclude=sd,state", &body)
	if pkgerrors.Is(err, errNotOperational) {
		return map[string]Reading{}, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "host: printer temperatures")
	}
	out := make(map[string]Reading, len(body.Temperature))
	for name, r := range body.Temperature {
		out[name] = Reading{Actual: r.Actual, Target: r.Target}
	}
	return out, nil
}

type jobResponse struct {
	Job struct {
		File struct {
			Name   *string `json:"name"`
			Origin string  `json:"origin"`
			Path   string  `json:"path"`
		} `json:"file"`
	} `json:"job"`
	Progress struct {
		Completion    *float64 `json:"completion"`
		PrintTime     *float64 `json:"printTime"`
		PrintTimeLeft *float64 `json:"printTimeLeft"`
	} `json:"progress"`
}

// Progress returns the running job's progress.
func (c *APIClient) Progress(ctx context.Context) (Progress, error) {
	var body jobResponse
	if err := c.getJSON(ctx, "/api/job", &body); err != nil {
		return Progress{}, pkgerrors.Wrap(err, "host: job progress")
	}
	return Progress{
		Completion:    body.Progress.Completion,
		PrintTime:     body.Progress.PrintTime,
		PrintTimeLeft: body.Progress.PrintTimeLeft,
	}, nil
}

// CurrentJob returns the file of the current job.
func (c *APIClient) CurrentJob(ctx context.Context) (JobFile, error) {
	var body jobResponse
	if err := c.getJSON(ctx, "/api/job", &body); err != nil {
		return JobFile{}, pkgerrors.Wrap(err, "host: current job")
	}
	f := body.Job.File
	return JobFile{Name: f.Name, Origin: f.Origin, Path: f.Path}, nil
}

type fileResponse struct {
	GcodeAnalysis *struct {
		Filament map[string]struct {
			Length *float64 `json:"length"`
		} `json:"filament"`
	} `json:"gcodeAnalysis"`
}

// Metadata returns the analysis of the file at origin/path.
func (c *APIClient) Metadata(ctx context.Context, origin, path string) (FileMetadata, error) {
	if origin == "" || path == "" {
		return FileMetadata{}, pkgerrors.Errorf("host: file metadata: missing origin or path (%q, %q)", origin, path)
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	endpoint := "/api/files/" + url.PathEscape(origin) + "/" + strings.Join(segments, "/")

	var body fileResponse
	if err := c.getJSON(ctx, endpoint, &body); err != nil {
		return FileMetadata{}, pkgerrors.Wrapf(err, "host: file metadata %s/%s", origin, path)
	}

	var md FileMetadata
	if body.GcodeAnalysis != nil {
		if tool, ok := body.GcodeAnalysis.Filament["tool0"]; ok {
			md.FilamentLength = tool.Length
		}
	}
	return md, nil
}

// Session is a push socket login.
type Session struct {
	Name    string `json:"name"`
	Session string `json:"session"`
}

// Login performs a passive login with the API key, yielding the session
// the push socket needs for its auth message.
func (c *APIClient) Login(ctx context.Context) (Session, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/login", []byte(`{"passive":true}`))
	if err != nil {
		return Session{}, err
	}
	var s Session
	if err := c.do(req, &s); err != nil {
		return Session{}, pkgerrors.Wrap(err, "host: login")
	}
	if s.Name == "" || s.Session == "" {
		return Session{}, pkgerrors.New("host: login returned no session")
	}
	return s, nil
}

func (c *APIClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *APIClient) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "host: build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	return req, nil
}

func (c *APIClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(err, "host: http")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return errNotOperational
	case resp.StatusCode != http.StatusOK:
		return pkgerrors.Errorf("host: %s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(err, "host: decode response")
	}
	return nil
}

// stateFlagOrder ranks the host's state flags; the first set flag names the
// state. "ready" and "sdReady" are not states.
var stateFlagOrder = []struct {
	flag, id string
}{
	{"cancelling", "cancelling"},
	{"pausing", "pausing"},
	{"paused", "paused"},
	{"printing", "printing"},
	{"error", "error"},
	{"closedOrError", types.StateOffline},
	{"operational", "operational"},
}

// stateID derives a state id from the host's flags, falling back to the
// state text in snake case.
func stateID(text string, flags map[string]bool) string {
	for _, f := range stateFlagOrder {
		if flags[f.flag] {
			return f.id
		}
	}
	id := strings.Trim(nonWord.ReplaceAllString(strings.ToLower(text), "_"), "_")
	if id == "" {
		return types.StateUnknown
	}
	return id
}
