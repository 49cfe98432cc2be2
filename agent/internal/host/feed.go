package host

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pushPath      = "/sockjs/websocket"
	handshakeWait = 10 * time.Second
	readLimit     = 1 << 20
)

// Authenticator yields a push socket session. APIClient implements it.
type Authenticator interface {
	Login(ctx context.Context) (Session, error)
}

// Feed turns the host push socket into a stream of Events.
type Feed struct {
	url    string
	auth   Authenticator
	dialer *websocket.Dialer

	// lastProgress is the whole percent last emitted, -1 when not printing.
	lastProgress int
}

// NewFeed returns a Feed for the host at baseURL. auth may be nil when the
// host accepts anonymous push sockets.
func NewFeed(baseURL string, auth Authenticator) (*Feed, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("host: feed url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("host: feed url: unsupported scheme %q", u.Scheme)
	}
	u.Path += pushPath

	return &Feed{
		url:          u.String(),
		auth:         auth,
		dialer:       &websocket.Dialer{HandshakeTimeout: handshakeWait},
		lastProgress: -1,
	}, nil
}

// URL returns the push socket URL.
func (f *Feed) URL() string { return f.url }

// Run connects to the push socket and sends Events to out until ctx is
// cancelled, reconnecting with backoff whenever the connection drops.
// Run must be called from a single goroutine.
func (f *Feed) Run(ctx context.Context, out chan<- Event) {
	bo := newBackoff()

	for {
		if ctx.Err() != nil {
			return
		}

		err := f.session(ctx, out, bo)
		if ctx.Err() != nil {
			return
		}

		wait := bo.next()
		slog.Warn("host: feed disconnected, will reconnect",
			"url", f.url,
			"err", err,
			"retry_in", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// session runs one connection until it fails or ctx is cancelled.
func (f *Feed) session(ctx context.Context, out chan<- Event, bo *backoff) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage on shutdown.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	conn.SetReadLimit(readLimit)

	if f.auth != nil {
		s, err := f.auth.Login(ctx)
		if err != nil {
			return err
		}
		if err := conn.WriteJSON(map[string]string{"auth": s.Name + ":" + s.Session}); err != nil {
			return fmt.Errorf("send auth: %w", err)
		}
	}

	bo.reset()
	f.lastProgress = -1
	slog.Info("host: feed connected", "url", f.url)

	if !emit(ctx, out, Event{Name: EventStartup, Payload: map[string]any{}}) {
		return nil
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		for _, ev := range f.decode(data) {
			if !emit(ctx, out, ev) {
				return nil
			}
		}
	}
}

func emit(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// pushFrame is the subset of push messages the feed understands.
type pushFrame struct {
	Event *struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	} `json:"event"`
	Current *struct {
		State struct {
			Flags map[string]bool `json:"flags"`
		} `json:"state"`
		Job struct {
			File struct {
				Origin string `json:"origin"`
				Path   string `json:"path"`
			} `json:"file"`
		} `json:"job"`
		Progress struct {
			Completion *float64 `json:"completion"`
		} `json:"progress"`
	} `json:"current"`
}

// decode converts one push frame into zero or more Events.
func (f *Feed) decode(data []byte) []Event {
	var frame pushFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		slog.Debug("host: ignoring undecodable push frame", "err", err)
		return nil
	}

	var events []Event
	if e := frame.Event; e != nil && e.Type != "" {
		payload := e.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		events = append(events, Event{Name: e.Type, Payload: payload})
	}

	if c := frame.Current; c != nil {
		if !c.State.Flags["printing"] || c.Progress.Completion == nil {
			f.lastProgress = -1
			return events
		}
		pct := int(*c.Progress.Completion)
		if pct != f.lastProgress {
			f.lastProgress = pct
			events = append(events, Event{Name: EventProgress, Payload: map[string]any{
				"origin":   c.Job.File.Origin,
				"path":     c.Job.File.Path,
				"progress": pct,
			}})
		}
	}
	return events
}
