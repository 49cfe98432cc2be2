package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/obsidianstack/volta/agent/internal/remote"
	"github.com/obsidianstack/volta/pkg/types"
)

// Outcome is how a delivery cycle ended.
type Outcome int

const (
	Delivered Outcome = iota
	Rejected
	RateLimited
	Exhausted
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Rejected:
		return "rejected"
	case RateLimited:
		return "rate_limited"
	case Exhausted:
		return "exhausted"
	}
	return "unknown"
}

// Settings bound one delivery cycle.
type Settings struct {
	// MaxAttempts is the number of POSTs tried; values below 1 mean 1.
	MaxAttempts int
	// RetryDelay is slept between attempts, never after the last one.
	RetryDelay time.Duration
}

// Poster is the part of remote.Client the worker needs.
type Poster interface {
	Monitor(ctx context.Context, payload []byte) error
}

// Worker sends snapshots. Dispatch and SetPoster are called from the
// agent's dispatch goroutine; Send is safe for concurrent use.
type Worker struct {
	mu     sync.Mutex
	poster Poster

	// sleep is replaced in tests.
	sleep func(time.Duration)

	wg sync.WaitGroup
}

// New returns a Worker posting through p.
func New(p Poster) *Worker {
	return &Worker{poster: p, sleep: time.Sleep}
}

// SetPoster switches later deliveries to p. Sends already running keep the
// poster they started with.
func (w *Worker) SetPoster(p Poster) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.poster = p
}

func (w *Worker) currentPoster() Poster {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.poster
}

// Dispatch sends snap on a new goroutine and returns immediately.
func (w *Worker) Dispatch(snap types.DeviceState, s Settings) {
	p := w.currentPoster()
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.send(context.Background(), p, snap, s)
	}()
}

// Wait blocks until every dispatched send has finished.
func (w *Worker) Wait() { w.wg.Wait() }

// Send runs one delivery cycle synchronously.
func (w *Worker) Send(ctx context.Context, snap types.DeviceState, s Settings) Outcome {
	return w.send(ctx, w.currentPoster(), snap, s)
}

func (w *Worker) send(ctx context.Context, p Poster, snap types.DeviceState, s Settings) Outcome {
	attempts := s.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		// DeviceState has only plain fields; this cannot happen.
		slog.Error("delivery: encode snapshot", "err", err)
		return Exhausted
	}

	slog.Debug("delivery: start sending message", "id", snap.ID, "state", snap.State)

	for attempt := 1; attempt <= attempts; attempt++ {
		slog.Debug("delivery: attempt", "attempt", attempt, "max_attempts", attempts)

		err := p.Monitor(ctx, payload)
		if err == nil {
			slog.Info("delivery: message acknowledged", "id", snap.ID, "attempt", attempt)
			return Delivered
		}

		if remote.IsPermanent(err) {
			return permanent(err)
		}

		slog.Warn("delivery: attempt failed", "attempt", attempt, "err", err)
		if attempt < attempts && s.RetryDelay > 0 {
			w.sleep(s.RetryDelay)
		}
	}

	slog.Warn("delivery: unable to send the message", "attempts", attempts)
	return Exhausted
}

// permanent logs a permanent rejection and names its outcome.
func permanent(err error) Outcome {
	var ve *remote.ValidationError
	if errors.As(err, &ve) {
		slog.Error("delivery: invalid message", "body", ve.Body)
		return Rejected
	}
	var re *remote.RateLimitError
	errors.As(err, &re)
	slog.Error("delivery: rate limited", "message", re.Message)
	return RateLimited
}
