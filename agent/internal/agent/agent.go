package agent

import (
	"context"
	"log/slog"

	"github.com/obsidianstack/volta/agent/internal/config"
	"github.com/obsidianstack/volta/agent/internal/delivery"
	"github.com/obsidianstack/volta/agent/internal/handshake"
	"github.com/obsidianstack/volta/agent/internal/host"
	"github.com/obsidianstack/volta/agent/internal/remote"
	"github.com/obsidianstack/volta/agent/internal/router"
)

// Host bundles the host collaborators the agent reads from.
type Host struct {
	Profiles   host.ProfileSource
	Controller host.Controller
	Files      host.FileStore
}

// NewHost builds the REST-backed host adapters for cfg, plus the push feed.
// Temperatures and progress come from the metrics endpoint when one is set.
func NewHost(cfg config.HostConfig) (Host, *host.Feed, error) {
	api := host.NewAPIClient(cfg.URL, cfg.APIKey())

	var controller host.Controller = api
	if cfg.MetricsEndpoint != "" {
		controller = host.NewMetricsController(api, cfg.MetricsEndpoint)
	}

	var auth host.Authenticator
	if cfg.APIKey() != "" {
		auth = api
	}
	feed, err := host.NewFeed(cfg.URL, auth)
	if err != nil {
		return Host{}, nil, err
	}
	return Host{Profiles: api, Controller: controller, Files: api}, feed, nil
}

// NewClient returns a service client for cfg.
func NewClient(cfg config.AgentConfig, userAgent string) *remote.Client {
	return remote.NewClient(cfg.APIServer, cfg.Token(), userAgent, cfg.RequestTimeout)
}

// Settings returns the delivery settings of cfg.
func Settings(cfg config.AgentConfig) delivery.Settings {
	return delivery.Settings{MaxAttempts: cfg.Retry, RetryDelay: cfg.RetryDelay()}
}

// Agent owns the router, the handshake and the delivery worker. Everything
// except Wait must be called from the goroutine running Run.
type Agent struct {
	userAgent string
	host      config.HostConfig
	verifier  *handshake.Verifier
	worker    *delivery.Worker
	router    *router.Router
}

// New builds an Agent from cfg. userAgent goes into every service request.
func New(cfg *config.Config, h Host, userAgent string) *Agent {
	client := NewClient(cfg.Agent, userAgent)
	v := handshake.New(client, h.Profiles, cfg.Host.ListenPort())
	w := delivery.New(client)
	return &Agent{
		userAgent: userAgent,
		host:      cfg.Host,
		verifier:  v,
		worker:    w,
		router:    router.New(h.Controller, h.Files, v, w, Settings(cfg.Agent)),
	}
}

// Verifier returns the agent's handshake.
func (a *Agent) Verifier() *handshake.Verifier { return a.verifier }

// Router returns the agent's router.
func (a *Agent) Router() *router.Router { return a.router }

// Run dispatches host events and configuration reloads until ctx is
// cancelled or events is closed.
func (a *Agent) Run(ctx context.Context, events <-chan host.Event, reloads <-chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			a.router.Handle(ctx, ev)

		case cfg := <-reloads:
			a.Reload(cfg)
		}
	}
}

// Reload applies a new configuration. A changed server or credential
// invalidates verification; retry settings apply to the next report.
// Host settings are fixed at startup. Reload reports whether cfg changes
// them, in which case they wait for a restart.
func (a *Agent) Reload(cfg *config.Config) (restartNeeded bool) {
	client := NewClient(cfg.Agent, a.userAgent)
	if a.verifier.Reconfigure(client) {
		slog.Info("agent: service settings changed, verification reset", "server", client.Server())
	}
	a.worker.SetPoster(client)
	a.router.SetSettings(Settings(cfg.Agent))
	slog.Info("agent: config reloaded",
		"retry", cfg.Agent.Retry,
		"time_retry", cfg.Agent.TimeRetry)

	if cfg.Host != a.host {
		slog.Warn("agent: host settings changed, restart the agent to apply them",
			"url", cfg.Host.URL,
			"port", cfg.Host.ListenPort(),
			"metrics_endpoint", cfg.Host.MetricsEndpoint)
		return true
	}
	return false
}

// Wait blocks until every dispatched delivery has finished.
func (a *Agent) Wait() { a.worker.Wait() }
