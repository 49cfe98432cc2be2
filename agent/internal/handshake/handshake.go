package handshake

import (
	"context"
	"errors"
	"log/slog"

	"github.com/obsidianstack/volta/agent/internal/host"
	"github.com/obsidianstack/volta/agent/internal/identity"
	"github.com/obsidianstack/volta/agent/internal/remote"
	"github.com/obsidianstack/volta/pkg/types"
)

// Identity is what a successful verification contributes to the device state.
type Identity struct {
	ID      string
	Name    string
	Address string
}

// Verifier owns the verified flag. It is not safe for concurrent use; the
// agent's dispatch goroutine is its only caller.
type Verifier struct {
	client   *remote.Client
	profiles host.ProfileSource
	port     int

	// localIP is replaced in tests.
	localIP func() string

	verified bool
	identity Identity
}

// New returns an unverified Verifier. port is the host listen port that goes
// into the device address.
func New(client *remote.Client, profiles host.ProfileSource, port int) *Verifier {
	return &Verifier{
		client:   client,
		profiles: profiles,
		port:     port,
		localIP:  identity.LocalIPv4,
	}
}

// Verified reports whether the current configuration has been verified.
func (v *Verifier) Verified() bool { return v.verified }

// Identity returns the identity from the last successful verification.
func (v *Verifier) Identity() Identity { return v.identity }

// Invalidate forces the next report to verify again.
func (v *Verifier) Invalidate() {
	v.verified = false
	v.identity = Identity{}
}

// Reconfigure switches to c. Verification is invalidated when the server or
// the credential changed. It reports whether it invalidated.
func (v *Verifier) Reconfigure(c *remote.Client) bool {
	changed := v.client == nil || c.Server() != v.client.Server() || c.Token() != v.client.Token()
	v.client = c
	if changed {
		v.Invalidate()
	}
	return changed
}

// Resolve derives the device identity without contacting the service.
func (v *Verifier) Resolve(ctx context.Context) (Identity, error) {
	token := v.client.Token()
	if token == "" {
		return Identity{}, &remote.ConfigurationError{Reason: "no API token provided"}
	}

	profile, err := v.profiles.CurrentProfile(ctx)
	if err != nil {
		return Identity{}, &remote.LookupError{Op: "printer profile", Err: err}
	}

	name := profile.Model
	if name == "" {
		name = types.UnknownName
	}
	addr := identity.Address(profile.Name, v.localIP(), v.port)

	id, err := identity.Derive(token, addr)
	if err != nil {
		return Identity{}, &remote.ConfigurationError{Reason: "API token is not a valid AES key", Err: err}
	}
	return Identity{ID: id, Name: name, Address: addr}, nil
}

// Verify derives the identity and confirms the service accepts the
// credential. A rejected credential yields false with a nil error; all
// other failures return one of the remote error types.
func (v *Verifier) Verify(ctx context.Context) (bool, error) {
	ident, err := v.Resolve(ctx)
	if err != nil {
		v.logFailure(err)
		return false, err
	}

	slog.Info("handshake: verifying connection", "server", v.client.Server())
	ok, err := v.client.Verify(ctx)
	if err != nil {
		v.logFailure(err)
		return false, err
	}
	if !ok {
		slog.Warn("handshake: verification was unsuccessful, check the API token", "server", v.client.Server())
		return false, nil
	}

	v.verified = true
	v.identity = ident
	slog.Info("handshake: connection verified", "server", v.client.Server(), "address", ident.Address)
	return true, nil
}

func (v *Verifier) logFailure(err error) {
	var te *remote.TransportError
	if errors.As(err, &te) {
		slog.Error("handshake: unable to connect to the Volta server", "server", v.client.Server(), "err", err)
		return
	}
	slog.Error("handshake: verification failed", "err", err)
}
