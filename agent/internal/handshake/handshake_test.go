package handshake

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/obsidianstack/volta/agent/internal/host"
	"github.com/obsidianstack/volta/agent/internal/identity"
	"github.com/obsidianstack/volta/agent/internal/remote"
	"github.com/obsidianstack/volta/agent/internal/remote/remotetest"
)

const token = "0123456789abcdef0123456789abcdef"

type stubProfiles struct {
	p   host.Profile
	err error
}

func (s stubProfiles) CurrentProfile(context.Context) (host.Profile, error) { return s.p, s.err }

var mk3 = stubProfiles{p: host.Profile{ID: "mk3", Name: "Prusa i3 MK3", Model: "Original Prusa i3 MK3"}}

func newVerifier(server, tok string, profiles host.ProfileSource) *Verifier {
	v := New(remote.NewClient(server, tok, "volta-agent/test", 0), profiles, 5000)
	v.localIP = func() string { return "192.168.1.20" }
	return v
}

func TestVerify_Success(t *testing.T) {
	srv := remotetest.New(t, token)
	v := newVerifier(srv.URL, token, mk3)

	ok, err := v.Verify(context.Background())
	if err != nil || !ok {
		t.Fatalf("Verify() = %v, %v; want true, nil", ok, err)
	}
	if !v.Verified() {
		t.Error("Verified() = false after success")
	}

	id := v.Identity()
	if id.Address != "prusa_i3_mk3@192.168.1.20:5000" {
		t.Errorf("Address = %q", id.Address)
	}
	if id.Name != "Original Prusa i3 MK3" {
		t.Errorf("Name = %q", id.Name)
	}
	want, err := identity.Derive(token, id.Address)
	if err != nil {
		t.Fatalf("Derive() error = %v", err)
	}
	if id.ID != want {
		t.Errorf("ID = %q, want %q", id.ID, want)
	}
}

func TestVerify_EmptyTokenMakesNoRequest(t *testing.T) {
	srv := remotetest.New(t, token)
	v := newVerifier(srv.URL, "", mk3)

	ok, err := v.Verify(context.Background())
	if ok {
		t.Error("Verify() = true with empty token")
	}
	var ce *remote.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("Verify() error = %v, want ConfigurationError", err)
	}
	if n := srv.VerifyCalls(); n != 0 {
		t.Errorf("verify calls = %d, want 0", n)
	}
}

func TestVerify_InvalidKeyLength(t *testing.T) {
	srv := remotetest.New(t, "short-token")
	v := newVerifier(srv.URL, "short-token", mk3)

	_, err := v.Verify(context.Background())
	var ce *remote.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("Verify() error = %v, want ConfigurationError", err)
	}
	if n := srv.VerifyCalls(); n != 0 {
		t.Errorf("verify calls = %d, want 0", n)
	}
}

func TestVerify_UnknownModel(t *testing.T) {
	srv := remotetest.New(t, token)
	v := newVerifier(srv.URL, token, stubProfiles{p: host.Profile{Name: "Ender3Pro"}})

	if ok, err := v.Verify(context.Background()); !ok || err != nil {
		t.Fatalf("Verify() = %v, %v", ok, err)
	}
	if got := v.Identity().Name; got != "unknown" {
		t.Errorf("Name = %q, want unknown", got)
	}
	if got := v.Identity().Address; got != "ender3_pro@192.168.1.20:5000" {
		t.Errorf("Address = %q", got)
	}
}

func TestVerify_ProfileLookupFails(t *testing.T) {
	srv := remotetest.New(t, token)
	v := newVerifier(srv.URL, token, stubProfiles{err: errors.New("host down")})

	_, err := v.Verify(context.Background())
	var le *remote.LookupError
	if !errors.As(err, &le) {
		t.Fatalf("Verify() error = %v, want LookupError", err)
	}
	if v.Verified() {
		t.Error("Verified() = true after failure")
	}
}

func TestVerify_Failures(t *testing.T) {
	tests := []struct {
		name    string
		verify  remotetest.Response
		wantErr any
	}{
		{"unauthorized", remotetest.Response{Status: http.StatusUnauthorized, Body: `{"message":"Unauthenticated."}`}, nil},
		{"token mismatch", remotetest.Response{Status: http.StatusOK, Body: `{"api_token":"someone-else"}`}, nil},
		{"server error", remotetest.Response{Status: http.StatusInternalServerError, Body: `oops`}, &remote.ProtocolError{}},
		{"malformed", remotetest.Response{Status: http.StatusOK, Body: `<html>`}, &remote.ProtocolError{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := remotetest.New(t, token)
			srv.SetVerify(tt.verify)
			v := newVerifier(srv.URL, token, mk3)

			ok, err := v.Verify(context.Background())
			if ok || v.Verified() {
				t.Fatal("Verify() succeeded, want failure")
			}
			switch tt.wantErr.(type) {
			case nil:
				if err != nil {
					t.Errorf("Verify() error = %v, want nil", err)
				}
			case *remote.ProtocolError:
				var pe *remote.ProtocolError
				if !errors.As(err, &pe) {
					t.Errorf("Verify() error = %v, want ProtocolError", err)
				}
			}
		})
	}
}

func TestVerify_TransportError(t *testing.T) {
	srv := remotetest.New(t, token)
	url := srv.URL
	srv.Close()
	v := newVerifier(url, token, mk3)

	_, err := v.Verify(context.Background())
	var te *remote.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Verify() error = %v, want TransportError", err)
	}
}

func TestReconfigure(t *testing.T) {
	srv := remotetest.New(t, token)
	v := newVerifier(srv.URL, token, mk3)
	if ok, _ := v.Verify(context.Background()); !ok {
		t.Fatal("initial Verify() failed")
	}

	if v.Reconfigure(remote.NewClient(srv.URL+"/", token, "volta-agent/test", 0)) {
		t.Error("Reconfigure(same server, same token) invalidated")
	}
	if !v.Verified() {
		t.Error("Verified() = false after no-op reconfigure")
	}

	if !v.Reconfigure(remote.NewClient(srv.URL, "fedcba9876543210fedcba9876543210", "volta-agent/test", 0)) {
		t.Error("Reconfigure(new token) did not invalidate")
	}
	if v.Verified() || v.Identity().ID != "" {
		t.Error("verification survived a token change")
	}
}
