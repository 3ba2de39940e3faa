package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gokeyring "github.com/zalando/go-keyring"

	"github.com/m96-chan/chatly/internal/chat"
	"github.com/m96-chan/chatly/internal/config"
	"github.com/m96-chan/chatly/internal/consts"
	"github.com/m96-chan/chatly/internal/frappe"
	"github.com/m96-chan/chatly/internal/keyring"
)

func setup(t *testing.T) {
	t.Helper()
	gokeyring.MockInit()
	orig := consts.CacheDir
	consts.CacheDir = t.TempDir()
	t.Cleanup(func() { consts.CacheDir = orig })
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Backend.Kind = "frappe"
	cfg.Backend.HideArchived = true
	cfg.Fetch.Timeout = 5 * time.Second
	cfg.Users.CacheTTL = time.Minute
	cfg.Users.CacheSize = 16
	cfg.Unread.BufferLimit = 8
	cfg.Unread.DedupeWindow = 32
	return cfg
}

func TestResolveFrappe_NotLoggedIn(t *testing.T) {
	setup(t)

	_, _, err := ResolveFrappe(testConfig())
	if !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("got %v, want ErrNotLoggedIn", err)
	}

	cfg := testConfig()
	cfg.Backend.URL = "https://chat.example.com"
	_, _, err = ResolveFrappe(cfg)
	if !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("got %v, want ErrNotLoggedIn without a token", err)
	}
}

func TestResolveFrappe_SingleStoredSite(t *testing.T) {
	setup(t)
	site := keyring.Site{ID: "chat.example.com", Kind: "frappe", URL: "https://chat.example.com"}
	if err := keyring.AddSite(site, "k:s", ""); err != nil {
		t.Fatal(err)
	}

	got, token, err := ResolveFrappe(testConfig())
	if err != nil {
		t.Fatalf("ResolveFrappe: %v", err)
	}
	if got.URL != site.URL || token != "k:s" {
		t.Errorf("got %+v %q", got, token)
	}
}

func TestResolveFrappe_ConfiguredURLAndEnvToken(t *testing.T) {
	setup(t)
	t.Setenv("CHATLY_TOKEN", "env:token")

	cfg := testConfig()
	cfg.Backend.URL = "https://other.example.com"
	got, token, err := ResolveFrappe(cfg)
	if err != nil {
		t.Fatalf("ResolveFrappe: %v", err)
	}
	if got.ID != "other.example.com" || token != "env:token" {
		t.Errorf("got %+v %q", got, token)
	}
}

func TestResolveSlack(t *testing.T) {
	setup(t)

	if _, _, err := ResolveSlack(testConfig()); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("got %v, want ErrNotLoggedIn", err)
	}

	if err := keyring.AddSite(keyring.Site{ID: "T1", Kind: "slack", Name: "Acme"}, "xoxp-1", "xapp-1"); err != nil {
		t.Fatal(err)
	}
	user, app, err := ResolveSlack(testConfig())
	if err != nil {
		t.Fatalf("ResolveSlack: %v", err)
	}
	if user != "xoxp-1" || app != "xapp-1" {
		t.Errorf("got %q %q", user, app)
	}
}

func TestSessionOptions(t *testing.T) {
	opts := SessionOptions(testConfig())
	if opts.FetchTimeout != 5*time.Second || opts.UserCacheSize != 16 || opts.BufferLimit != 8 || opts.DedupeWindow != 32 {
		t.Errorf("unexpected options %+v", opts)
	}
}

func TestWaitLoaded(t *testing.T) {
	setup(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/method/chatly.api.chatly_channel.get_all_channels", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":{"channels":[{"name":"c1","channel_name":"general","type":"Open"}],"dm_channels":[{"name":"d1","is_direct_message":1,"peer_user_id":"bob@example.com"}]}}`))
	})
	mux.HandleFunc("/api/method/chatly.api.chatly_message.get_unread_count_for_channels", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":{"channels":[{"name":"c1","unread_count":2}]}}`))
	})
	mux.HandleFunc("/api/method/chatly.api.chatly_users.get_list", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":[]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := frappe.New(srv.URL, "k:s")
	if err != nil {
		t.Fatal(err)
	}
	a := NewWithBackend(testConfig(), idleEvents{client})
	t.Cleanup(a.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := a.WaitLoaded(ctx)
	if err != nil {
		t.Fatalf("WaitLoaded: %v", err)
	}
	if len(snap.Channels) != 1 || len(snap.DirectMessages) != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if got := a.Session.Unread().Get("c1"); got != 2 {
		t.Errorf("unread c1 = %d after WaitLoaded, want 2", got)
	}
	if !a.Session.Ready() {
		t.Error("session should be ready")
	}
}

// idleEvents replaces the realtime stream with one that never delivers.
type idleEvents struct {
	*frappe.Client
}

func (idleEvents) Subscribe(ctx context.Context, _ func(chat.Event)) error {
	<-ctx.Done()
	return ctx.Err()
}
