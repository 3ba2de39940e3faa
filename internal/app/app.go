// Package app assembles a chat session from configuration and stored
// credentials.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/samber/lo"
	gokeyring "github.com/zalando/go-keyring"

	"github.com/m96-chan/chatly/internal/chat"
	"github.com/m96-chan/chatly/internal/config"
	"github.com/m96-chan/chatly/internal/frappe"
	"github.com/m96-chan/chatly/internal/keyring"
	"github.com/m96-chan/chatly/internal/notifications"
	slackclient "github.com/m96-chan/chatly/internal/slack"
)

// ErrNotLoggedIn is returned when no credentials are stored for the
// configured backend.
var ErrNotLoggedIn = errors.New("not logged in")

// Backend is a chat backend that also streams push events.
type Backend interface {
	chat.Backend
	chat.EventSource
}

// App is the top-level application struct.
type App struct {
	Config  *config.Config
	Backend Backend
	Session *chat.Session
}

// New resolves credentials for the configured backend, connects to it and
// creates an inactive session.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	backend, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithBackend(cfg, backend), nil
}

// NewWithBackend creates an App around an already connected backend.
func NewWithBackend(cfg *config.Config, backend Backend) *App {
	var notifier chat.Notifier = notifications.Discard{}
	if cfg.Notifications.Enabled {
		notifier = notifications.New()
	}

	session := chat.NewSession(backend, backend, notifier, SessionOptions(cfg))
	slog.Info("session created", "session", session.ID, "backend", cfg.Backend.Kind)

	return &App{Config: cfg, Backend: backend, Session: session}
}

// SessionOptions maps configuration onto session options.
func SessionOptions(cfg *config.Config) chat.Options {
	return chat.Options{
		FetchTimeout:  cfg.Fetch.Timeout,
		UserCacheSize: cfg.Users.CacheSize,
		UserCacheTTL:  cfg.Users.CacheTTL,
		BufferLimit:   cfg.Unread.BufferLimit,
		DedupeWindow:  cfg.Unread.DedupeWindow,
		Logger:        slog.Default(),
	}
}

// Connect builds the backend selected by cfg.Backend.Kind.
func Connect(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.Backend.Kind {
	case "slack":
		return connectSlack(ctx, cfg)
	default:
		return connectFrappe(cfg)
	}
}

func connectFrappe(cfg *config.Config) (Backend, error) {
	site, token, err := ResolveFrappe(cfg)
	if err != nil {
		return nil, err
	}
	client, err := frappe.New(site.URL, token, frappe.WithLogger(slog.Default()))
	if err != nil {
		return nil, err
	}
	client.HideArchived = cfg.Backend.HideArchived
	if cfg.Backend.Site != "" {
		client.Site = cfg.Backend.Site
	}
	slog.Info("using frappe site", "url", site.URL, "site", client.Site)
	return client, nil
}

// ResolveFrappe finds the site URL and token to use. The configured URL wins;
// otherwise a stored login is used when there is exactly one, or when one
// matches backend.site. The CHATLY_TOKEN variable overrides stored tokens.
func ResolveFrappe(cfg *config.Config) (keyring.Site, string, error) {
	sites, err := keyring.ListSites()
	if err != nil {
		slog.Warn("failed to read site registry", "error", err)
	}
	frappeSites := lo.Filter(sites, func(s keyring.Site, _ int) bool { return s.Kind == "frappe" })

	var site keyring.Site
	var stored bool
	switch {
	case cfg.Backend.URL != "":
		id := hostOf(cfg.Backend.URL)
		site, stored = lo.Find(frappeSites, func(s keyring.Site) bool { return s.ID == id })
		site.ID, site.Kind, site.URL = id, "frappe", cfg.Backend.URL
	case cfg.Backend.Site != "":
		site, stored = lo.Find(frappeSites, func(s keyring.Site) bool { return s.ID == cfg.Backend.Site })
	case len(frappeSites) == 1:
		site, stored = frappeSites[0], true
	}
	if site.URL == "" {
		return keyring.Site{}, "", fmt.Errorf("%w: no frappe site configured; set backend.url or run login", ErrNotLoggedIn)
	}

	if token, err := keyring.FrappeToken.Get(); err == nil {
		return site, token, nil
	} else if !errors.Is(err, gokeyring.ErrNotFound) {
		slog.Warn("error reading token", "error", err)
	}
	if stored {
		tokens, err := keyring.GetSiteTokens(site)
		if err == nil {
			return site, tokens.Token, nil
		}
		slog.Warn("error reading site token", "site", site.ID, "error", err)
	}
	return keyring.Site{}, "", fmt.Errorf("%w: no token for %s", ErrNotLoggedIn, site.ID)
}

func connectSlack(ctx context.Context, cfg *config.Config) (Backend, error) {
	user, app, err := ResolveSlack(cfg)
	if err != nil {
		return nil, err
	}
	client, err := slackclient.New(ctx, user, app)
	if err != nil {
		return nil, err
	}
	client.HideArchived = cfg.Backend.HideArchived
	slog.Info("connected to slack", "team", client.TeamName, "user", client.UserName)
	return client, nil
}

// ResolveSlack returns the user and app tokens for the Slack backend, from
// the environment, the keyring, or the stored workspace named by
// backend.site.
func ResolveSlack(cfg *config.Config) (userToken, appToken string, err error) {
	user, userErr := keyring.SlackUserToken.Get()
	app, appErr := keyring.SlackAppToken.Get()
	if userErr == nil && appErr == nil {
		return user, app, nil
	}

	sites, _ := keyring.ListSites()
	slackSites := lo.Filter(sites, func(s keyring.Site, _ int) bool { return s.Kind == "slack" })
	site, ok := lo.Find(slackSites, func(s keyring.Site) bool { return s.ID == cfg.Backend.Site })
	if !ok && len(slackSites) == 1 {
		site, ok = slackSites[0], true
	}
	if ok {
		tokens, err := keyring.GetSiteTokens(site)
		if err == nil {
			return tokens.Token, tokens.AppToken, nil
		}
		slog.Warn("error reading workspace tokens", "workspace", site.ID, "error", err)
	}
	return "", "", fmt.Errorf("%w: set %s and %s or run login", ErrNotLoggedIn,
		keyring.SlackUserToken.Env(), keyring.SlackAppToken.Env())
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}

// WaitLoaded activates the session and blocks until the channel directory
// and unread counts have loaded, or the load failed.
func (a *App) WaitLoaded(ctx context.Context) (chat.Snapshot, error) {
	done := make(chan error, 1)
	unsubscribe := a.Session.OnRefresh(func(err error) {
		select {
		case done <- err:
		default:
		}
	})
	defer unsubscribe()

	a.Session.Activate(ctx)
	if a.Session.Ready() {
		return a.Session.Directory().Snapshot(), nil
	}
	if snap := a.Session.Directory().Snapshot(); snap.Err != nil && !snap.Loading {
		return snap, snap.Err
	}

	select {
	case err := <-done:
		return a.Session.Directory().Snapshot(), err
	case <-ctx.Done():
		return chat.Snapshot{}, ctx.Err()
	}
}

// Close stops the session's background work.
func (a *App) Close() {
	a.Session.Close()
}
