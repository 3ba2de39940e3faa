// Package oauth obtains a Slack user token through the OAuth v2 flow with a
// loopback redirect.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/slack-go/slack"
)

// UserScopes are the user scopes needed to list conversations, read unread
// state, mark conversations read and resolve DM peers.
var UserScopes = []string{
	"channels:read", "channels:write",
	"groups:read", "groups:write",
	"im:read", "im:write",
	"mpim:read", "mpim:write",
	"users:read",
}

// AuthorizeURL is Slack's OAuth v2 authorization endpoint.
var AuthorizeURL = "https://slack.com/oauth/v2/authorize"

// ErrStateMismatch is returned when the callback state does not match the
// one sent with the authorization request.
var ErrStateMismatch = errors.New("oauth: state mismatch")

// Result holds the token and identity returned by the flow.
type Result struct {
	UserToken string
	TeamID    string
	TeamName  string
	UserID    string
}

// ExchangeFunc trades an authorization code for a token.
type ExchangeFunc func(ctx context.Context, code, redirectURI string) (*Result, error)

// Params configures the flow.
type Params struct {
	ClientID     string
	ClientSecret string
	Timeout      time.Duration

	// OpenBrowser opens the authorization URL. When it fails the URL is
	// logged and returned through Prompt.
	OpenBrowser func(string) error
	// Prompt is called with the URL when no browser could be opened.
	Prompt func(string)
	// Exchange defaults to oauth.v2.access with ClientID and ClientSecret.
	Exchange ExchangeFunc
}

type callback struct {
	result *Result
	err    error
}

// Run listens on a random loopback port, sends the user to Slack and waits
// for the redirect carrying the authorization code.
func Run(ctx context.Context, p Params) (*Result, error) {
	if p.ClientID == "" {
		return nil, errors.New("oauth: client id is required")
	}
	exchange := p.Exchange
	if exchange == nil {
		if p.ClientSecret == "" {
			return nil, errors.New("oauth: client secret is required")
		}
		exchange = slackExchange(p.ClientID, p.ClientSecret)
	}
	openBrowser := p.OpenBrowser
	if openBrowser == nil {
		openBrowser = defaultOpenBrowser
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("oauth: listen: %w", err)
	}
	defer ln.Close()

	state, err := newState()
	if err != nil {
		return nil, fmt.Errorf("oauth: state: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	redirectURI := fmt.Sprintf("http://localhost:%d/callback", ln.Addr().(*net.TCPAddr).Port)
	done := make(chan callback, 1)

	mux := http.NewServeMux()
	mux.Handle("/callback", callbackHandler(ctx, state, redirectURI, exchange, done))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		_ = server.Serve(ln)
	}()
	defer func() {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
		defer stop()
		_ = server.Shutdown(shutdownCtx)
	}()

	authURL := buildAuthURL(p.ClientID, redirectURI, state)
	if err := openBrowser(authURL); err != nil {
		slog.Warn("could not open browser", "error", err)
		if p.Prompt != nil {
			p.Prompt(authURL)
		}
	}

	select {
	case res := <-done:
		return res.result, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("oauth: waiting for authorization: %w", ctx.Err())
	}
}

// callbackHandler accepts the first redirect and reports its outcome on done.
// Later requests are answered but not reported.
func callbackHandler(ctx context.Context, state, redirectURI string, exchange ExchangeFunc, done chan<- callback) http.HandlerFunc {
	report := func(c callback) {
		select {
		case done <- c:
		default:
		}
	}
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if msg := q.Get("error"); msg != "" {
			report(callback{err: fmt.Errorf("oauth: authorization denied: %s", msg)})
			page(w, http.StatusOK, "Authorization denied.", "You can close this window.")
			return
		}
		if q.Get("state") != state {
			report(callback{err: ErrStateMismatch})
			page(w, http.StatusBadRequest, "Authorization failed.", "State mismatch.")
			return
		}
		code := q.Get("code")
		if code == "" {
			report(callback{err: errors.New("oauth: no code in callback")})
			page(w, http.StatusBadRequest, "Authorization failed.", "Missing code.")
			return
		}

		result, err := exchange(ctx, code, redirectURI)
		report(callback{result: result, err: err})
		if err != nil {
			page(w, http.StatusBadGateway, "Authorization failed.", err.Error())
			return
		}
		page(w, http.StatusOK, "Logged in.", "You can close this window and return to the terminal.")
	}
}

func page(w http.ResponseWriter, status int, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, "<html><body><h2>%s</h2><p>%s</p></body></html>", html.EscapeString(title), html.EscapeString(body))
}

func slackExchange(clientID, clientSecret string) ExchangeFunc {
	return func(ctx context.Context, code, redirectURI string) (*Result, error) {
		resp, err := slack.GetOAuthV2ResponseContext(ctx, http.DefaultClient, clientID, clientSecret, code, redirectURI)
		if err != nil {
			return nil, fmt.Errorf("oauth: token exchange: %w", err)
		}
		if resp.AuthedUser.AccessToken == "" {
			return nil, errors.New("oauth: no user token in response")
		}
		return &Result{
			UserToken: resp.AuthedUser.AccessToken,
			TeamID:    resp.Team.ID,
			TeamName:  resp.Team.Name,
			UserID:    resp.AuthedUser.ID,
		}, nil
	}
}

func newState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func buildAuthURL(clientID, redirectURI, state string) string {
	params := url.Values{
		"client_id":    {clientID},
		"user_scope":   {strings.Join(UserScopes, ",")},
		"redirect_uri": {redirectURI},
		"state":        {state},
	}
	return AuthorizeURL + "?" + params.Encode()
}

func defaultOpenBrowser(rawURL string) error {
	if !strings.HasPrefix(rawURL, "https://") && !strings.HasPrefix(rawURL, "http://") {
		return fmt.Errorf("refusing to open non-HTTP URL")
	}

	var args []string
	switch runtime.GOOS {
	case "darwin":
		args = []string{"open", rawURL}
	case "windows":
		args = []string{"rundll32", "url.dll,FileProtocolHandler", rawURL}
	default:
		args = []string{"xdg-open", rawURL}
	}
	return exec.Command(args[0], args[1:]...).Start()
}
