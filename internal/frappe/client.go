// Package frappe adapts a Frappe site running the Chatly app to the chat
// backend interfaces: REST calls for listings, counts and users, and the
// Socket.IO realtime stream for push events.
package frappe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	methodListChannels  = "chatly.api.chatly_channel.get_all_channels"
	methodUnreadCounts  = "chatly.api.chatly_message.get_unread_count_for_channels"
	methodUnreadCount   = "chatly.api.chatly_message.get_unread_count_for_channel"
	methodTrackVisit    = "chatly.api.chatly_channel_member.track_visit"
	methodListUsers     = "chatly.api.chatly_users.get_list"
	methodCurrentUser   = "chatly.api.chatly_users.get_current_chatly_user"
	doctypeChatlyUser   = "Chatly User"
	defaultRequestRate  = 10
	defaultRequestBurst = 5
)

// APIError is a non-2xx response from the site.
type APIError struct {
	StatusCode int
	ExcType    string
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.ExcType != "" {
		return fmt.Sprintf("frappe: %d %s: %s", e.StatusCode, e.ExcType, msg)
	}
	return fmt.Sprintf("frappe: %d: %s", e.StatusCode, msg)
}

// RateLimitedError is returned for 429 responses.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("frappe: rate limited, retry after %s", e.RetryAfter)
}

// Client talks to one Frappe site.
type Client struct {
	base    *url.URL
	token   string
	http    *http.Client
	limiter *rate.Limiter
	log     *slog.Logger

	// HideArchived excludes archived channels from listings.
	HideArchived bool
	// Site is the Frappe site name, used as the realtime namespace.
	Site string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit bounds the request rate sent to the site.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New creates a client for the site at baseURL. token is "api_key:api_secret".
func New(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing site url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("site url must be http or https, got %q", baseURL)
	}
	if !strings.Contains(token, ":") {
		return nil, errors.New("token must have the form api_key:api_secret")
	}

	c := &Client{
		base:         u,
		token:        token,
		http:         &http.Client{Timeout: 30 * time.Second},
		limiter:      rate.NewLimiter(defaultRequestRate, defaultRequestBurst),
		log:          slog.Default(),
		HideArchived: true,
		Site:         u.Hostname(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the site URL.
func (c *Client) BaseURL() string { return c.base.String() }

// retryOnRateLimit executes fn and, if a RateLimitedError is returned,
// waits for the requested duration and retries once.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}

	var rle *RateLimitedError
	if errors.As(err, &rle) {
		select {
		case <-time.After(rle.RetryAfter):
		case <-ctx.Done():
			return ctx.Err()
		}
		return fn()
	}
	return err
}

// call invokes a whitelisted method and decodes the "message" field of the
// response into out.
func (c *Client) call(ctx context.Context, httpMethod, method string, params url.Values, out any) error {
	var envelope struct {
		Message json.RawMessage `json:"message"`
	}
	err := retryOnRateLimit(ctx, func() error {
		return c.do(ctx, httpMethod, "/api/method/"+method, params, &envelope)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if out == nil || len(envelope.Message) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Message, out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", method, err)
	}
	return nil
}

// resource fetches one document through the REST resource API.
func (c *Client) resource(ctx context.Context, doctype, name string, out any) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	path := "/api/resource/" + url.PathEscape(doctype) + "/" + url.PathEscape(name)
	err := retryOnRateLimit(ctx, func() error {
		return c.do(ctx, http.MethodGet, path, nil, &envelope)
	})
	if err != nil {
		return fmt.Errorf("%s %s: %w", doctype, name, err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("%s %s: decoding response: %w", doctype, name, err)
	}
	return nil
}

// do sends one request. path must already be escaped.
func (c *Client) do(ctx context.Context, httpMethod, path string, params url.Values, out any) error {
	err := c.limiter.Wait(ctx)
	if err != nil {
		return err
	}

	u := *c.base
	u.RawPath = strings.TrimRight(c.base.EscapedPath(), "/") + path
	u.Path, err = url.PathUnescape(u.RawPath)
	if err != nil {
		return err
	}

	var body io.Reader
	switch httpMethod {
	case http.MethodGet:
		u.RawQuery = params.Encode()
	default:
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, httpMethod, u.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "token "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		secs, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return &RateLimitedError{RetryAfter: time.Duration(secs) * time.Second}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// decodeError builds an APIError from a Frappe error response body.
func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body struct {
		ExcType        string `json:"exc_type"`
		Exception      string `json:"exception"`
		Message        string `json:"message"`
		ServerMessages string `json:"_server_messages"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if json.Unmarshal(data, &body) != nil {
		return apiErr
	}
	apiErr.ExcType = body.ExcType
	switch {
	case body.ServerMessages != "":
		apiErr.Message = serverMessage(body.ServerMessages)
	case body.Exception != "":
		apiErr.Message = body.Exception
	default:
		apiErr.Message = body.Message
	}
	return apiErr
}

// serverMessage extracts the first message from Frappe's doubly encoded
// _server_messages field.
func serverMessage(raw string) string {
	var msgs []string
	if json.Unmarshal([]byte(raw), &msgs) != nil || len(msgs) == 0 {
		return raw
	}
	var msg struct {
		Message string `json:"message"`
	}
	if json.Unmarshal([]byte(msgs[0]), &msg) != nil || msg.Message == "" {
		return msgs[0]
	}
	return msg.Message
}
