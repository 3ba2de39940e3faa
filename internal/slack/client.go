package slack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/slack-go/slack"

	"github.com/m96-chan/chatly/internal/chat"
)

// Client adapts a Slack workspace to the chat backend interfaces. Calls are
// retried once after a rate-limit response.
type Client struct {
	api      *slack.Client
	token    string
	UserID   string
	TeamID   string
	TeamName string
	UserName string

	// HideArchived excludes archived conversations from listings.
	HideArchived bool

	mu     sync.Mutex
	unread map[string]int
	ims    map[string]bool
}

// New creates a Client, validates the tokens via AuthTest, and populates
// the identity fields.
func New(ctx context.Context, userToken, appToken string, options ...slack.Option) (*Client, error) {
	if !strings.HasPrefix(appToken, "xapp-") {
		return nil, fmt.Errorf("app token must start with xapp- (got %s...)", safePrefix(appToken))
	}

	options = append([]slack.Option{slack.OptionAppLevelToken(appToken)}, options...)
	api := slack.New(userToken, options...)

	var resp *slack.AuthTestResponse
	err := retryOnRateLimit(ctx, func() error {
		var e error
		resp, e = api.AuthTestContext(ctx)
		return e
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		api:          api,
		token:        userToken,
		UserID:       resp.UserID,
		TeamID:       resp.TeamID,
		TeamName:     resp.Team,
		UserName:     resp.User,
		HideArchived: true,
		unread:       make(map[string]int),
		ims:          make(map[string]bool),
	}, nil
}

// API returns the underlying slack.Client for direct access (e.g. socketmode).
func (c *Client) API() *slack.Client { return c.api }

// retryOnRateLimit executes fn and, if a RateLimitedError is returned,
// waits for the requested duration and retries once.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}

	var rle *slack.RateLimitedError
	if errors.As(err, &rle) {
		slog.Warn("rate limited, retrying", "retry_after", rle.RetryAfter)
		select {
		case <-time.After(rle.RetryAfter):
		case <-ctx.Done():
			return ctx.Err()
		}
		return fn()
	}
	return err
}

// ListChannels returns every conversation visible to the user, paging
// through conversations.list. IMs become direct channels with the other
// party as peer; everything else, group DMs included, is a group channel.
func (c *Client) ListChannels(ctx context.Context) ([]chat.Channel, error) {
	var all []slack.Channel
	params := &slack.GetConversationsParameters{
		Types:           []string{"public_channel", "private_channel", "mpim", "im"},
		Limit:           200,
		ExcludeArchived: c.HideArchived,
	}

	for {
		var (
			channels []slack.Channel
			cursor   string
		)
		err := retryOnRateLimit(ctx, func() error {
			var e error
			channels, cursor, e = c.api.GetConversationsContext(ctx, params)
			return e
		})
		if err != nil {
			return nil, fmt.Errorf("listing conversations: %w", err)
		}
		all = append(all, channels...)
		if cursor == "" {
			break
		}
		params.Cursor = cursor
	}

	unread := make(map[string]int)
	ims := make(map[string]bool)
	for _, ch := range all {
		if ch.UnreadCountDisplay > 0 {
			unread[ch.ID] = ch.UnreadCountDisplay
		}
		if ch.IsIM {
			ims[ch.ID] = true
		}
	}
	c.mu.Lock()
	c.unread = unread
	c.ims = ims
	c.mu.Unlock()

	return lo.Map(all, func(ch slack.Channel, _ int) chat.Channel {
		return toChannel(ch)
	}), nil
}

func toChannel(ch slack.Channel) chat.Channel {
	out := chat.Channel{
		ID:       ch.ID,
		Name:     ch.Name,
		Kind:     chat.KindGroup,
		Type:     "Public",
		Archived: ch.IsArchived,
	}
	if ch.IsPrivate || ch.IsMpIM {
		out.Type = "Private"
	}
	if ch.IsIM {
		out.Kind = chat.KindDirect
		out.PeerUserID = ch.User
		out.Type = "Private"
		if out.Name == "" {
			out.Name = ch.User
		}
	}
	if ts := ch.LastRead; ts != "" {
		out.LastMessageAt = parseTS(ts)
	}
	return out
}

// UnreadCounts returns the unread counts reported with the last listing.
func (c *Client) UnreadCounts(context.Context) (map[string]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.unread))
	for id, n := range c.unread {
		out[id] = n
	}
	return out, nil
}

// isIM reports whether channelID was listed as an IM.
func (c *Client) isIM(channelID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ims[channelID]
}

// MarkRead moves the read cursor of a conversation to now.
func (c *Client) MarkRead(ctx context.Context, channelID string) error {
	ts := formatTS(time.Now())
	return retryOnRateLimit(ctx, func() error {
		return c.api.MarkConversationContext(ctx, channelID, ts)
	})
}

// GetUser returns a single workspace member.
func (c *Client) GetUser(ctx context.Context, id string) (chat.User, error) {
	var user *slack.User
	err := retryOnRateLimit(ctx, func() error {
		var e error
		user, e = c.api.GetUserInfoContext(ctx, id)
		return e
	})
	if err != nil {
		return chat.User{}, err
	}
	return toUser(*user), nil
}

// ListUsers returns every member of the workspace.
func (c *Client) ListUsers(ctx context.Context) ([]chat.User, error) {
	var users []slack.User
	err := retryOnRateLimit(ctx, func() error {
		var e error
		users, e = c.api.GetUsersContext(ctx)
		return e
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(users, func(u slack.User, _ int) chat.User { return toUser(u) }), nil
}

func toUser(u slack.User) chat.User {
	name := u.RealName
	if name == "" {
		name = u.Profile.DisplayName
	}
	if name == "" {
		name = u.Name
	}
	typ := "User"
	if u.IsBot {
		typ = "Bot"
	}
	return chat.User{
		ID:       u.ID,
		FullName: name,
		Image:    u.Profile.Image72,
		Enabled:  !u.Deleted,
		Type:     typ,
	}
}

// safePrefix returns the first 10 characters of a token for error messages.
func safePrefix(token string) string {
	if len(token) <= 10 {
		return token
	}
	return token[:10]
}
