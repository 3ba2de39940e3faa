package frappe

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/m96-chan/chatly/internal/chat"
)

// ListChannels returns the channels and direct messages the current user can
// see, groups first, each in server order (most recent activity first).
func (c *Client) ListChannels(ctx context.Context) ([]chat.Channel, error) {
	params := url.Values{"hide_archived": {strconv.FormatBool(c.HideArchived)}}
	var list channelList
	if err := c.call(ctx, http.MethodGet, methodListChannels, params, &list); err != nil {
		return nil, err
	}

	records := append(list.Channels, list.DMChannels...)
	return lo.Map(records, func(r channelRecord, _ int) chat.Channel {
		return r.toChannel()
	}), nil
}

func (r channelRecord) toChannel() chat.Channel {
	ch := chat.Channel{
		ID:            r.Name,
		Name:          r.ChannelName,
		Kind:          chat.KindGroup,
		Type:          r.Type,
		Archived:      bool(r.IsArchived),
		LastMessageAt: time.Time(r.LastMessageAt),
	}
	if ch.Name == "" {
		ch.Name = r.Name
	}
	if r.IsDirectMessage {
		ch.Kind = chat.KindDirect
		ch.PeerUserID = lo.FromPtr(r.PeerUserID)
	}
	return ch
}

// Unread returns per-channel unread counts and their totals.
func (c *Client) Unread(ctx context.Context) (UnreadSummary, error) {
	var summary UnreadSummary
	err := c.call(ctx, http.MethodGet, methodUnreadCounts, nil, &summary)
	return summary, err
}

// UnreadCounts returns absolute unread counts keyed by channel id.
func (c *Client) UnreadCounts(ctx context.Context) (map[string]int, error) {
	summary, err := c.Unread(ctx)
	if err != nil {
		return nil, err
	}
	return lo.SliceToMap(summary.Channels, func(r unreadRecord) (string, int) {
		return r.Name, r.UnreadCount
	}), nil
}

// UnreadCount returns the unread count of a single channel.
func (c *Client) UnreadCount(ctx context.Context, channelID string) (int, error) {
	var n int
	err := c.call(ctx, http.MethodGet, methodUnreadCount, url.Values{"channel_id": {channelID}}, &n)
	return n, err
}

// MarkRead records a visit to the channel, which resets its unread count on
// the server.
func (c *Client) MarkRead(ctx context.Context, channelID string) error {
	return c.call(ctx, http.MethodPost, methodTrackVisit, url.Values{"channel_id": {channelID}}, nil)
}

// GetUser fetches a Chatly User document.
func (c *Client) GetUser(ctx context.Context, id string) (chat.User, error) {
	var rec userRecord
	if err := c.resource(ctx, doctypeChatlyUser, id, &rec); err != nil {
		return chat.User{}, err
	}
	return rec.toUser(), nil
}

// ListUsers returns every Chatly user.
func (c *Client) ListUsers(ctx context.Context) ([]chat.User, error) {
	var recs []userRecord
	if err := c.call(ctx, http.MethodGet, methodListUsers, nil, &recs); err != nil {
		return nil, err
	}
	return lo.Map(recs, func(r userRecord, _ int) chat.User { return r.toUser() }), nil
}

// Identity is the logged-in Chatly user.
type Identity struct {
	ID       string // Chatly User name
	User     string // Frappe user, e.g. an email address
	FullName string
}

// CurrentUser returns the Chatly profile of the token's owner. It fails with
// a permission error when the user lacks the Chatly User role.
func (c *Client) CurrentUser(ctx context.Context) (Identity, error) {
	var rec userRecord
	if err := c.call(ctx, http.MethodGet, methodCurrentUser, nil, &rec); err != nil {
		return Identity{}, err
	}
	return Identity{ID: rec.Name, User: rec.User, FullName: rec.FullName}, nil
}

func (r userRecord) toUser() chat.User {
	name := r.FullName
	if name == "" {
		name = r.FirstName
	}
	return chat.User{
		ID:       r.Name,
		FullName: name,
		Image:    r.UserImage,
		Enabled:  bool(r.Enabled),
		Type:     r.Type,
	}
}
