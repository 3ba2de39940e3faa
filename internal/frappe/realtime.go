package frappe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/m96-chan/chatly/internal/chat"
)

const (
	eventUnreadUpdated = "chatly:unread_channel_count_updated"

	minReconnectDelay = time.Second
	maxReconnectDelay = 30 * time.Second
	eventQueueSize    = 64
)

// ErrAuth is returned by Subscribe when the realtime server refuses the
// connection.
var ErrAuth = errors.New("frappe realtime: connection refused")

type unreadPayload struct {
	ChannelID string `json:"channel_id"`
	PlaySound bool   `json:"play_sound"`
	SentBy    string `json:"sent_by"`
}

// Subscribe streams realtime events until ctx is cancelled. Unread
// notifications are turned into absolute events by re-reading the channel's
// count, so redelivered or reordered notifications are harmless. Dropped
// connections are re-established with backoff; an auth refusal is fatal.
func (c *Client) Subscribe(ctx context.Context, handler func(chat.Event)) error {
	queue := make(chan unreadPayload, eventQueueSize)
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.resolveUnread(ctx, queue, handler)
	}()
	defer func() {
		close(queue)
		<-done
	}()

	delay := minReconnectDelay
	for {
		connected, err := c.stream(ctx, queue)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrAuth) {
			return err
		}
		if connected {
			delay = minReconnectDelay
		}
		c.log.Warn("realtime connection lost, reconnecting", "error", err, "delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

// resolveUnread turns queued notifications into events, one at a time so
// that per-channel order is kept.
func (c *Client) resolveUnread(ctx context.Context, queue <-chan unreadPayload, handler func(chat.Event)) {
	for p := range queue {
		n, err := c.UnreadCount(ctx, p.ChannelID)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.log.Warn("failed to read unread count", "channel", p.ChannelID, "error", err)
			// A visit from another session carries no sender and always
			// means zero; otherwise let the next listing correct the count.
			if p.SentBy != "" {
				continue
			}
			n = 0
		}
		evt := chat.AbsoluteEvent(p.ChannelID, n)
		evt.PlaySound = p.PlaySound
		evt.SentBy = p.SentBy
		handler(evt)
	}
}

// realtimeURL returns the websocket endpoint of the site's Socket.IO server.
func (c *Client) realtimeURL() string {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/socket.io/"
	u.RawQuery = url.Values{"EIO": {"4"}, "transport": {"websocket"}}.Encode()
	return u.String()
}

func (c *Client) namespace() string {
	return "/" + c.Site
}

// stream runs one connection until it fails. connected reports whether the
// namespace was joined.
func (c *Client) stream(ctx context.Context, queue chan<- unreadPayload) (connected bool, err error) {
	header := http.Header{}
	header.Set("Authorization", "token "+c.token)
	header.Set("Origin", c.base.Scheme+"://"+c.base.Host)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.realtimeURL(), header)
	if err != nil {
		return false, fmt.Errorf("dialing realtime server: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	ns := c.namespace()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return connected, err
		}
		p, err := parsePacket(string(data))
		if err != nil {
			c.log.Debug("ignoring malformed realtime frame", "error", err)
			continue
		}

		switch p.eio {
		case eioOpen:
			if err := conn.WriteMessage(websocket.TextMessage, []byte(connectFrame(ns))); err != nil {
				return connected, err
			}
		case eioPing:
			if err := conn.WriteMessage(websocket.TextMessage, []byte{eioPong}); err != nil {
				return connected, err
			}
		case eioClose:
			return connected, errors.New("server closed the connection")
		case eioMessage:
			if p.namespace != ns {
				continue
			}
			switch p.sio {
			case sioConnect:
				connected = true
				c.log.Info("realtime connected", "namespace", ns)
			case sioConnectError:
				return connected, fmt.Errorf("%w: %s", ErrAuth, connectErrorMessage(p.data))
			case sioDisconnect:
				return connected, errors.New("server disconnected the namespace")
			case sioEvent:
				c.dispatch(ctx, p, queue)
			}
		}
	}
}

func (c *Client) dispatch(ctx context.Context, p packet, queue chan<- unreadPayload) {
	name, data, err := p.event()
	if err != nil {
		c.log.Debug("ignoring malformed realtime event", "error", err)
		return
	}
	if name != eventUnreadUpdated {
		return
	}

	var payload unreadPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ChannelID == "" {
		c.log.Debug("ignoring unread event without channel", "data", string(data))
		return
	}
	select {
	case queue <- payload:
	case <-ctx.Done():
	}
}
