package slack

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/m96-chan/chatly/internal/chat"
)

// EventHandler holds typed callback fields, one per event kind the chat
// state reacts to. Nil callbacks are silently skipped.
type EventHandler struct {
	OnMessage             func(*slackevents.MessageEvent)
	OnChannelCreated      func(*slackevents.ChannelCreatedEvent)
	OnChannelArchive      func(*slackevents.ChannelArchiveEvent)
	OnChannelUnarchive    func(*slackevents.ChannelUnarchiveEvent)
	OnChannelRename       func(*slackevents.ChannelRenameEvent)
	OnMemberJoinedChannel func(*slackevents.MemberJoinedChannelEvent)
	OnMemberLeftChannel   func(*slackevents.MemberLeftChannelEvent)
	OnConnected           func()
	OnDisconnected        func()
	OnError               func(error)
}

// Subscribe runs a Socket Mode session and translates Slack events into
// chat events until ctx is cancelled or a fatal error occurs.
func (c *Client) Subscribe(ctx context.Context, handler func(chat.Event)) error {
	return c.RunSocketMode(ctx, c.translate(handler))
}

// RunSocketMode creates a socketmode.Client, registers event handlers from
// the provided EventHandler, and runs the event loop. It blocks until ctx
// is cancelled or a fatal error occurs.
func (c *Client) RunSocketMode(ctx context.Context, handler *EventHandler) error {
	smClient := socketmode.New(c.api)
	smHandler := socketmode.NewSocketmodeHandler(smClient)

	registerEventHandlers(smHandler, handler)
	registerLifecycleHandlers(smHandler, handler)

	return smHandler.RunEventLoopContext(ctx)
}

// translate maps Slack callbacks onto chat events. A new message is one
// unread in its channel; its channel:ts pair de-duplicates redeliveries.
// Conversation lifecycle changes ask for a directory refresh.
func (c *Client) translate(emit func(chat.Event)) *EventHandler {
	changed := func() { emit(chat.Event{Kind: chat.EventDirectoryChanged}) }
	return &EventHandler{
		OnMessage: func(evt *slackevents.MessageEvent) {
			if evt.User == "" || evt.User == c.UserID || evt.BotID != "" {
				return
			}
			// Thread replies do not count towards the channel badge.
			if evt.ThreadTimeStamp != "" && evt.ThreadTimeStamp != evt.TimeStamp {
				return
			}
			out := chat.DeltaEvent(evt.Channel, 1)
			out.ID = evt.Channel + ":" + evt.TimeStamp
			out.SentBy = evt.User
			out.PlaySound = evt.ChannelType == "im" || c.isIM(evt.Channel)
			emit(out)
		},
		OnChannelCreated:   func(*slackevents.ChannelCreatedEvent) { changed() },
		OnChannelArchive:   func(*slackevents.ChannelArchiveEvent) { changed() },
		OnChannelUnarchive: func(*slackevents.ChannelUnarchiveEvent) { changed() },
		OnChannelRename:    func(*slackevents.ChannelRenameEvent) { changed() },
		OnMemberJoinedChannel: func(evt *slackevents.MemberJoinedChannelEvent) {
			if evt.User == c.UserID {
				changed()
			}
		},
		OnMemberLeftChannel: func(evt *slackevents.MemberLeftChannelEvent) {
			if evt.User == c.UserID {
				changed()
			}
		},
		OnError: func(err error) {
			slog.Warn("socket mode error", "error", err)
		},
	}
}

// registerEventHandlers wires Events API event types to the appropriate
// EventHandler callbacks.
func registerEventHandlers(smHandler *socketmode.SocketmodeHandler, handler *EventHandler) {
	smHandler.HandleEvents(slackevents.Message, func(evt *socketmode.Event, client *socketmode.Client) {
		client.Ack(*evt.Request)

		apiEvt, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		msg, ok := apiEvt.InnerEvent.Data.(*slackevents.MessageEvent)
		if !ok {
			return
		}
		dispatchMessage(handler, msg)
	})

	registerTypedHandler(smHandler, slackevents.ChannelCreated, handler.OnChannelCreated)
	registerTypedHandler(smHandler, slackevents.ChannelArchive, handler.OnChannelArchive)
	registerTypedHandler(smHandler, slackevents.ChannelUnarchive, handler.OnChannelUnarchive)
	registerTypedHandler(smHandler, slackevents.ChannelRename, handler.OnChannelRename)
	registerTypedHandler(smHandler, slackevents.MemberJoinedChannel, handler.OnMemberJoinedChannel)
	registerTypedHandler(smHandler, slackevents.MemberLeftChannel, handler.OnMemberLeftChannel)
}

// dispatchMessage forwards plain messages only; edits and deletions do not
// change unread state.
func dispatchMessage(handler *EventHandler, msg *slackevents.MessageEvent) {
	switch msg.SubType {
	case "", "thread_broadcast", "file_share", "me_message":
		if handler.OnMessage != nil {
			handler.OnMessage(msg)
		}
	}
}

// registerTypedHandler is a generic helper that registers a HandleEvents callback
// which extracts the inner event, type-asserts it, and calls the provided callback.
func registerTypedHandler[T any](smHandler *socketmode.SocketmodeHandler, eventType slackevents.EventsAPIType, callback func(*T)) {
	smHandler.HandleEvents(eventType, func(evt *socketmode.Event, client *socketmode.Client) {
		client.Ack(*evt.Request)

		apiEvt, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		dispatchTyped(eventType, apiEvt.InnerEvent.Data, callback)
	})
}

func dispatchTyped[T any](eventType slackevents.EventsAPIType, data any, callback func(*T)) {
	inner, ok := data.(*T)
	if !ok {
		slog.Warn("unexpected inner event type",
			"event_type", eventType,
			"data_type", fmt.Sprintf("%T", data))
		return
	}
	if callback != nil {
		callback(inner)
	}
}

// registerLifecycleHandlers wires socketmode-level connection events to the
// appropriate EventHandler callbacks.
func registerLifecycleHandlers(smHandler *socketmode.SocketmodeHandler, handler *EventHandler) {
	smHandler.Handle(socketmode.EventTypeConnected, func(*socketmode.Event, *socketmode.Client) {
		slog.Info("socket mode connected")
		if handler.OnConnected != nil {
			handler.OnConnected()
		}
	})

	smHandler.Handle(socketmode.EventTypeDisconnect, func(*socketmode.Event, *socketmode.Client) {
		slog.Warn("socket mode disconnected")
		if handler.OnDisconnected != nil {
			handler.OnDisconnected()
		}
	})

	smHandler.Handle(socketmode.EventTypeConnectionError, func(evt *socketmode.Event, _ *socketmode.Client) {
		reportError(handler, "connection error", evt.Data)
	})

	smHandler.Handle(socketmode.EventTypeIncomingError, func(evt *socketmode.Event, _ *socketmode.Client) {
		reportError(handler, "incoming error", evt.Data)
	})

	smHandler.Handle(socketmode.EventTypeInvalidAuth, func(*socketmode.Event, *socketmode.Client) {
		slog.Error("socket mode invalid auth")
		if handler.OnError != nil {
			handler.OnError(fmt.Errorf("socket mode: invalid auth"))
		}
	})
}

func reportError(handler *EventHandler, what string, data any) {
	if handler.OnError == nil {
		return
	}
	if err, ok := data.(error); ok {
		handler.OnError(err)
		return
	}
	handler.OnError(fmt.Errorf("socket mode %s: %v", what, data))
}
