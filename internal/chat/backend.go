package chat

import "context"

//go:generate mockgen -destination=mocks/backend.go -package=mocks github.com/m96-chan/chatly/internal/chat Backend,EventSource,Notifier

// Lister returns every channel and direct message visible to the current
// user, in server order.
type Lister interface {
	ListChannels(ctx context.Context) ([]Channel, error)
}

// UserLookup resolves a single user.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (User, error)
}

// Backend is the minimum a chat server adapter must provide.
type Backend interface {
	Lister
	UserLookup
}

// UnreadSource is implemented by backends that report absolute unread
// counts alongside the listing.
type UnreadSource interface {
	UnreadCounts(ctx context.Context) (map[string]int, error)
}

// ReadMarker is implemented by backends that record channel visits so other
// sessions of the same user stay consistent.
type ReadMarker interface {
	MarkRead(ctx context.Context, channelID string) error
}

// UserLister is implemented by backends that can list all users at once.
type UserLister interface {
	ListUsers(ctx context.Context) ([]User, error)
}

// EventSource delivers push events to handler until ctx is cancelled or the
// stream fails.
type EventSource interface {
	Subscribe(ctx context.Context, handler func(Event)) error
}

// Notifier surfaces a desktop notification.
type Notifier interface {
	Send(title, body string)
}
