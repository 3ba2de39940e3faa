package chat

// EventKind identifies what a push event asks the session to do.
type EventKind int

const (
	// EventUnread updates one channel's unread counter.
	EventUnread EventKind = iota
	// EventDirectoryChanged asks for a directory refresh, e.g. after a
	// channel was created elsewhere.
	EventDirectoryChanged
)

// Event is a push notification delivered by an EventSource. Delivery is
// at-least-once. Count carries absolute semantics and is preferred; when it
// is nil, Delta is added instead. Events with an ID are de-duplicated.
type Event struct {
	ID        string
	Kind      EventKind
	ChannelID string
	Count     *int
	Delta     int
	PlaySound bool
	SentBy    string
}

// AbsoluteEvent returns an unread event that sets the channel count to n.
func AbsoluteEvent(channelID string, n int) Event {
	return Event{Kind: EventUnread, ChannelID: channelID, Count: &n}
}

// DeltaEvent returns an unread event that adds delta to the channel count.
func DeltaEvent(channelID string, delta int) Event {
	return Event{Kind: EventUnread, ChannelID: channelID, Delta: delta}
}

// IsAbsolute reports whether the event carries an absolute count.
func (e Event) IsAbsolute() bool { return e.Count != nil }
