package chat

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Kind classifies a channel as a group conversation or a direct message.
type Kind int

const (
	KindGroup Kind = iota
	KindDirect
)

func (k Kind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindDirect:
		return "direct"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Channel is a conversation visible to the current user. PeerUserID is set
// if and only if Kind is KindDirect.
type Channel struct {
	ID            string `validate:"required"`
	Name          string
	Kind          Kind `validate:"oneof=0 1"`
	PeerUserID    string
	Type          string // Open, Public or Private on Chatly
	Archived      bool
	LastMessageAt time.Time
}

// IsDirect reports whether the channel is a direct message.
func (c Channel) IsDirect() bool { return c.Kind == KindDirect }

var channelValidator = newChannelValidator()

func newChannelValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		ch := sl.Current().Interface().(Channel)
		switch {
		case ch.Kind == KindDirect && ch.PeerUserID == "":
			sl.ReportError(ch.PeerUserID, "PeerUserID", "PeerUserID", "peer_required", "")
		case ch.Kind == KindGroup && ch.PeerUserID != "":
			sl.ReportError(ch.PeerUserID, "PeerUserID", "PeerUserID", "peer_forbidden", "")
		}
	}, Channel{})
	return v
}

// Validate checks the channel schema, including the peer invariant.
func (c Channel) Validate() error {
	if err := channelValidator.Struct(c); err != nil {
		return fmt.Errorf("channel %q: %w", c.ID, err)
	}
	return nil
}
