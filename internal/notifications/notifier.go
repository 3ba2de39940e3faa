package notifications

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/m96-chan/chatly/internal/consts"
)

// minInterval is the minimum time between notifications to prevent spam.
const minInterval = 3 * time.Second

// Notifier sends desktop notifications with rate limiting.
type Notifier struct {
	mu       sync.Mutex
	lastSent time.Time
	now      func() time.Time
	send     func(title, body string) error
}

// New creates a new Notifier backed by beeep.
func New() *Notifier {
	beeep.AppName = consts.Name
	return &Notifier{now: time.Now, send: sendDesktop}
}

// Send dispatches a desktop notification. Returns silently if rate-limited.
func (n *Notifier) Send(title, body string) {
	n.mu.Lock()
	now := n.now()
	if !n.lastSent.IsZero() && now.Sub(n.lastSent) < minInterval {
		n.mu.Unlock()
		slog.Debug("notification rate limited", "title", title)
		return
	}
	n.lastSent = now
	send := n.send
	n.mu.Unlock()

	go func() {
		if err := send(title, body); err != nil {
			slog.Debug("notification failed", "error", err)
		}
	}()
}

func sendDesktop(title, body string) error {
	return beeep.Notify(title, body, "")
}

// Discard is a chat.Notifier that drops every notification.
type Discard struct{}

// Send does nothing.
func (Discard) Send(string, string) {}
