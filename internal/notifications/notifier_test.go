package notifications

import (
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	sent  []string
	ready chan struct{}
}

func newRecorder() *recorder {
	return &recorder{ready: make(chan struct{}, 8)}
}

func (r *recorder) send(title, body string) error {
	r.mu.Lock()
	r.sent = append(r.sent, title+": "+body)
	r.mu.Unlock()
	r.ready <- struct{}{}
	return nil
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.ready:
	case <-time.After(time.Second):
		t.Fatal("notification not sent")
	}
}

func TestNotifier_RateLimit(t *testing.T) {
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rec := newRecorder()
	n := &Notifier{now: func() time.Time { return clock }, send: rec.send}

	n.Send("general", "first")
	rec.wait(t)

	// Inside the interval: dropped.
	clock = clock.Add(time.Second)
	n.Send("general", "second")

	// After the interval: delivered.
	clock = clock.Add(minInterval)
	n.Send("general", "third")
	rec.wait(t)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	want := []string{"general: first", "general: third"}
	if len(rec.sent) != len(want) {
		t.Fatalf("sent %v, want %v", rec.sent, want)
	}
	for i := range want {
		if rec.sent[i] != want[i] {
			t.Errorf("sent[%d] = %q, want %q", i, rec.sent[i], want[i])
		}
	}
}

func TestNotifier_RateLimitedSendKeepsTimestamp(t *testing.T) {
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rec := newRecorder()
	n := &Notifier{now: func() time.Time { return clock }, send: rec.send}

	n.Send("title", "body")
	rec.wait(t)
	first := n.lastSent

	clock = clock.Add(time.Second)
	n.Send("title2", "body2")

	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.lastSent.Equal(first) {
		t.Error("rate-limited Send should not update lastSent")
	}
}

func TestDiscard(t *testing.T) {
	var d Discard
	d.Send("title", "body")
}
