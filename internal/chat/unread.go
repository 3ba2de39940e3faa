package chat

import (
	"cmp"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Counter tracks unread message counts per channel. Absent channels count as
// zero. Updates for one channel apply in arrival order; channels are
// independent of each other. It is safe for concurrent use.
//
// Events for channels the directory does not know yet are buffered, per
// channel and in order, until the next Reconcile. This keeps freshly created
// channels from being under-counted.
//
// While a refresh holds a Mark, applied changes are journaled so Reconcile
// can replay them on top of server counts read before they arrived.
type Counter struct {
	log   *slog.Logger
	known func(channelID string) bool
	limit int

	mu       sync.Mutex
	counts   map[string]int
	pending  map[string][]Event
	buffered int
	seen     *lru.Cache[string, struct{}]

	seq     uint64
	marks   map[Mark]int
	journal []change

	subs listeners[func(channelID string, count int)]
}

// Mark is a position in the counter's change history.
type Mark uint64

type change struct {
	seq       uint64
	channelID string
	count     *int
	delta     int
}

// NewCounter creates a counter. known reports directory membership; a nil
// known accepts every channel. bufferLimit bounds the number of buffered
// events and dedupeWindow the number of remembered event ids.
func NewCounter(known func(string) bool, bufferLimit, dedupeWindow int, log *slog.Logger) *Counter {
	if log == nil {
		log = slog.Default()
	}
	seen, err := lru.New[string, struct{}](max(dedupeWindow, 1))
	if err != nil {
		panic(err) // only fails for non-positive sizes
	}
	return &Counter{
		log:     log,
		known:   known,
		limit:   bufferLimit,
		counts:  make(map[string]int),
		pending: make(map[string][]Event),
		seen:    seen,
		marks:   make(map[Mark]int),
	}
}

// Get returns the unread count for a channel, zero when unknown.
func (c *Counter) Get(channelID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[channelID]
}

// All returns a copy of every non-zero count.
func (c *Counter) All() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.counts)
}

// Buffered returns the number of events waiting for their channel to appear.
func (c *Counter) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffered
}

// Apply merges a push event. Duplicate deliveries of an applied or buffered
// event id are ignored. Events for unknown channels are buffered and
// reported with ErrUnknownChannel.
func (c *Counter) Apply(evt Event) error {
	if evt.ChannelID == "" {
		return fmt.Errorf("unread event without channel id")
	}

	c.mu.Lock()
	if evt.ID != "" && c.seen.Contains(evt.ID) {
		c.mu.Unlock()
		c.log.Debug("ignoring duplicate event", "id", evt.ID, "channel", evt.ChannelID)
		return nil
	}

	if c.known != nil && !c.known(evt.ChannelID) {
		ok := c.bufferLocked(evt)
		if ok {
			c.rememberLocked(evt)
		}
		c.mu.Unlock()
		if ok {
			c.log.Info("buffering event for unknown channel", "channel", evt.ChannelID)
		} else {
			c.log.Warn("dropping event for unknown channel, buffer full",
				"channel", evt.ChannelID, "limit", c.limit)
		}
		return fmt.Errorf("%w: %s", ErrUnknownChannel, evt.ChannelID)
	}

	c.rememberLocked(evt)
	n, changed := c.applyLocked(evt)
	c.recordLocked(change{channelID: evt.ChannelID, count: evt.Count, delta: evt.Delta})
	c.mu.Unlock()

	if changed {
		c.notify(evt.ChannelID, n)
	}
	return nil
}

func (c *Counter) rememberLocked(evt Event) {
	if evt.ID != "" {
		c.seen.Add(evt.ID, struct{}{})
	}
}

func (c *Counter) forgetLocked(evts []Event) {
	for _, evt := range evts {
		if evt.ID != "" {
			c.seen.Remove(evt.ID)
		}
	}
}

// recordLocked journals a change when a refresh is in flight.
func (c *Counter) recordLocked(ch change) {
	c.seq++
	if len(c.marks) == 0 {
		return
	}
	ch.seq = c.seq
	c.journal = append(c.journal, ch)
}

// Mark starts journaling changes for a refresh. The returned mark is passed
// to Reconcile and must be released with Release.
func (c *Counter) Mark() Mark {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := Mark(c.seq)
	c.marks[m]++
	return m
}

// Release ends journaling for m. The journal is trimmed to what the
// remaining marks still need.
func (c *Counter) Release(m Mark) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.marks[m] <= 1 {
		delete(c.marks, m)
	} else {
		c.marks[m]--
	}
	if len(c.marks) == 0 {
		c.journal = nil
		return
	}
	oldest := slices.Min(slices.Collect(maps.Keys(c.marks)))
	i, _ := slices.BinarySearchFunc(c.journal, uint64(oldest)+1, func(ch change, seq uint64) int {
		return cmp.Compare(ch.seq, seq)
	})
	c.journal = slices.Clone(c.journal[i:])
}

func (c *Counter) bufferLocked(evt Event) bool {
	if c.buffered >= c.limit {
		return false
	}
	c.pending[evt.ChannelID] = append(c.pending[evt.ChannelID], evt)
	c.buffered++
	return true
}

func (c *Counter) applyLocked(evt Event) (int, bool) {
	prev := c.counts[evt.ChannelID]
	next := prev + evt.Delta
	if evt.Count != nil {
		next = *evt.Count
	}
	next = max(next, 0)

	if next == 0 {
		delete(c.counts, evt.ChannelID)
	} else {
		c.counts[evt.ChannelID] = next
	}
	return next, next != prev
}

// MarkRead zeroes a channel's count and drops its buffered events.
func (c *Counter) MarkRead(channelID string) {
	c.mu.Lock()
	prev := c.counts[channelID]
	delete(c.counts, channelID)
	c.buffered -= len(c.pending[channelID])
	delete(c.pending, channelID)
	zero := 0
	c.recordLocked(change{channelID: channelID, count: &zero})
	c.mu.Unlock()

	if prev != 0 {
		c.notify(channelID, 0)
	}
}

// Reconcile runs after a directory refresh. A non-nil counts map replaces
// every count with the server's values, and changes applied since the mark
// taken before the counts were read are replayed on top, in order. Buffered
// events are then replayed for channels the directory now knows, unless the
// server already supplied an absolute count for that channel; the rest are
// dropped. It returns the number of replayed and dropped buffered events.
func (c *Counter) Reconcile(counts map[string]int, since Mark) (replayed, dropped int) {
	c.mu.Lock()
	before := maps.Clone(c.counts)

	if counts != nil {
		c.counts = make(map[string]int, len(counts))
		for id, n := range counts {
			if n > 0 && (c.known == nil || c.known(id)) {
				c.counts[id] = n
			}
		}
		for _, ch := range c.journal {
			if ch.seq > uint64(since) && (c.known == nil || c.known(ch.channelID)) {
				c.applyLocked(Event{ChannelID: ch.channelID, Count: ch.count, Delta: ch.delta})
			}
		}
	}

	for id, evts := range c.pending {
		_, seeded := counts[id]
		switch {
		case c.known != nil && !c.known(id):
			dropped += len(evts)
			c.forgetLocked(evts)
			c.log.Warn("dropping buffered events, channel still unknown after refresh",
				"channel", id, "events", len(evts))
		case seeded:
			dropped += len(evts)
			c.log.Debug("buffered events superseded by server count", "channel", id)
		default:
			for _, evt := range evts {
				c.applyLocked(evt)
			}
			replayed += len(evts)
		}
	}
	c.pending = make(map[string][]Event)
	c.buffered = 0
	after := maps.Clone(c.counts)
	c.mu.Unlock()

	c.notifyDiff(before, after)
	return replayed, dropped
}

// Reset forgets every count, buffered event and remembered event id.
func (c *Counter) Reset() {
	c.mu.Lock()
	before := c.counts
	c.counts = make(map[string]int)
	c.pending = make(map[string][]Event)
	c.buffered = 0
	c.seen.Purge()
	c.journal = nil
	c.mu.Unlock()

	c.notifyDiff(before, nil)
}

// Totals sums unread counts split into group channels and direct messages
// using dir to classify them.
func (c *Counter) Totals(dir *Directory) (channels, dms int) {
	for id, n := range c.All() {
		ch, ok := dir.Get(id)
		if ok && ch.IsDirect() {
			dms += n
		} else {
			channels += n
		}
	}
	return channels, dms
}

// Subscribe registers fn to be called whenever a channel's count changes.
// The returned function removes the subscription.
func (c *Counter) Subscribe(fn func(channelID string, count int)) func() {
	return c.subs.add(fn)
}

func (c *Counter) notify(channelID string, count int) {
	for _, fn := range c.subs.snapshot() {
		fn(channelID, count)
	}
}

func (c *Counter) notifyDiff(before, after map[string]int) {
	ids := make(map[string]struct{}, len(before)+len(after))
	for id := range before {
		ids[id] = struct{}{}
	}
	for id := range after {
		ids[id] = struct{}{}
	}
	for _, id := range slices.Sorted(maps.Keys(ids)) {
		if before[id] != after[id] {
			c.notify(id, after[id])
		}
	}
}
