package chat

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"

	"github.com/sahilm/fuzzy"
	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"
)

// Snapshot is a point-in-time view of the channel directory. Channels and
// DirectMessages keep server order.
type Snapshot struct {
	Loading        bool
	Loaded         bool
	Err            error
	Channels       []Channel
	DirectMessages []Channel
	Generation     uint64
}

func (s Snapshot) clone() Snapshot {
	s.Channels = slices.Clone(s.Channels)
	s.DirectMessages = slices.Clone(s.DirectMessages)
	return s
}

// Directory holds the channels and direct messages visible to the current
// user. It fetches lazily: nothing is requested before the gate opens, and a
// listing is only re-requested on an explicit Refresh. It is safe for
// concurrent use.
type Directory struct {
	gate   *Gate
	lister Lister
	log    *slog.Logger

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	snap   Snapshot
	index  map[string]Channel

	flight singleflight.Group
	subs   listeners[func(Snapshot)]
}

// NewDirectory creates an empty directory fed by lister.
func NewDirectory(gate *Gate, lister Lister, log *slog.Logger) *Directory {
	if log == nil {
		log = slog.Default()
	}
	return &Directory{
		gate:   gate,
		lister: lister,
		log:    log,
		index:  make(map[string]Channel),
	}
}

// Refresh issues a listing request and applies its result. Concurrent calls
// within one generation share a single request. Failures are recorded in the
// snapshot and returned; they are never retried automatically.
func (d *Directory) Refresh(ctx context.Context) error {
	if !d.gate.IsOpen() {
		return ErrNotActive
	}

	d.mu.Lock()
	gen := d.gen
	d.mu.Unlock()

	_, err, shared := d.flight.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		return nil, d.fetch(ctx, gen)
	})
	if shared {
		d.log.Debug("joined in-flight channel listing", "generation", gen)
	}
	return err
}

func (d *Directory) fetch(ctx context.Context, gen uint64) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.mu.Lock()
	if d.gen != gen {
		d.mu.Unlock()
		return ErrStaleResponse
	}
	d.cancel = cancel
	d.snap.Loading = true
	snap := d.snap.clone()
	d.mu.Unlock()
	d.notify(snap)

	channels, err := d.lister.ListChannels(ctx)

	d.mu.Lock()
	if d.gen != gen {
		d.mu.Unlock()
		d.log.Debug("discarding stale channel listing", "generation", gen)
		return ErrStaleResponse
	}
	d.cancel = nil
	d.snap.Loading = false
	if err != nil {
		d.snap.Err = fmt.Errorf("%w: %w", ErrFetchFailed, err)
		snap = d.snap.clone()
		d.mu.Unlock()
		d.log.Error("failed to fetch channels", "error", err)
		d.notify(snap)
		return snap.Err
	}
	d.applyLocked(channels)
	snap = d.snap.clone()
	d.mu.Unlock()

	d.log.Info("channel directory loaded",
		"channels", len(snap.Channels), "dms", len(snap.DirectMessages))
	d.notify(snap)
	return nil
}

// applyLocked replaces the lists with channels, dropping records that break
// the schema. d.mu must be held.
func (d *Directory) applyLocked(channels []Channel) {
	valid := lo.Filter(channels, func(ch Channel, _ int) bool {
		if err := ch.Validate(); err != nil {
			d.log.Warn("dropping invalid channel record", "error", err)
			return false
		}
		return true
	})
	valid = lo.UniqBy(valid, func(ch Channel) string { return ch.ID })

	d.snap.Channels = lo.Filter(valid, func(ch Channel, _ int) bool { return !ch.IsDirect() })
	d.snap.DirectMessages = lo.Filter(valid, func(ch Channel, _ int) bool { return ch.IsDirect() })
	d.snap.Loaded = true
	d.snap.Err = nil
	d.index = lo.KeyBy(valid, func(ch Channel) string { return ch.ID })
}

// Invalidate ends the current generation: any in-flight listing is cancelled
// and its late result discarded, and the snapshot is cleared.
func (d *Directory) Invalidate() {
	d.mu.Lock()
	d.gen++
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.snap = Snapshot{Generation: d.gen}
	d.index = make(map[string]Channel)
	snap := d.snap
	d.mu.Unlock()

	d.notify(snap)
}

// Generation returns the current session generation.
func (d *Directory) Generation() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gen
}

// Snapshot returns a copy of the current directory state.
func (d *Directory) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	snap := d.snap.clone()
	snap.Generation = d.gen
	return snap
}

// Has reports whether id is in the current snapshot.
func (d *Directory) Has(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.index[id]
	return ok
}

// Get returns the channel with the given id.
func (d *Directory) Get(id string) (Channel, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch, ok := d.index[id]
	return ch, ok
}

// Subscribe registers fn to be called with every new snapshot. The returned
// function removes the subscription.
func (d *Directory) Subscribe(fn func(Snapshot)) func() {
	return d.subs.add(fn)
}

func (d *Directory) notify(snap Snapshot) {
	for _, fn := range d.subs.snapshot() {
		fn(snap)
	}
}

// searchSource adapts a channel slice to fuzzy.Source.
type searchSource []Channel

func (s searchSource) String(i int) string {
	if s[i].Name != "" {
		return s[i].Name
	}
	return s[i].ID
}

func (s searchSource) Len() int { return len(s) }

// Search returns channels whose name fuzzily matches query, best match
// first. An empty query returns every channel, groups before DMs.
func (d *Directory) Search(query string) []Channel {
	snap := d.Snapshot()
	all := append(snap.Channels, snap.DirectMessages...)
	if query == "" {
		return all
	}

	matches := fuzzy.FindFrom(query, searchSource(all))
	return lo.Map(matches, func(m fuzzy.Match, _ int) Channel {
		return all[m.Index]
	})
}
