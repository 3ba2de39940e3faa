package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Options tunes a Session. Zero values fall back to DefaultOptions.
type Options struct {
	FetchTimeout  time.Duration
	UserCacheSize int
	UserCacheTTL  time.Duration
	BufferLimit   int
	DedupeWindow  int
	Logger        *slog.Logger
}

// DefaultOptions returns the options used for unset fields.
func DefaultOptions() Options {
	return Options{
		FetchTimeout:  10 * time.Second,
		UserCacheSize: 512,
		UserCacheTTL:  10 * time.Minute,
		BufferLimit:   256,
		DedupeWindow:  1024,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = d.FetchTimeout
	}
	if o.UserCacheSize <= 0 {
		o.UserCacheSize = d.UserCacheSize
	}
	if o.UserCacheTTL <= 0 {
		o.UserCacheTTL = d.UserCacheTTL
	}
	if o.BufferLimit < 0 {
		o.BufferLimit = d.BufferLimit
	}
	if o.DedupeWindow <= 0 {
		o.DedupeWindow = d.DedupeWindow
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Session is the client-side chat state for one logged-in user: the
// activation gate, the channel directory, unread counters and the user
// cache. It starts inert; Activate opens the gate and triggers the one-time
// listing fetch, after which the push event stream is consumed.
type Session struct {
	ID string

	opts     Options
	log      *slog.Logger
	backend  Backend
	events   EventSource
	notifier Notifier

	gate   *Gate
	dir    *Directory
	unread *Counter
	users  *UserDirectory

	// genMu serializes applying refresh results against End.
	genMu sync.Mutex

	mu        sync.Mutex
	parent    context.Context
	ctx       context.Context
	cancel    context.CancelFunc
	current   string
	streaming bool
	ready     bool

	refreshed listeners[func(error)]
}

// NewSession wires a session around backend. events and notifier may be nil.
func NewSession(backend Backend, events EventSource, notifier Notifier, opts Options) *Session {
	opts = opts.withDefaults()
	id := uuid.NewString()
	log := opts.Logger.With("session", id)

	s := &Session{
		ID:       id,
		opts:     opts,
		log:      log,
		backend:  backend,
		events:   events,
		notifier: notifier,
		gate:     NewGate(),
	}
	s.dir = NewDirectory(s.gate, backend, log)
	s.unread = NewCounter(s.dir.Has, opts.BufferLimit, opts.DedupeWindow, log)
	s.users = NewUserDirectory(s.gate, backend, opts.UserCacheSize, opts.UserCacheTTL, log)
	s.gate.OnOpen(func() { go s.start() })
	return s
}

// Gate returns the activation gate.
func (s *Session) Gate() *Gate { return s.gate }

// Directory returns the channel directory.
func (s *Session) Directory() *Directory { return s.dir }

// Unread returns the unread counter.
func (s *Session) Unread() *Counter { return s.unread }

// Users returns the user cache.
func (s *Session) Users() *UserDirectory { return s.users }

// Active reports whether the session has been activated.
func (s *Session) Active() bool { return s.gate.IsOpen() }

// Activate is called when the chat surface is first shown. The first call
// starts background loading bound to ctx; later calls do nothing.
func (s *Session) Activate(ctx context.Context) {
	s.mu.Lock()
	if s.parent == nil {
		s.parent = ctx
		s.ctx, s.cancel = context.WithCancel(ctx)
	}
	s.mu.Unlock()

	if s.gate.Open() {
		s.log.Info("chat activated")
	}
}

func (s *Session) lifetime() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// start performs the initial load: the channel listing and the user preload
// run in parallel. A failed listing is left for the caller to retry.
func (s *Session) start() {
	ctx := s.lifetime()

	var g errgroup.Group
	g.Go(func() error {
		return s.Refresh(ctx)
	})
	g.Go(func() error {
		if err := s.users.Preload(ctx); err != nil {
			s.log.Warn("failed to preload users", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, ErrStaleResponse) {
		s.log.Error("initial load failed", "error", err)
	}
}

// Refresh reloads the channel directory and, when the backend reports them,
// absolute unread counts. The request is bounded by the fetch timeout and is
// not retried. After the first successful refresh the push stream starts.
// Refresh listeners are told the outcome unless the result was stale.
func (s *Session) Refresh(ctx context.Context) error {
	if !s.gate.IsOpen() {
		return ErrNotActive
	}
	err := s.refresh(ctx)
	if errors.Is(err, ErrStaleResponse) {
		return err
	}
	for _, fn := range s.refreshed.snapshot() {
		fn(err)
	}
	return err
}

func (s *Session) refresh(ctx context.Context) error {
	gen := s.dir.Generation()
	mark := s.unread.Mark()
	defer s.unread.Release(mark)

	ctx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	defer cancel()

	if err := s.dir.Refresh(ctx); err != nil {
		return err
	}

	var counts map[string]int
	if src, ok := s.backend.(UnreadSource); ok {
		c, err := src.UnreadCounts(ctx)
		if err != nil {
			s.log.Warn("failed to fetch unread counts", "error", err)
		} else {
			counts = c
		}
	}

	s.genMu.Lock()
	if s.dir.Generation() != gen {
		s.genMu.Unlock()
		s.log.Debug("discarding stale unread counts", "generation", gen)
		return ErrStaleResponse
	}
	replayed, dropped := s.unread.Reconcile(counts, mark)
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
	s.genMu.Unlock()

	if replayed > 0 || dropped > 0 {
		s.log.Info("flushed buffered events", "replayed", replayed, "dropped", dropped)
	}

	s.startEvents()
	return nil
}

// Ready reports whether the directory and unread counts of the current
// session have been loaded.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// OnRefresh registers fn to run after every refresh with its error, nil once
// the directory and unread counts are both in place. The returned function
// removes the registration.
func (s *Session) OnRefresh(fn func(error)) func() {
	return s.refreshed.add(fn)
}

// startEvents subscribes to the push stream unless a subscription is running.
func (s *Session) startEvents() {
	if s.events == nil {
		return
	}

	s.mu.Lock()
	if s.streaming || s.ctx == nil {
		s.mu.Unlock()
		return
	}
	s.streaming = true
	ctx := s.ctx
	s.mu.Unlock()

	go func() {
		err := s.events.Subscribe(ctx, s.HandleEvent)
		if err != nil && ctx.Err() == nil {
			s.log.Error("event stream exited", "error", err)
		}
		s.mu.Lock()
		if s.ctx == ctx {
			s.streaming = false
		}
		s.mu.Unlock()
	}()
}

// HandleEvent applies a push event. It never blocks on I/O.
func (s *Session) HandleEvent(evt Event) {
	if evt.Kind == EventDirectoryChanged {
		ctx := s.lifetime()
		go func() {
			if err := s.Refresh(ctx); err != nil && !errors.Is(err, ErrStaleResponse) {
				s.log.Warn("directory refresh after push failed", "error", err)
			}
		}()
		return
	}

	s.mu.Lock()
	current := s.current
	s.mu.Unlock()

	// The open channel is being read as messages arrive.
	if current != "" && evt.ChannelID == current {
		s.MarkRead(current)
		return
	}

	err := s.unread.Apply(evt)
	switch {
	case errors.Is(err, ErrUnknownChannel):
		return
	case err != nil:
		s.log.Warn("failed to apply event", "channel", evt.ChannelID, "error", err)
		return
	}

	if evt.PlaySound {
		s.notify(evt)
	}
}

func (s *Session) notify(evt Event) {
	if s.notifier == nil {
		return
	}
	title := evt.ChannelID
	if ch, ok := s.dir.Get(evt.ChannelID); ok && ch.Name != "" {
		title = ch.Name
	}
	body := "New message"
	if u, ok := s.users.Cached(evt.SentBy); ok {
		body = "New message from " + u.DisplayName()
		if ch, ok := s.dir.Get(evt.ChannelID); ok && ch.IsDirect() {
			title = u.DisplayName()
		}
	}
	s.notifier.Send(title, body)
}

// Open records that the user is viewing a channel and marks it read.
func (s *Session) Open(channelID string) {
	s.mu.Lock()
	s.current = channelID
	s.mu.Unlock()
	s.MarkRead(channelID)
}

// CloseChannel records that no channel is being viewed.
func (s *Session) CloseChannel() {
	s.mu.Lock()
	s.current = ""
	s.mu.Unlock()
}

// Current returns the channel being viewed, if any.
func (s *Session) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// MarkRead zeroes a channel's unread count and, when the backend supports
// it, records the visit server-side in the background.
func (s *Session) MarkRead(channelID string) {
	s.unread.MarkRead(channelID)

	marker, ok := s.backend.(ReadMarker)
	if !ok || !s.gate.IsOpen() {
		return
	}
	ctx := s.lifetime()
	go func() {
		if err := marker.MarkRead(ctx, channelID); err != nil && ctx.Err() == nil {
			s.log.Error("failed to mark channel read", "channel", channelID, "error", err)
		}
	}()
}

// End ends the logged-in session: in-flight work is cancelled and its late
// results discarded, and the directory, counters and user cache are cleared
// together. The gate stays open; a later Refresh starts a new generation.
func (s *Session) End() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.ctx, s.cancel = context.WithCancel(s.parent)
	}
	s.current = ""
	s.streaming = false
	s.mu.Unlock()

	s.genMu.Lock()
	s.dir.Invalidate()
	s.unread.Reset()
	s.mu.Lock()
	s.ready = false
	s.mu.Unlock()
	s.genMu.Unlock()
	s.users.Purge()

	s.log.Info("chat session ended")
}

// Close stops background work without clearing state.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}
