package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/m96-chan/chatly/internal/app"
	"github.com/m96-chan/chatly/internal/chat"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream unread count changes until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			return watch(ctx, cmd.OutOrStdout(), a.Session)
		},
	}
}

// watcher collects the latest count per channel between prints, so a slow
// writer sees every channel's final count.
type watcher struct {
	session *chat.Session

	mu      sync.Mutex
	latest  map[string]int
	order   []string
	wake    chan struct{}
	unwatch func()
}

func newWatcher(session *chat.Session) *watcher {
	w := &watcher{
		session: session,
		latest:  make(map[string]int),
		wake:    make(chan struct{}, 1),
	}
	w.unwatch = session.Unread().Subscribe(w.record)
	return w
}

func (w *watcher) record(channelID string, count int) {
	w.mu.Lock()
	if _, ok := w.latest[channelID]; !ok {
		w.order = append(w.order, channelID)
	}
	w.latest[channelID] = count
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *watcher) drain() ([]string, map[string]int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	order, latest := w.order, w.latest
	w.order, w.latest = nil, make(map[string]int)
	return order, latest
}

func (w *watcher) close() { w.unwatch() }

func (w *watcher) run(ctx context.Context, out io.Writer) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.wake:
			order, latest := w.drain()
			for _, id := range order {
				name := id
				if ch, ok := w.session.Directory().Get(id); ok {
					name = ch.Name
				}
				fmt.Fprintf(out, "%s  %-24s %d\n", time.Now().Format(time.TimeOnly), name, latest[id])
			}
		}
	}
}

func watch(ctx context.Context, out io.Writer, session *chat.Session) error {
	w := newWatcher(session)
	defer w.close()

	unwatchDir := session.Directory().Subscribe(func(snap chat.Snapshot) {
		if snap.Err != nil {
			fmt.Fprintf(out, "%s  directory error: %v\n", time.Now().Format(time.TimeOnly), snap.Err)
		} else if snap.Loaded {
			fmt.Fprintf(out, "%s  %d channels, %d direct messages\n", time.Now().Format(time.TimeOnly),
				len(snap.Channels), len(snap.DirectMessages))
		}
	})
	defer unwatchDir()

	session.Activate(ctx)
	return w.run(ctx, out)
}
