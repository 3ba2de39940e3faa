package chat

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// fakeBackend implements only the required Backend methods.
type fakeBackend struct {
	mu       sync.Mutex
	channels []Channel
	listErr  error
	users    map[string]User

	// When release is non-nil ListChannels signals started and blocks until
	// release is closed or ctx is done.
	started chan struct{}
	release chan struct{}

	listCalls atomic.Int32
	userCalls atomic.Int32
}

func newFakeBackend(channels ...Channel) *fakeBackend {
	return &fakeBackend{channels: channels, users: make(map[string]User)}
}

func (f *fakeBackend) setChannels(channels ...Channel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = channels
}

func (f *fakeBackend) block() {
	f.started = make(chan struct{}, 16)
	f.release = make(chan struct{})
}

func (f *fakeBackend) ListChannels(ctx context.Context) ([]Channel, error) {
	f.listCalls.Add(1)
	if f.release != nil {
		f.started <- struct{}{}
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]Channel(nil), f.channels...), nil
}

func (f *fakeBackend) GetUser(_ context.Context, id string) (User, error) {
	f.userCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return User{}, fmt.Errorf("user %s not found", id)
	}
	return u, nil
}

// fullBackend adds every optional capability.
type fullBackend struct {
	*fakeBackend
	counts   map[string]int
	userList []User
	marked   chan string

	// When countsRelease is non-nil UnreadCounts reads the counts, signals
	// countsStarted and blocks until countsRelease is closed.
	countsStarted chan struct{}
	countsRelease chan struct{}
}

func (f *fullBackend) blockCounts() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countsStarted = make(chan struct{}, 16)
	f.countsRelease = make(chan struct{})
}

func newFullBackend(channels ...Channel) *fullBackend {
	return &fullBackend{
		fakeBackend: newFakeBackend(channels...),
		marked:      make(chan string, 16),
	}
}

func (f *fullBackend) UnreadCounts(ctx context.Context) (map[string]int, error) {
	f.mu.Lock()
	out := make(map[string]int, len(f.counts))
	for k, v := range f.counts {
		out[k] = v
	}
	started, release := f.countsStarted, f.countsRelease
	f.mu.Unlock()

	if release != nil {
		started <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return out, nil
}

func (f *fullBackend) MarkRead(_ context.Context, channelID string) error {
	f.marked <- channelID
	return nil
}

func (f *fullBackend) ListUsers(context.Context) ([]User, error) {
	return f.userList, nil
}

// knownSet is a concurrency-safe membership function for Counter tests.
type knownSet struct {
	mu  sync.Mutex
	ids map[string]bool
}

func newKnownSet(ids ...string) *knownSet {
	k := &knownSet{ids: make(map[string]bool)}
	k.add(ids...)
	return k
}

func (k *knownSet) add(ids ...string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, id := range ids {
		k.ids[id] = true
	}
}

func (k *knownSet) has(id string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ids[id]
}

func group(id, name string) Channel {
	return Channel{ID: id, Name: name, Kind: KindGroup, Type: "Public"}
}

func direct(id, peer string) Channel {
	return Channel{ID: id, Name: id, Kind: KindDirect, PeerUserID: peer, Type: "Private"}
}
