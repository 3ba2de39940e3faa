package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUserDirectory_GatedBeforeActivation(t *testing.T) {
	b := newFakeBackend()
	b.users["u1"] = User{ID: "u1", FullName: "Alice"}
	u := NewUserDirectory(NewGate(), b, 8, time.Minute, nil)

	_, err := u.Get(context.Background(), "u1")
	require.ErrorIs(t, err, ErrNotActive)
	require.Zero(t, b.userCalls.Load())
}

func TestUserDirectory_CachesLookups(t *testing.T) {
	g := NewGate()
	g.Open()
	b := newFakeBackend()
	b.users["u1"] = User{ID: "u1", FullName: "Alice"}
	u := NewUserDirectory(g, b, 8, time.Minute, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := u.Get(context.Background(), "u1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	_, err := u.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.LessOrEqual(t, b.userCalls.Load(), int32(10))

	before := b.userCalls.Load()
	_, err = u.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, before, b.userCalls.Load())
}

func TestUserDirectory_EntriesExpire(t *testing.T) {
	g := NewGate()
	g.Open()
	b := newFakeBackend()
	b.users["u1"] = User{ID: "u1", FullName: "Alice"}
	u := NewUserDirectory(g, b, 8, 20*time.Millisecond, nil)

	_, err := u.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := u.Cached("u1")
		return !ok
	}, time.Second, 10*time.Millisecond)

	_, err = u.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, int32(2), b.userCalls.Load())
}

func TestUserDirectory_LookupError(t *testing.T) {
	g := NewGate()
	g.Open()
	u := NewUserDirectory(g, newFakeBackend(), 8, time.Minute, nil)

	_, err := u.Get(context.Background(), "nobody")
	require.ErrorContains(t, err, "nobody")
}

func TestUserDirectory_Preload(t *testing.T) {
	g := NewGate()
	g.Open()
	b := newFullBackend()
	b.userList = []User{{ID: "u1", FullName: "Alice"}, {ID: "u2", FullName: "Bob"}}
	u := NewUserDirectory(g, b, 8, time.Minute, nil)

	require.NoError(t, u.Preload(context.Background()))
	user, ok := u.Cached("u2")
	require.True(t, ok)
	require.Equal(t, "Bob", user.FullName)

	u.Purge()
	_, ok = u.Cached("u2")
	require.False(t, ok)
}

func TestUserDirectory_PreloadWithoutListerIsNoop(t *testing.T) {
	g := NewGate()
	g.Open()
	u := NewUserDirectory(g, newFakeBackend(), 8, time.Minute, nil)
	require.NoError(t, u.Preload(context.Background()))
}

// slowLookup blocks GetUser until release is closed.
type slowLookup struct {
	started chan struct{}
	release chan struct{}
}

func (l slowLookup) GetUser(_ context.Context, id string) (User, error) {
	l.started <- struct{}{}
	<-l.release
	return User{ID: id, FullName: "Alice"}, nil
}

func TestUserDirectory_PurgeDiscardsInFlightLookup(t *testing.T) {
	g := NewGate()
	g.Open()
	l := slowLookup{started: make(chan struct{}, 1), release: make(chan struct{})}
	u := NewUserDirectory(g, l, 8, time.Minute, nil)

	done := make(chan error, 1)
	go func() {
		_, err := u.Get(context.Background(), "u1")
		done <- err
	}()
	<-l.started
	u.Purge()
	close(l.release)

	require.NoError(t, <-done)
	_, ok := u.Cached("u1")
	require.False(t, ok)
}
