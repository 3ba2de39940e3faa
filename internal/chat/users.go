package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// UserDirectory caches user lookups for a bounded time. Lookups are gated
// like every other fetch, and concurrent lookups of one id share a request.
// Results of lookups started before a Purge are returned but not cached.
type UserDirectory struct {
	gate   *Gate
	lookup UserLookup
	log    *slog.Logger
	cache  *expirable.LRU[string, User]
	flight singleflight.Group

	mu  sync.Mutex
	gen uint64
}

// NewUserDirectory creates a cache holding at most size users for ttl each.
func NewUserDirectory(gate *Gate, lookup UserLookup, size int, ttl time.Duration, log *slog.Logger) *UserDirectory {
	if log == nil {
		log = slog.Default()
	}
	return &UserDirectory{
		gate:   gate,
		lookup: lookup,
		log:    log,
		cache:  expirable.NewLRU[string, User](size, nil, ttl),
	}
}

// Get returns the user with the given id, from cache when fresh.
func (u *UserDirectory) Get(ctx context.Context, id string) (User, error) {
	if user, ok := u.cache.Get(id); ok {
		return user, nil
	}
	if !u.gate.IsOpen() {
		return User{}, ErrNotActive
	}

	gen := u.generation()
	v, err, _ := u.flight.Do(strconv.FormatUint(gen, 10)+"/"+id, func() (any, error) {
		user, err := u.lookup.GetUser(ctx, id)
		if err != nil {
			return User{}, err
		}
		u.addIfCurrent(gen, id, user)
		return user, nil
	})
	if err != nil {
		return User{}, fmt.Errorf("looking up user %s: %w", id, err)
	}
	return v.(User), nil
}

// Cached returns a user only if it is already in the cache.
func (u *UserDirectory) Cached(id string) (User, bool) {
	return u.cache.Get(id)
}

// Preload fills the cache in one request when the backend can list users.
// It is a no-op for backends that cannot.
func (u *UserDirectory) Preload(ctx context.Context) error {
	if !u.gate.IsOpen() {
		return ErrNotActive
	}
	lister, ok := u.lookup.(UserLister)
	if !ok {
		return nil
	}

	gen := u.generation()
	users, err := lister.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}
	for _, user := range users {
		u.addIfCurrent(gen, user.ID, user)
	}
	u.log.Debug("user cache preloaded", "users", len(users))
	return nil
}

// Purge empties the cache and discards lookups still in flight.
func (u *UserDirectory) Purge() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.gen++
	u.cache.Purge()
}

func (u *UserDirectory) generation() uint64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.gen
}

func (u *UserDirectory) addIfCurrent(gen uint64, id string, user User) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.gen != gen {
		u.log.Debug("discarding user lookup from before purge", "user", id)
		return
	}
	u.cache.Add(id, user)
}
