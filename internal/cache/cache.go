// Package cache holds in-memory payload slots with single-flight refresh.
// Scheduler-owned slots are written by the background refresher and only read
// elsewhere; lazy slots refresh through a fetch function when their TTL lapses.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tyemirov/homeboard/internal/session"
)

// ErrEmpty indicates the slot has never been filled and no fetch succeeded.
var ErrEmpty = errors.New("cache.empty")

// Fetch produces a fresh payload for a slot.
type Fetch func(ctx context.Context) (string, error)

// Entry is one cached payload with its refresh timestamp.
type Entry struct {
	Payload     string
	RefreshedAt time.Time
}

// Slot is one cached payload. A stale slot is refreshed by exactly one caller
// while concurrent holders keep serving the stale entry; callers finding the
// slot empty wait for the in-flight fetch instead of duplicating it.
type Slot struct {
	name   string
	clock  session.Clock
	logger *zap.Logger

	mutex   sync.Mutex
	entry   *Entry
	pending chan struct{}
}

// NewSlot builds a named slot.
func NewSlot(name string, clock session.Clock, logger *zap.Logger) *Slot {
	return &Slot{name: name, clock: clock, logger: logger}
}

// Store installs a payload, typically from the background refresher or from a
// durable row during boot hydration.
func (slot *Slot) Store(payload string, refreshedAt time.Time) {
	slot.mutex.Lock()
	defer slot.mutex.Unlock()
	slot.entry = &Entry{Payload: payload, RefreshedAt: refreshedAt}
}

// Read returns the cached entry without refreshing, or ErrEmpty.
func (slot *Slot) Read() (Entry, error) {
	slot.mutex.Lock()
	defer slot.mutex.Unlock()
	if slot.entry == nil {
		return Entry{}, fmt.Errorf("cache.%s: %w", slot.name, ErrEmpty)
	}
	return *slot.entry, nil
}

// ReadThrough returns the cached entry, refreshing through fetch when the
// entry is older than ttl. A non-positive ttl means entries never go stale
// and fetch only runs to fill an empty slot.
func (slot *Slot) ReadThrough(ctx context.Context, ttl time.Duration, fetch Fetch) (Entry, error) {
	for {
		slot.mutex.Lock()
		if slot.entry != nil {
			if ttl <= 0 || slot.clock.Now().Sub(slot.entry.RefreshedAt) < ttl {
				entry := *slot.entry
				slot.mutex.Unlock()
				return entry, nil
			}
			if slot.pending != nil {
				// Someone else is already refreshing; the stale entry is
				// still usable.
				entry := *slot.entry
				slot.mutex.Unlock()
				return entry, nil
			}
			return slot.refreshLocked(ctx, fetch)
		}
		if slot.pending == nil {
			return slot.refreshLocked(ctx, fetch)
		}
		pending := slot.pending
		slot.mutex.Unlock()
		select {
		case <-ctx.Done():
			return Entry{}, ctx.Err()
		case <-pending:
		}
	}
}

// refreshLocked runs fetch outside the lock and publishes the outcome. The
// caller must hold the mutex; it is released on return.
func (slot *Slot) refreshLocked(ctx context.Context, fetch Fetch) (Entry, error) {
	stale := slot.entry
	pending := make(chan struct{})
	slot.pending = pending
	slot.mutex.Unlock()

	payload, fetchErr := fetch(ctx)

	slot.mutex.Lock()
	if fetchErr == nil {
		slot.entry = &Entry{Payload: payload, RefreshedAt: slot.clock.Now()}
	}
	refreshed := slot.entry
	slot.pending = nil
	close(pending)
	slot.mutex.Unlock()

	if fetchErr != nil {
		if stale != nil {
			slot.logger.Warn("serving stale cache entry after refresh failure",
				zap.String("slot", slot.name),
				zap.Error(fetchErr))
			return *stale, nil
		}
		return Entry{}, fmt.Errorf("cache.%s.refresh: %w", slot.name, fetchErr)
	}
	return *refreshed, nil
}

// Group is a keyed family of slots, one per calendar id.
type Group struct {
	prefix string
	clock  session.Clock
	logger *zap.Logger

	mutex sync.Mutex
	slots map[string]*Slot
}

// NewGroup builds a slot family sharing one name prefix.
func NewGroup(prefix string, clock session.Clock, logger *zap.Logger) *Group {
	return &Group{prefix: prefix, clock: clock, logger: logger, slots: make(map[string]*Slot)}
}

// ForKey returns the slot for key, creating it on first use.
func (group *Group) ForKey(key string) *Slot {
	group.mutex.Lock()
	defer group.mutex.Unlock()
	slot, exists := group.slots[key]
	if !exists {
		slot = NewSlot(group.prefix+"."+key, group.clock, group.logger)
		group.slots[key] = slot
	}
	return slot
}

// Drop forgets the slot for key, for deleted calendars.
func (group *Group) Drop(key string) {
	group.mutex.Lock()
	defer group.mutex.Unlock()
	delete(group.slots, key)
}
