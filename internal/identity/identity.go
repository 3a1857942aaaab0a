// Package identity owns the sync identifier: the shared code that places a
// device in a sync group. An empty identifier means local-only mode.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// MinLength is the shortest accepted non-empty identifier.
const MinLength = 3

// ErrTooShort is returned for non-empty identifiers shorter than MinLength.
var ErrTooShort = errors.New("sync id too short")

// Store persists the identifier.
type Store interface {
	SyncID() string
	SetSyncID(string) error
}

// Identity holds the current identifier and notifies subscribers on change.
type Identity struct {
	store Store

	mu        sync.Mutex
	current   string
	listeners []func(string)
}

// New loads the current identifier from store.
func New(store Store) *Identity {
	return &Identity{store: store, current: Normalize(store.SyncID())}
}

// Normalize trims surrounding whitespace and upper-cases.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Validate checks a normalized identifier. Empty is valid.
func Validate(s string) error {
	if s == "" {
		return nil
	}
	if len([]rune(s)) < MinLength {
		return fmt.Errorf("%w: %q needs at least %d characters", ErrTooShort, s, MinLength)
	}
	return nil
}

// Set normalizes, validates and persists raw, then notifies subscribers.
// On validation failure nothing changes and nobody is notified. Setting the
// current value again still notifies, which acts as a reconnect.
func (i *Identity) Set(raw string) (string, error) {
	id := Normalize(raw)
	if err := Validate(id); err != nil {
		return "", err
	}
	if err := i.store.SetSyncID(id); err != nil {
		return "", fmt.Errorf("persist sync id: %w", err)
	}

	i.mu.Lock()
	i.current = id
	listeners := append([]func(string){}, i.listeners...)
	i.mu.Unlock()

	for _, fn := range listeners {
		fn(id)
	}
	return id, nil
}

// Clear switches to local-only mode. Remote data is left in place.
func (i *Identity) Clear() error {
	_, err := i.Set("")
	return err
}

// Current returns the active identifier.
func (i *Identity) Current() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.current
}

// LocalOnly reports whether no identifier is set.
func (i *Identity) LocalOnly() bool {
	return i.Current() == ""
}

// OnChange registers fn to be called with every accepted identifier.
func (i *Identity) OnChange(fn func(string)) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.listeners = append(i.listeners, fn)
}
