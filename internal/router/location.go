package router

import (
	"context"
	"net/url"
	"sync"
)

// Location is the playground's addressable location: a history stack of
// URLs with a cursor, the way a browser tab keeps it. Every change of the
// current entry is reported to the change callback.
type Location struct {
	mu       sync.Mutex
	entries  []url.URL
	index    int
	onChange func(ctx context.Context, current url.URL)
}

// NewLocation starts a history holding initial.
func NewLocation(initial url.URL) *Location {
	return &Location{entries: []url.URL{initial}}
}

// Current returns the current entry.
func (l *Location) Current() url.URL {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[l.index]
}

// Push adds u after the current entry and drops any forward history.
func (l *Location) Push(ctx context.Context, u url.URL) {
	l.mu.Lock()
	l.entries = append(l.entries[:l.index+1], u)
	l.index++
	l.mu.Unlock()
	l.notify(ctx, u)
}

// Replace swaps the current entry for u.
func (l *Location) Replace(ctx context.Context, u url.URL) {
	l.mu.Lock()
	l.entries[l.index] = u
	l.mu.Unlock()
	l.notify(ctx, u)
}

// Back moves one entry back. It reports false at the start of the history.
func (l *Location) Back(ctx context.Context) bool {
	return l.move(ctx, -1)
}

// Forward moves one entry forward. It reports false at the end of the history.
func (l *Location) Forward(ctx context.Context) bool {
	return l.move(ctx, 1)
}

// Pop applies a navigation made outside the playground: the current entry
// keeps its path and takes query as its query string.
func (l *Location) Pop(ctx context.Context, query url.Values) {
	l.mu.Lock()
	next := l.entries[l.index]
	next.RawQuery = query.Encode()
	l.entries[l.index] = next
	l.mu.Unlock()
	l.notify(ctx, next)
}

// Len returns the number of history entries.
func (l *Location) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Location) move(ctx context.Context, delta int) bool {
	l.mu.Lock()
	target := l.index + delta
	if target < 0 || target >= len(l.entries) {
		l.mu.Unlock()
		return false
	}
	l.index = target
	current := l.entries[target]
	l.mu.Unlock()
	l.notify(ctx, current)
	return true
}

func (l *Location) setOnChange(fn func(ctx context.Context, current url.URL)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = fn
}

func (l *Location) notify(ctx context.Context, current url.URL) {
	l.mu.Lock()
	fn := l.onChange
	l.mu.Unlock()
	if fn != nil {
		fn(ctx, current)
	}
}
