// Package setting maps URL-style configuration strings onto service
// implementations. Each service package owns a Registry keyed by URL scheme;
// drivers register an Opener for every scheme they serve and callers hand the
// registry a raw settings string such as "redis://localhost:6379/0?ttl=5m".
package setting

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Opener constructs a service instance from a parsed settings URL.
type Opener[T any] func(ctx context.Context, u *URL) (T, error)

// Registry resolves settings URLs to openers by scheme.
type Registry[T any] struct {
	service string

	mu      sync.RWMutex
	openers map[string]Opener[T]
}

// NewRegistry returns an empty registry. The service name is used in error
// messages only ("cache", "pubsub", ...).
func NewRegistry[T any](service string) *Registry[T] {
	return &Registry[T]{
		service: service,
		openers: make(map[string]Opener[T]),
	}
}

// Register binds scheme (and any aliases) to open. Registering a scheme twice
// panics: drivers are wired at init time and a duplicate is a programming
// error, not a runtime condition.
func (r *Registry[T]) Register(open Opener[T], scheme string, aliases ...string) {
	if open == nil {
		panic(fmt.Sprintf("setting: nil opener for %s scheme %q", r.service, scheme))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range append([]string{scheme}, aliases...) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			panic(fmt.Sprintf("setting: empty %s scheme", r.service))
		}
		if _, exists := r.openers[s]; exists {
			panic(fmt.Sprintf("setting: duplicate %s scheme %q", r.service, s))
		}
		r.openers[s] = open
	}
}

// Schemes returns the registered schemes in sorted order.
func (r *Registry[T]) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schemes := make([]string, 0, len(r.openers))
	for s := range r.openers {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	return schemes
}

// Open parses raw and dispatches to the opener registered for its scheme.
func (r *Registry[T]) Open(ctx context.Context, raw string) (T, error) {
	var zero T
	u, err := Parse(raw)
	if err != nil {
		return zero, fmt.Errorf("%s setting: %w", r.service, err)
	}
	r.mu.RLock()
	open, ok := r.openers[u.Scheme()]
	r.mu.RUnlock()
	if !ok {
		return zero, fmt.Errorf("%s setting: scheme %q not supported (have %s)",
			r.service, u.Scheme(), strings.Join(r.Schemes(), ", "))
	}
	svc, err := open(ctx, u)
	if err != nil {
		return zero, err
	}
	if unknown := u.UnconsumedQuery(); len(unknown) > 0 {
		if closer, ok := any(svc).(interface{ Close() error }); ok {
			_ = closer.Close()
		}
		return zero, fmt.Errorf("%s setting: unknown parameter %q for scheme %q",
			r.service, unknown[0], u.Scheme())
	}
	return svc, nil
}
