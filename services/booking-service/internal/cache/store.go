package cache

import (
	"context"
	"errors"
	"time"
)

var ErrMiss = errors.New("cache miss")

// Store holds JSON encoded read models.
type Store interface {
	// Get decodes the value at key into dst, returning ErrMiss when absent.
	Get(ctx context.Context, key string, dst any) error
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
	Invalidate(ctx context.Context, events ...Event) error
}

// Keys flattens the keys of events, dropping duplicates.
func Keys(events ...Event) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, e := range events {
		if e == nil {
			continue
		}
		for _, k := range e.Keys() {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

// ReadThrough returns the cached value at key or loads, stores and returns it.
// Store errors other than a miss are treated as a miss and the set is best effort.
func ReadThrough[T any](ctx context.Context, s Store, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var out T
	if s != nil {
		if err := s.Get(ctx, key, &out); err == nil {
			return out, nil
		}
	}
	out, err := load(ctx)
	if err != nil {
		return out, err
	}
	if s != nil {
		_ = s.Set(ctx, key, out, ttl)
	}
	return out, nil
}
