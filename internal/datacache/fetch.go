package datacache

import (
	"context"
	"encoding/json"
	"fmt"
)

// Fetch loads url through c and decodes the body into T.
// Decoding happens per caller, so different callers may view the same
// cached payload through different types.
func Fetch[T any](ctx context.Context, c *Cache, url string, opts ...RequestOption) (T, error) {
	var v T
	data, err := c.FetchWithCache(ctx, url, opts...)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decoding %s: %w", url, err)
	}
	return v, nil
}

// DecodeFunc turns a raw body into a caller-specific value.
type DecodeFunc[T any] func(json.RawMessage) (T, error)

// FetchDecode is Fetch with a custom decoder, for payloads that need
// reshaping before use.
func FetchDecode[T any](ctx context.Context, c *Cache, url string, decode DecodeFunc[T], opts ...RequestOption) (T, error) {
	var zero T
	data, err := c.FetchWithCache(ctx, url, opts...)
	if err != nil {
		return zero, err
	}
	v, err := decode(data)
	if err != nil {
		return zero, fmt.Errorf("decoding %s: %w", url, err)
	}
	return v, nil
}
