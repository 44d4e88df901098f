// Package redisstore provides a playkit.ProductDetailsStore shared between
// processes through Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/appodealstack/playkit"
)

// DefaultTTL bounds how long catalog details are trusted. The manager
// refreshes them on every successful connection.
const DefaultTTL = 24 * time.Hour

// Store keeps product details as JSON values under prefix+productID.
type Store struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix. The default is "playkit:product:".
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithTTL sets the expiry of saved entries. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// New wraps a Redis client.
func New(rdb redis.Cmdable, opts ...Option) *Store {
	s := &Store{rdb: rdb, prefix: "playkit:product:", ttl: DefaultTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(productID string) string {
	return s.prefix + productID
}

func (s *Store) GetProductDetails(ctx context.Context, productID string) (playkit.ProductDetails, error) {
	raw, err := s.rdb.Get(ctx, s.key(productID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return playkit.ProductDetails{}, fmt.Errorf("%w: %s", playkit.ErrProductNotFound, productID)
	}
	if err != nil {
		return playkit.ProductDetails{}, fmt.Errorf("redis get %s: %w", productID, err)
	}

	var d playkit.ProductDetails
	if err := json.Unmarshal(raw, &d); err != nil {
		return playkit.ProductDetails{}, fmt.Errorf("decode product details %s: %w", productID, err)
	}
	return d, nil
}

func (s *Store) SaveProductDetails(ctx context.Context, details playkit.ProductDetails) error {
	if details.ProductID == "" {
		return errors.New("product details without product id")
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encode product details: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(details.ProductID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", details.ProductID, err)
	}
	return nil
}
