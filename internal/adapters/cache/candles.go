// Package cache puts a Redis read-through cache in front of a
// MarketDataSource. Only candles are cached; tickers always hit the source.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/alejandrodnm/momentumbot/internal/domain"
	"github.com/alejandrodnm/momentumbot/internal/metrics"
	"github.com/alejandrodnm/momentumbot/internal/ports"
)

const (
	keyPrefix  = "momentumbot:candles:"
	defaultTTL = 60 * time.Second
)

// CandleCache implements ports.MarketDataSource. Redis failures degrade to
// the underlying source; they are logged, never returned.
type CandleCache struct {
	client  *redis.Client
	source  ports.MarketDataSource
	ttl     time.Duration
	metrics *metrics.Collectors
}

// NewRedisClient abre el cliente redis y hace un PING.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache.NewRedisClient: ping %s: %w", addr, err)
	}
	return client, nil
}

// New envuelve source. ttl <= 0 usa 60s.
func New(client *redis.Client, source ports.MarketDataSource, ttl time.Duration, m *metrics.Collectors) *CandleCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &CandleCache{client: client, source: source, ttl: ttl, metrics: m}
}

// Key devuelve la clave redis de una consulta de velas.
func Key(symbol, interval string, limit int) string {
	return fmt.Sprintf("%s%s:%s:%d", keyPrefix, symbol, interval, limit)
}

func (c *CandleCache) GetRecentCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	key := Key(symbol, interval, limit)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var candles []domain.Candle
		if jerr := json.Unmarshal(data, &candles); jerr == nil {
			c.metrics.CacheLookup(true)
			return candles, nil
		}
		slog.Warn("corrupt candle cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		slog.Warn("candle cache get failed", "key", key, "err", err)
	}
	c.metrics.CacheLookup(false)

	candles, err := c.source.GetRecentCandles(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(candles)
	if err != nil {
		return candles, nil
	}
	if err := c.client.Set(ctx, key, string(payload), c.ttl).Err(); err != nil {
		slog.Warn("candle cache set failed", "key", key, "err", err)
	}
	return candles, nil
}

func (c *CandleCache) GetTicker(ctx context.Context, symbol string) (domain.TickerSnapshot, error) {
	return c.source.GetTicker(ctx, symbol)
}
