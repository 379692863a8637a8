package main

// wiring.go — construcción de adapters a partir de la config. Los subcomandos
// solo combinan estas piezas.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/momentumbot/internal/adapters/binance"
	"github.com/alejandrodnm/momentumbot/internal/adapters/cache"
	"github.com/alejandrodnm/momentumbot/internal/adapters/clickhouse"
	"github.com/alejandrodnm/momentumbot/internal/adapters/postgres"
	"github.com/alejandrodnm/momentumbot/internal/adapters/storage"
	"github.com/alejandrodnm/momentumbot/internal/metrics"
	"github.com/alejandrodnm/momentumbot/internal/ports"
)

const (
	sourceBinance    = "binance"
	sourceClickHouse = "clickhouse"
	dateLayout       = "2006-01-02"
)

var errNoArchive = errors.New("archive.clickhouse_dsn is not configured")

// botStore es lo que ofrecen los dos backends: estado live y checkpoints.
type botStore interface {
	ports.Storage
	ports.SweepStore
	LatestSweepID(ctx context.Context) (string, error)
}

func openStore(ctx context.Context) (botStore, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		s, err := postgres.New(ctx, cfg.Storage.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite", "":
		s, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("openStore: unknown storage driver %q", cfg.Storage.Driver)
	}
}

func newExchange() *binance.Client {
	return binance.NewClient(binance.Config{
		BaseURL:    cfg.Exchange.BaseURL,
		APIKey:     cfg.Exchange.APIKey,
		APISecret:  cfg.Exchange.APISecret,
		Timeout:    cfg.RequestTimeout(),
		MaxRetries: cfg.Exchange.MaxRetries,
	})
}

// marketData envuelve el cliente en la caché Redis si está configurada.
// Si Redis no responde se sigue sin caché.
func marketData(ctx context.Context, client *binance.Client, m *metrics.Collectors) (ports.MarketDataSource, func()) {
	if cfg.Cache.RedisAddr == "" {
		return client, func() {}
	}
	rdb, err := cache.NewRedisClient(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
	if err != nil {
		slog.Warn("redis unavailable, running without candle cache", "addr", cfg.Cache.RedisAddr, "err", err)
		return client, func() {}
	}
	slog.Info("candle cache enabled", "addr", cfg.Cache.RedisAddr, "ttl", cfg.CacheTTL())
	return cache.New(rdb, client, cfg.CacheTTL(), m), func() { _ = rdb.Close() }
}

func openArchive(ctx context.Context) (*clickhouse.Archive, error) {
	if cfg.Archive.ClickHouseDSN == "" {
		return nil, errNoArchive
	}
	return clickhouse.New(ctx, cfg.Archive.ClickHouseDSN)
}

// candleHistory devuelve la fuente de velas históricas para replay.
func candleHistory(ctx context.Context, source string) (ports.CandleHistory, func(), error) {
	switch source {
	case sourceBinance, "":
		return newExchange(), func() {}, nil
	case sourceClickHouse:
		a, err := openArchive(ctx)
		if err != nil {
			return nil, nil, err
		}
		return a, func() { _ = a.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("candleHistory: unknown source %q (binance|clickhouse)", source)
	}
}

// timeRange resuelve --from/--to/--days. Sin --to el rango acaba ahora.
func timeRange(from, to string, days int) (time.Time, time.Time, error) {
	end := time.Now().UTC()
	if to != "" {
		t, err := time.Parse(dateLayout, to)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("timeRange: --to: %w", err)
		}
		end = t.Add(24*time.Hour - time.Nanosecond)
	}
	if from != "" {
		start, err := time.Parse(dateLayout, from)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("timeRange: --from: %w", err)
		}
		if !start.Before(end) {
			return time.Time{}, time.Time{}, fmt.Errorf("timeRange: --from %s is not before --to", from)
		}
		return start, end, nil
	}
	if days <= 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("timeRange: --days must be positive, got %d", days)
	}
	return end.Add(-time.Duration(days) * 24 * time.Hour), end, nil
}

// serveMetrics arranca el servidor de métricas en background si hay addr.
func serveMetrics(ctx context.Context, m *metrics.Collectors, status metrics.StatusFunc) {
	if cfg.Metrics.Addr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, cfg.Metrics.Addr, metrics.NewRouter(m, status)); err != nil {
			slog.Error("metrics server failed", "err", err)
		}
	}()
}
