package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/eclectech/internal/config"
	"github.com/MrWong99/eclectech/internal/events"
	"github.com/MrWong99/eclectech/pkg/store"
	"github.com/MrWong99/eclectech/pkg/store/memstore"
	"github.com/MrWong99/eclectech/pkg/store/postgres"
	"github.com/MrWong99/eclectech/pkg/store/sqlite"
)

// OpenStore opens the cache backend selected by cfg.
func OpenStore(ctx context.Context, cfg config.CacheConfig) (store.KV, error) {
	switch cfg.Backend {
	case config.CacheMemory:
		slog.Warn("rewrite cache is in memory; rewrites are lost on restart")
		return memstore.New(), nil
	case config.CachePostgres:
		kv, err := postgres.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return kv, nil
	case config.CacheSQLite, "":
		path := cfg.Path
		if path == "" {
			path = config.DefaultCachePath
		}
		kv, err := sqlite.Open(path)
		if err != nil {
			return nil, err
		}
		return kv, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

func openPublisher(cfg config.EventsConfig) (events.Publisher, error) {
	if cfg.AMQPURL == "" {
		return events.Nop{}, nil
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = events.DefaultExchange
	}
	pub, err := events.DialAMQP(cfg.AMQPURL, exchange)
	if err != nil {
		return nil, err
	}
	slog.Info("publishing events", "exchange", exchange)
	return pub, nil
}
