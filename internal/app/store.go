package service

import (
	"context"
	"fmt"

	"github.com/okian/tictac/internal/adapters/repository"
	"github.com/okian/tictac/internal/config"
)

// OpenStore opens the record store selected by cfg.StoreDriver.
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	opts := []repository.Option{
		repository.WithMaxRetries(cfg.TransactMaxRetries),
		repository.WithShardCount(cfg.ShardCount),
	}
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return repository.NewMemoryStore(ctx, opts...), nil
	case config.DriverSQLite:
		s, err := repository.OpenSQLite(ctx, cfg.SQLitePath, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverRedis:
		opts = append(opts, repository.WithKeyPrefix(cfg.RedisPrefix))
		s, err := repository.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStore, cfg.StoreDriver)
}

// Options translates cfg into service options. The store is passed separately.
func Options(cfg *config.Config) []Option {
	return []Option{
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.QueueSize),
		WithDedupeSize(cfg.DedupeSize),
		WithCheckinPeriod(cfg.CheckinPeriod()),
		WithMatchingTimeout(cfg.MatchingTimeout()),
		WithReconcileInterval(cfg.ReconcileInterval()),
	}
}
