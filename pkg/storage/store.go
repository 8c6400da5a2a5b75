package storage

import (
	"context"
	"fmt"
	"log/slog"

	"socialclient/pkg/backend"
	"socialclient/pkg/backend/memstore"
	"socialclient/pkg/backend/mongostore"
	"socialclient/pkg/backend/pgstore"
	"socialclient/pkg/realtime"
	"socialclient/pkg/repository"
)

const (
	DRIVER_MEMORY   = "memory"
	DRIVER_MONGODB  = "mongodb"
	DRIVER_POSTGRES = "postgres"
)

// Options selects and locates the remote data source. Components embed it
// in their weaver configuration.
type Options struct {
	Driver           string `toml:"store_driver"`
	MongoDBAddr      string `toml:"mongodb_address"`
	MongoDBPort      int    `toml:"mongodb_port"`
	MongoDBName      string `toml:"mongodb_database"`
	PostgresURL      string `toml:"postgres_url"`
	RabbitMQAddr     string `toml:"rabbitmq_address"`
	RabbitMQPort     int    `toml:"rabbitmq_port"`
	RabbitMQUser     string `toml:"rabbitmq_user"`
	RabbitMQPassword string `toml:"rabbitmq_password"`
}

// OpenStore connects to the configured driver, applies the unique
// constraints the repositories rely on and wires row changes through
// RabbitMQ when an address is configured. The returned func releases every
// connection opened.
func OpenStore(ctx context.Context, opts Options, logger *slog.Logger) (backend.Store, func(), error) {
	var closers []func()
	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var notifier backend.Notifier = realtime.NewLocal()
	if opts.RabbitMQAddr != "" {
		ch, conn, err := RabbitMQClient(opts.RabbitMQAddr, opts.RabbitMQPort, opts.RabbitMQUser, opts.RabbitMQPassword)
		if err != nil {
			return nil, nil, err
		}
		broker, err := realtime.NewBroker(conn, ch, logger)
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		closers = append(closers, func() { broker.Close() })
		notifier = broker
	}

	switch opts.Driver {
	case "", DRIVER_MEMORY:
		store := memstore.Shared(memstore.WithConstraints(repository.Unique...), memstore.WithNotifier(notifier))
		logger.Info("using in-memory store")
		return store, release, nil

	case DRIVER_MONGODB:
		client, err := MongoDBClient(ctx, opts.MongoDBAddr, opts.MongoDBPort)
		if err != nil {
			release()
			return nil, nil, err
		}
		closers = append(closers, func() { client.Disconnect(context.Background()) })
		store := mongostore.New(client, opts.MongoDBName, notifier)
		for _, c := range repository.Unique {
			if err := store.EnsureUnique(ctx, c.Table, c.Fields...); err != nil {
				release()
				return nil, nil, err
			}
		}
		logger.Info("using mongodb store", "mongodb_addr", opts.MongoDBAddr, "mongodb_port", opts.MongoDBPort, "database", opts.MongoDBName)
		return store, release, nil

	case DRIVER_POSTGRES:
		pool, err := PostgresPool(ctx, opts.PostgresURL)
		if err != nil {
			release()
			return nil, nil, err
		}
		closers = append(closers, pool.Close)
		store := pgstore.New(pool, notifier)
		if err := store.Migrate(ctx); err != nil {
			release()
			return nil, nil, err
		}
		logger.Info("using postgres store")
		return store, release, nil
	}
	release()
	return nil, nil, fmt.Errorf("unknown store driver %q", opts.Driver)
}
