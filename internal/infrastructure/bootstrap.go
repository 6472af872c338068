package infrastructure

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"loyalpay/internal/config"
	"loyalpay/internal/repository"
	"loyalpay/internal/service"
	transportAMQP "loyalpay/internal/transport/amqp"
	transportGRPC "loyalpay/internal/transport/grpc"
	transportHTTP "loyalpay/internal/transport/http"
	transportNATS "loyalpay/internal/transport/nats"
)

// Bootstrap connects the configured store and bus and wires up the application.
// Returns the App, a cleanup function, or an error.
func Bootstrap(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	var cleanupFns []func()

	// ── Store ──────────────────────────────────────────────────────────────────
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanupFns = append(cleanupFns, closeStore)

	// ── Bus ────────────────────────────────────────────────────────────────────
	var bus repository.MessageBus = repository.NopBus{}
	var nc *nats.Conn

	switch cfg.BusProvider {
	case "nats":
		nc, err = connectNats(cfg.NatsAddr())
		if err != nil {
			return nil, runCleanup(cleanupFns), fmt.Errorf("connect nats: %w", err)
		}
		bus = transportNATS.NewBus(nc)
		cleanupFns = append(cleanupFns, nc.Close)

	case "amqp":
		amqpBus, err := transportAMQP.NewBus(cfg.AMQPURI)
		if err != nil {
			return nil, runCleanup(cleanupFns), err
		}
		bus = amqpBus
		cleanupFns = append(cleanupFns, amqpBus.Close)
	}

	svc := service.NewPayments(store, bus, cfg.MaxQRBytes)

	// ── Transports ─────────────────────────────────────────────────────────────
	var servers []Server
	if nc != nil {
		// NATS also serves payment requests
		servers = append(servers, transportNATS.NewHandler(svc, nc))
	}
	if addr, apiErr := cfg.ApiAddr(); apiErr == nil {
		servers = append(servers, transportHTTP.NewServer(addr, svc, cfg.CORSOrigins))
	} else {
		slog.Info(apiErr.Error())
	}
	if addr, grpcErr := cfg.GRPCAddr(); grpcErr == nil {
		servers = append(servers, transportGRPC.NewServer(addr, svc))
	}

	if len(servers) == 0 {
		return nil, runCleanup(cleanupFns), fmt.Errorf("no transport enabled: set LOYALPAY_API_ENABLED, LOYALPAY_GRPC_PORT or use the nats bus")
	}

	slog.Info("application wired",
		"store", cfg.StoreProvider,
		"bus", cfg.BusProvider,
		"servers", len(servers),
	)
	return NewApp(servers), runCleanup(cleanupFns), nil
}

// openStore connects the backend named by cfg.StoreProvider and returns it
// with a function that releases its connections.
func openStore(ctx context.Context, cfg *config.Config) (repository.LedgerStore, func(), error) {
	switch cfg.StoreProvider {
	case "postgres":
		db, err := connectPostgres(ctx, cfg.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		return repository.NewPostgresStore(db), db.Close, nil

	case "mongo":
		client, err := connectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		disconnect := func() { _ = client.Disconnect(context.Background()) }
		store := repository.NewMongoStore(client, cfg.MongoDB)
		if err := store.EnsureIndexes(ctx); err != nil {
			disconnect()
			return nil, nil, err
		}
		return store, disconnect, nil

	case "redis":
		rdb, err := connectRedis(ctx, cfg.RedisAddr(), cfg.RedisPass)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return repository.NewRedisStore(rdb, cfg.TxMaxRetries), func() { _ = rdb.Close() }, nil

	case "bolt":
		store, err := repository.NewBoltStore(cfg.BoltPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open bolt: %w", err)
		}
		return store, func() { _ = store.Close() }, nil

	case "memory":
		slog.Warn("using in-memory store, data is lost on exit")
		return repository.NewMemoryStore(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store provider %q", cfg.StoreProvider)
}

// runCleanup returns a single function that calls all cleanup functions in reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
