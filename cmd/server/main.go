package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"

	"github.com/rl1809/warehouse-ledger/internal/adapter/handler"
	"github.com/rl1809/warehouse-ledger/internal/adapter/storage"
	"github.com/rl1809/warehouse-ledger/internal/config"
	"github.com/rl1809/warehouse-ledger/internal/core/service"
	"github.com/rl1809/warehouse-ledger/internal/port"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize event store
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open event store")
	}
	guarded := storage.NewGuardedEventStore(store, storage.BreakerConfig{
		FailureThreshold: cfg.BreakerFailures,
		OpenTimeout:      cfg.BreakerCooldown,
	})

	opts := []service.Option{
		service.WithLogger(log.Logger),
		service.WithCheckpointEvery(cfg.CheckpointEvery),
	}

	// Initialize Redis snapshot cache. A memory store starts empty on every
	// run, so old snapshots would describe events it no longer has.
	var rdb *redis.Client
	if cfg.RedisAddr != "" && cfg.StoreDriver != "memory" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 20,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("failed to connect redis")
		}
		log.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")
		opts = append(opts, service.WithSnapshotCache(storage.NewRedisAdapter(rdb)))
	}

	// Initialize services
	ledger := service.NewInventoryLedger(guarded, opts...)
	presence := service.NewPresenceProjector(guarded, service.WithLogger(log.Logger))

	// Start checkpoint workers
	var wg sync.WaitGroup
	for i := 0; i < cfg.CheckpointWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			checkpointLoop(id, ledger.GetCheckpointQueue(), ledger)
		}(i)
	}
	log.Info().Int("workers", cfg.CheckpointWorkers).Msg("started checkpoint workers")

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	handler.RegisterLedgerServer(grpcServer, handler.NewGRPCHandler(ledger, presence, log.Logger))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.GRPCAddr).Msg("failed to listen")
	}

	go func() {
		log.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC server error")
		}
	}()

	// Initialize HTTP server
	mux := http.NewServeMux()
	handler.NewHTTPHandler(ledger, presence, log.Logger).Routes(mux)

	httpServer := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: cors.New(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Content-Type"},
		}).Handler(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Info().Msg("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Info().Msg("gRPC server stopped")

	// Checkpoint open scopes, then let the workers drain the queue
	if err := ledger.CloseAll(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to checkpoint scopes")
	}
	presence.CloseAll()
	wg.Wait()
	log.Info().Msg("workers stopped")

	if rdb != nil {
		rdb.Close()
	}
	closeStore()
	log.Info().Msg("connections closed")
}

func setupLogger(cfg config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(cfg.Level())
	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
}

func openStore(ctx context.Context, cfg config.Config) (port.EventStore, func(), error) {
	switch cfg.StoreDriver {
	case "memory":
		log.Warn().Msg("using in-memory event store; events are lost on exit")
		return storage.NewMemoryAdapter(), func() {}, nil

	case "mysql":
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, nil, err
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		adapter := storage.NewMySQLAdapter(db)
		if err := adapter.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Info().Msg("connected to mysql")
		return adapter, func() { db.Close() }, nil

	default:
		db, err := storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		adapter := storage.NewSQLiteAdapter(db)
		if err := adapter.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("opened sqlite")
		return adapter, func() { db.Close() }, nil
	}
}

func checkpointLoop(id int, queue <-chan string, ledger *service.InventoryLedger) {
	for scope := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		if err := ledger.Checkpoint(ctx, scope); err != nil {
			log.Error().Err(err).Int("worker", id).Str("scope", scope).Msg("checkpoint failed")
		} else {
			log.Debug().Int("worker", id).Str("scope", scope).Msg("checkpoint saved")
		}

		cancel()
	}
}
