package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/shipstore/internal/adapter/handler"
	"github.com/rl1809/shipstore/internal/adapter/storage"
	"github.com/rl1809/shipstore/internal/config"
	"github.com/rl1809/shipstore/internal/core/service"
	"github.com/rl1809/shipstore/internal/logger"
	"github.com/rl1809/shipstore/internal/metrics"
	"github.com/rl1809/shipstore/internal/port"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zl.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg.DB)
	if err != nil {
		zl.Fatal("failed to open store", zap.String("driver", cfg.DB.Driver), zap.Error(err))
	}
	zl.Info("store ready", zap.String("driver", store.Dialect()))

	// Redis is optional; without it request ids are not deduplicated
	var (
		guard port.IdempotencyGuard
		rdb   *redis.Client
	)
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		redisAdapter := storage.NewRedisAdapter(rdb)
		if err := redisAdapter.Ping(ctx); err != nil {
			zl.Fatal("failed to connect redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		guard = redisAdapter
		zl.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	}

	m := metrics.New()
	parts := service.NewPartService(store, zl)
	ledger := service.NewLedgerService(store, guard, cfg.Ledger.MaxAttempts, zl, m)
	services := handler.Services{
		Departments: service.NewDepartmentService(store, zl),
		Parts:       parts,
		Identity:    service.NewIdentityService(store, zl),
		Ledger:      ledger,
		Imports:     service.NewImportService(store, parts, cfg.Import.MaxRows, zl, m),
	}

	var grpcServer *grpc.Server
	if cfg.Server.GRPCPort > 0 {
		grpcServer = grpc.NewServer(grpc.UnaryInterceptor(handler.UnaryInterceptor(zl)))
		handler.RegisterLedgerServer(grpcServer, handler.NewGRPCHandler(ledger, parts))

		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			zl.Fatal("failed to listen", zap.Int("port", cfg.Server.GRPCPort), zap.Error(err))
		}
		go func() {
			zl.Info("gRPC server listening", zap.Int("port", cfg.Server.GRPCPort))
			if err := grpcServer.Serve(lis); err != nil {
				zl.Error("gRPC server error", zap.Error(err))
			}
		}()
	}

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	httpHandler := handler.NewHTTPHandler(services, m, zl, cfg.Import.MaxFileSize, cfg.Import.MaxRows)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: httpHandler.Router(),
	}

	go func() {
		zl.Info("HTTP server listening", zap.Int("port", cfg.Server.HTTPPort))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			zl.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zl.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	zl.Info("HTTP server stopped")

	if grpcServer != nil {
		grpcServer.GracefulStop()
		zl.Info("gRPC server stopped")
	}

	if rdb != nil {
		rdb.Close()
	}
	store.Close()
	zl.Info("connections closed")
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (*storage.SQLStore, error) {
	switch cfg.Driver {
	case config.DriverMySQL:
		return storage.OpenMySQL(ctx, storage.MySQLOptions{
			DSN:             cfg.DSN,
			Addr:            cfg.Addr,
			User:            cfg.User,
			Password:        cfg.Password,
			DBName:          cfg.Name,
			LockTimeout:     cfg.LockTimeout,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		})
	default:
		return storage.OpenSQLite(ctx, storage.SQLiteOptions{
			Path:         cfg.Path,
			LockTimeout:  cfg.LockTimeout,
			MaxOpenConns: cfg.MaxOpenConns,
		})
	}
}
