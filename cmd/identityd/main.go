package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"moviebox/internal/config"
	"moviebox/internal/db"
	apihttp "moviebox/internal/http"
	"moviebox/internal/metrics"
	"moviebox/internal/repository"
	"moviebox/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}
	if err := cfg.ValidateProvider(); err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	if cfg.LogDebug {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg, "identityd")
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()
	if err := db.EnsureProviderSchema(ctx, pool); err != nil {
		logger.Fatal("ensure schema", zap.Error(err))
	}

	var (
		ledger  service.ProviderSessionLedger
		limiter service.LoginLimiter
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-memory session ledger", zap.Error(err))
		} else {
			ledger = service.NewRedisProviderSessionLedger(redisClient)
			limiter = service.NewRedisLoginLimiter(redisClient, 15*time.Minute, 5)
		}
		cancel()
	}
	if ledger == nil {
		ledger = service.NewMemoryProviderSessionLedger()
		limiter = service.NewLoginLimiter(15*time.Minute, 5)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	accountRepo := repository.NewPgAccountRepository(pool)
	jwtSvc := service.NewJWTService(cfg.JWTSecret, cfg.ProviderSessionTTL, ledger)
	identitySvc := service.NewIdentityService(logger, accountRepo, jwtSvc, limiter, collector)
	identityHandler := apihttp.NewIdentityHandler(logger, identitySvc)
	router := apihttp.NewRouter(logger, identityHandler, metrics.Handler(reg))

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting identity provider", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}
