package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"moviebox/internal/config"
	"moviebox/internal/db"
	"moviebox/internal/identity"
	"moviebox/internal/localcache"
	"moviebox/internal/metrics"
	"moviebox/internal/repository"
	"moviebox/internal/service"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.ValidateClient(); err != nil {
		log.Fatal(err)
	}

	logger := newLogger(cfg.LogDebug)
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg, "moviebox")
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()
	if err := db.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	store, closeStore, err := newCacheStore(cfg)
	if err != nil {
		log.Fatalf("local cache: %v", err)
	}
	defer closeStore()

	users := repository.NewPgUserRepository(pool)
	sessions := repository.NewPgSessionRepository(pool)
	prefs := repository.NewPgPreferencesRepository(pool)
	profiles := repository.NewPgProfileRepository(pool)
	movies := repository.NewPgSavedMovieRepository(pool)

	credentials := identity.NewClient(cfg.IdentityBaseURL, &http.Client{Timeout: cfg.RemoteTimeout}, store)
	manager := service.NewSessionManager(logger, credentials, users, sessions, localcache.New(store), metrics.Nop{},
		service.SessionManagerConfig{SessionTTL: cfg.SessionTTL, RemoteTimeout: cfg.RemoteTimeout})

	a := &app{
		logger:   logger,
		in:       newPrompter(os.Stdin, os.Stdout),
		out:      os.Stdout,
		manager:  manager,
		accounts: service.NewAccountService(logger, manager, credentials, users, sessions, prefs, profiles, movies, cfg.RemoteTimeout),
		saved:    service.NewSavedMoviesService(logger, manager, movies, cfg.RemoteTimeout),
		interval: cfg.SessionValidateInterval,
	}

	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger solo muestra warnings salvo con LOG_DEBUG; stdout queda para la salida de los comandos.
func newLogger(debug bool) *zap.Logger {
	if debug {
		logger, err := zap.NewDevelopment()
		if err == nil {
			return logger
		}
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func newCacheStore(cfg *config.Config) (localcache.Store, func(), error) {
	switch cfg.CacheBackend {
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, nil, fmt.Errorf("CACHE_BACKEND=redis requires REDIS_ADDR")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return localcache.NewRedisStore(client, ""), func() { _ = client.Close() }, nil
	case "memory":
		return localcache.NewMemoryStore(), func() {}, nil
	default:
		fs, err := localcache.NewFileStore(cfg.CachePath)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: moviebox <command> [args]

commands:
  signup <full name> <email>    create an account (password is prompted)
  login <email>                 sign in (password is prompted)
  logout                        sign out of this device
  status                        validate the current session
  whoami                        show the cached user
  refresh                       re-check the session with the identity provider
  sessions                      list active sessions
  revoke <session id>           revoke one of your sessions
  cleanup                       purge expired session records
  passwd                        change your password
  prefs [key=value ...|reset]   show or update preferences
  profile [key=value ...]       show or update your profile
  clear-data                    reset preferences and profile
  save <movie id> <title> [poster path]
  unsave <movie id>
  saved                         list saved movies
  export                        print your data as JSON
  delete-account                delete your data and sign out
  watch                         keep the session validated until interrupted`)
}
