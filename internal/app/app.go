package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"go-blog-platform/internal/blacklist"
	"go-blog-platform/internal/cache"
	"go-blog-platform/internal/config"
	"go-blog-platform/internal/database"
	"go-blog-platform/internal/event"
	"go-blog-platform/internal/handler"
	"go-blog-platform/internal/middleware"
	"go-blog-platform/internal/model"
	"go-blog-platform/internal/repository"
	"go-blog-platform/internal/router"
	"go-blog-platform/internal/service"
	"go-blog-platform/internal/websocket"
)

type App struct {
	server       *http.Server
	db           *database.DB
	redis        *redis.Client
	cleanupFuncs []func()
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("connecting to PostgreSQL")
	db, err := database.New(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	slog.Info("connecting to Redis", "addr", cfg.RedisAddr)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	pool := db.Pool
	userRepo := repository.NewUserRepository(pool)
	tokenRepo := repository.NewTokenRepository(pool)
	rbacRepo := repository.NewRBACRepository(pool)
	slog.Info("database ready")

	// The watermark must outlive any access token issued before it.
	revocations := blacklist.NewRedisStore(redisClient, cfg.JWTAccessTTL)
	profileCache := cache.New[model.AccessProfile](redisClient, "access:profile", cfg.AccessCacheTTL)

	bus := event.NewBus()
	hub := websocket.NewHub(bus)
	go hub.Run()

	authService, err := service.NewAuthService(cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL, userRepo, tokenRepo, revocations, bus)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize auth service: %w", err)
	}
	authService.SetLockoutPolicy(cfg.LoginMaxAttempts, cfg.LoginLockout)

	accessService := service.NewAccessService(rbacRepo, profileCache)
	roleService := service.NewRoleService(rbacRepo, accessService, bus)
	userService := service.NewUserService(userRepo, authService, accessService, bus)

	guard := middleware.NewAuthMiddleware(authService, revocations, authService, accessService)
	wsHandler := websocket.NewHandler(hub, guard)

	appRouter := router.New(cfg, guard, router.Handlers{
		Auth: handler.NewAuthHandler(authService, accessService),
		Role: handler.NewRoleHandler(roleService),
		User: handler.NewUserHandler(userService, roleService),
	}, wsHandler)

	janitorCtx, janitorCancel := context.WithCancel(context.Background())
	go runTokenJanitor(janitorCtx, tokenRepo)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{
		server: server,
		db:     db,
		redis:  redisClient,
		cleanupFuncs: []func(){
			janitorCancel,
			func() {
				db.Close()
			},
			func() {
				if err := redisClient.Close(); err != nil {
					slog.Warn("redis close failed", "error", err)
				}
			},
		},
	}, nil
}

// runTokenJanitor periodically clears expired refresh tokens so the table
// does not grow without bound.
func runTokenJanitor(ctx context.Context, tokens *repository.TokenRepository) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := tokens.CleanExpired(ctx)
			if err != nil {
				slog.Warn("refresh token cleanup failed", "error", err)
				continue
			}
			if removed > 0 {
				slog.Info("cleaned expired refresh tokens", "removed", removed)
			}
		}
	}
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}

	slog.Info("server stopped")
	return nil
}
