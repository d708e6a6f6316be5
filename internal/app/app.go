package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"relay-chat/internal/chat"
	"relay-chat/internal/config"
	"relay-chat/internal/db"
	myMiddleware "relay-chat/internal/middleware"
	"relay-chat/internal/store"
	"relay-chat/internal/user"
)

type App struct {
	cfg    *config.Config
	store  *store.Store
	Users  *user.Service
	Hub    *chat.Hub
	router chi.Router
}

// NewPersister opens the state backend selected by cfg.StoreDriver.
func NewPersister(ctx context.Context, cfg *config.Config) (store.Persister, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return store.Memory{}, nil

	case config.DriverFile:
		return store.NewFile(cfg.DBFile), nil

	case config.DriverRedis:
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		if _, err := redisClient.Ping(ctx).Result(); err != nil {
			redisClient.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		log.Println("✅ Connected to Redis")
		return store.NewRedis(redisClient, cfg.RedisKey), nil

	case config.DriverPostgres:
		database, err := db.NewDatabase(cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		log.Println("✅ Connected to PostgreSQL")
		return newSQLPersister(database)

	case config.DriverSQLite:
		database, err := db.NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		log.Println("✅ Opened SQLite")
		return newSQLPersister(database)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func newSQLPersister(database *db.Database) (store.Persister, error) {
	p, err := store.NewSQL(database)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("database schema: %w", err)
	}
	log.Println("✅ Database Schema Initialized")
	return p, nil
}

// New builds the stores, services and routes.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	persister, err := NewPersister(ctx, cfg)
	if err != nil {
		return nil, err
	}
	state, err := store.Open(ctx, persister)
	if err != nil {
		persister.Close()
		return nil, err
	}
	log.Printf("✅ State loaded (%s)", cfg.StoreDriver)

	if cfg.UsesDevSecret() {
		log.Println("⚠️ JWT_SECRET is not set; using the development secret")
	}

	// 1. Account store
	userRepo := user.NewRepository(state)
	userService := user.NewService(userRepo, user.Options{
		JWTSecret:         cfg.JWTSecret,
		BcryptCost:        cfg.BcryptCost,
		MinPasswordLength: cfg.MinPasswordLength,
	})
	userHandler := user.NewHandler(userService)

	// 2. Chat: groups, messages, router
	groups := chat.NewGroupRegistry(state)
	messages := chat.NewMessageStore(state, groups)
	hub := chat.NewHub(userService, messages, groups)
	chatHandler := chat.NewHandler(hub, userService, messages, groups)

	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public Routes
	r.Post("/api/register", userHandler.Register)
	r.Post("/api/login", userHandler.Login)
	r.Get("/ws", chatHandler.ServeWs)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/api/users/search", userHandler.SearchUsers)
		r.Get("/api/messages", chatHandler.GetChatHistory)
		r.Get("/api/groups", chatHandler.ListGroups)
	})

	r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))

	return &App{
		cfg:    cfg,
		store:  state,
		Users:  userService,
		Hub:    hub,
		router: r,
	}, nil
}

func (a *App) Router() http.Handler {
	return a.router
}

// Run serves until ctx is cancelled, then drains HTTP and stops the hub.
func (a *App) Run(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go a.Hub.Run(hubCtx)

	srv := &http.Server{
		Addr:         a.cfg.Addr,
		Handler:      a.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("🚀 Server starting on %s", a.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("Gracefully shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)

	stopHub()
	<-a.Hub.Done()

	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	return err
}

func (a *App) Close() error {
	return a.store.Close()
}
