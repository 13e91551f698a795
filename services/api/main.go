// API-сервис чата: HTTP + WebSocket, Postgres и Redis.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rchat/internal/config"
	"github.com/rchat/internal/handler"
	"github.com/rchat/internal/logger"
	"github.com/rchat/internal/middleware"
	"github.com/rchat/internal/push"
	"github.com/rchat/internal/repository"
	"github.com/rchat/internal/service"
	"github.com/rchat/internal/startup"
	"github.com/rchat/internal/storage"
	"github.com/rchat/internal/storage/memory"
	"github.com/rchat/internal/ws"
	"github.com/rchat/migrations"
)

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL and in-memory session store (no external deps)")
	flag.Parse()

	logger.Info("starting API service")
	cfg := config.Load()

	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if *dev {
		var err error
		embeddedDB, err = startEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 4

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second)
	defer pool.Close()

	runMigrations(pool)
	if *migrate && !*dev {
		return
	}
	logger.Info("database connected, migrations applied")

	var store storage.SessionSecretStore
	if *dev {
		store = memory.New()
		logger.Info("using in-memory session store (-dev)")
	} else {
		store = startup.ConnectRedisWithRetry(cfg.Redis.URL, 60*time.Second)
		logger.Info("redis connected")
	}
	defer store.Close()

	userRepo := repository.NewUserRepository(pool)
	chatRepo := repository.NewChatRepository(pool)
	msgRepo := repository.NewMessageRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	pushRepo := repository.NewPushRepository(pool)
	media := repository.NewMediaResolver(cfg.MediaBaseURL)

	notifier := push.NewNotifier(pushRepo, cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey)
	if !notifier.Enabled() {
		logger.Info("VAPID keys not configured — web push disabled")
	}

	registry := ws.NewRegistry()
	dispatcher := service.NewDispatcher(chatRepo, msgRepo, userRepo, media, registry, notifier)
	tracker := service.NewReadTracker(chatRepo, msgRepo, registry)
	membership := service.NewMembership(chatRepo, userRepo, registry, dispatcher)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	hub := ws.NewHub(registry, dispatcher, tracker, cfg.MaxWSConnections)

	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	authH := handler.NewAuthHandler(userRepo, sessionRepo, pushRepo, store)
	chatH := handler.NewChatHandler(chatRepo, userRepo, dispatcher, membership)
	msgH := handler.NewMessageHandler(chatRepo, msgRepo, dispatcher, tracker)
	wsH := handler.NewWSHandler(hub, cfg.CORSAllowedOrigins)
	pushH := handler.NewPushHandler(pushRepo, cfg.VAPIDPublicKey)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	// Не сжимать WebSocket — иначе ResponseWriter не реализует http.Hijacker и upgrade даёт 500.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(middleware.RateLimitAPI)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Session-Id", "X-Timestamp", "X-Signature"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Get("/api/push/vapid-public", pushH.VAPIDPublic)
	r.Post("/api/auth/register", authH.Register)
	r.Post("/api/auth/login", authH.Login)

	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionAuth(sessionRepo, store))
		r.Post("/api/auth/logout", authH.Logout)
		r.Get("/api/users/me", authH.Me)
		r.Get("/api/chats", chatH.ListChats)
		r.Post("/api/chats", chatH.CreateGroup)
		r.Post("/api/chats/private", chatH.CreatePrivate)
		r.Get("/api/chats/{chatID}/participants", chatH.GetParticipants)
		r.Post("/api/chats/{chatID}/participants", chatH.SetRole)
		r.Delete("/api/chats/{chatID}/participants/{userID}", chatH.RemoveParticipant)
		r.Post("/api/chats/{chatID}/leave", chatH.Leave)
		r.Get("/api/chats/{chatID}/messages", msgH.ListMessages)
		r.Post("/api/messages", msgH.SendMessage)
		r.Post("/api/push/subscribe", pushH.Subscribe)
		r.Delete("/api/push/subscribe", pushH.Unsubscribe)
		r.Get("/ws", wsH.ServeWS)
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

// runMigrations применяет встроенные .sql миграции по порядку имён.
func runMigrations(pool *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entries, err := migrations.Files.ReadDir(".")
	if err != nil {
		logger.Errorf("read migrations: %v", err)
		os.Exit(1)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := migrations.Files.ReadFile(name)
		if err != nil {
			logger.Errorf("read migration %s: %v", name, err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			logger.Errorf("run migration %s: %v", name, err)
			os.Exit(1)
		}
	}
	logger.Info("migrations applied")
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "rchat"
		password = "rchat_secret"
		database = "rchat"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
