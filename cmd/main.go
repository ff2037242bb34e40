package main

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

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/Dosada05/pong-tournament/config"
	"github.com/Dosada05/pong-tournament/db"
	"github.com/Dosada05/pong-tournament/game"
	"github.com/Dosada05/pong-tournament/handlers"
	"github.com/Dosada05/pong-tournament/realtime"
	"github.com/Dosada05/pong-tournament/repositories"
	api "github.com/Dosada05/pong-tournament/routes"
	"github.com/Dosada05/pong-tournament/scheduler"
	"github.com/Dosada05/pong-tournament/services"
	"github.com/Dosada05/pong-tournament/storage"
)

const (
	shutdownTimeout = 15 * time.Second
	roundLockTTL    = 30 * time.Second
	roundLockRetry  = 50 * time.Millisecond
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 10*time.Second)
	err = db.Migrate(migrateCtx, dbConn)
	cancelMigrate()
	if err != nil {
		logger.Error("failed to apply database schema", slog.Any("error", err))
		os.Exit(1)
	}

	clock := clockwork.NewRealClock()

	// Блокировка генерации раундов: Redis, если настроен, иначе в памяти процесса
	locker := services.NewMemoryLocker()
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancelPing()
		if err != nil {
			logger.Error("failed to connect to redis", slog.String("addr", cfg.RedisAddr), slog.Any("error", err))
			os.Exit(1)
		}
		defer redisClient.Close()
		locker = services.NewRedisLocker(redisClient, roundLockTTL, roundLockRetry, logger)
		logger.Info("redis round locker enabled", slog.String("addr", cfg.RedisAddr))
	}

	// Архив сетки в Cloudflare R2 (необязательно)
	var archiver services.BracketArchiver
	if cfg.R2Enabled() {
		uploader, err := storage.NewCloudflareR2Uploader(context.Background(), storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		archiver = services.NewBracketArchiver(uploader)
		logger.Info("Cloudflare R2 bracket archive enabled")
	}

	// Инициализация репозиториев
	gameRepo := repositories.NewPostgresGameRepository(dbConn)
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	sink := services.NewPersistenceSink(dbConn, gameRepo, tournamentRepo, logger)

	// Инициализация сервисов
	hub := realtime.NewHub(clock, logger)
	engine := game.NewEngine(game.Config{
		TickRate:      cfg.TickRateHz,
		MaxScore:      cfg.MaxScore,
		FinishedGrace: cfg.FinishedGrace,
		IdleTimeout:   cfg.IdleTimeout,
	}, clock, logger)
	identities := services.NewIdentityResolver(cfg.JWTSecretKey, clock, logger)

	matchService := services.NewMatchService(engine, hub, sink, cfg.PersistTimeout, logger)
	tournamentService := services.NewTournamentService(services.TournamentConfig{
		ReadyTimeout:    cfg.ReadyTimeout,
		LaunchCountdown: cfg.LaunchCountdown,
		PersistTimeout:  cfg.PersistTimeout,
	}, services.TournamentDeps{
		Launcher:   matchService,
		Notifier:   hub,
		Directory:  services.NewParticipantDirectory(),
		Identities: identities,
		Locker:     locker,
		Sink:       sink,
		Archiver:   archiver,
		Clock:      clock,
		Logger:     logger,
	})
	matchService.AttachTournaments(tournamentService)
	dispatcher := services.NewDispatcher(hub, matchService, tournamentService, identities, logger)
	logger.Info("services initialized")

	// Периодические задачи: рассылка состояний, финализация матчей, дедлайны готовности
	jobs, err := scheduler.New(scheduler.Config{
		BroadcastInterval: time.Second / time.Duration(cfg.BroadcastRateHz),
		DrainInterval:     cfg.DrainInterval,
		DeadlineInterval:  cfg.DeadlineInterval,
	}, matchService, tournamentService, clock, logger)
	if err != nil {
		logger.Error("failed to create scheduler", slog.Any("error", err))
		os.Exit(1)
	}
	jobs.Start()
	logger.Info("scheduler started")

	// Инициализация обработчиков HTTP
	healthHandler := handlers.NewHealthHandler(dbConn, hub)
	tournamentHandler := handlers.NewTournamentHandler(tournamentService)
	statsHandler := handlers.NewStatsHandler(services.NewStatsService(gameRepo, tournamentRepo))
	webSocketHandler := handlers.NewWebSocketHandler(hub, dispatcher, identities, cfg.AllowedOrigins, logger)

	// Настройка маршрутизатора
	router := chi.NewRouter()
	api.SetupRoutes(router, identities, cfg.AllowedOrigins, healthHandler, tournamentHandler, statsHandler, webSocketHandler, logger)
	logger.Info("routes configured")

	// Настройка и запуск HTTP-сервера. WriteTimeout не задаём: websocket-соединения долгоживущие.
	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
		ErrorLog:    slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			exitCode = 1
		} else {
			logger.Info("server stopped gracefully")
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			exitCode = 1
		} else {
			logger.Info("server shutdown complete")
		}
	}

	if err := jobs.Stop(); err != nil {
		logger.Error("failed to stop scheduler", slog.Any("error", err))
	}
	logger.Info("application exited")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
