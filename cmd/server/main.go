package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-platform/internal/config"
	"github.com/ignatzorin/escrow-platform/internal/db"
	httpHandlers "github.com/ignatzorin/escrow-platform/internal/http/handlers"
	httpRouter "github.com/ignatzorin/escrow-platform/internal/http/router"
	"github.com/ignatzorin/escrow-platform/internal/ledger"
	"github.com/ignatzorin/escrow-platform/internal/logger"
	"github.com/ignatzorin/escrow-platform/internal/repository"
	"github.com/ignatzorin/escrow-platform/internal/service"
	"github.com/ignatzorin/escrow-platform/internal/storage"
	"github.com/ignatzorin/escrow-platform/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
		logger.Init(logLevel)
		logger.SetTextFormatter()
	} else {
		logger.Init(logLevel)
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	// Инициализируем вспомогательные сервисы.
	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	evidenceStorage, err := storage.NewEvidenceStorage(cfg.EvidenceStoragePath, cfg.MaxUploadSizeMB)
	if err != nil {
		log.Fatalf("main: не удалось подготовить файловое хранилище: %v", err)
	}

	// Репозитории.
	userRepo := repository.NewUserRepository(dbConn)
	escrowRepo := repository.NewEscrowRepository(dbConn)
	refundRepo := repository.NewRefundRepository(dbConn)
	configRepo := repository.NewConfigRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)

	if err := primeFeeConfig(ctx, configRepo, cfg); err != nil {
		log.Fatalf("main: не удалось инициализировать конфигурацию комиссии: %v", err)
	}

	// Расчётный контур.
	accountLedger := ledger.NewMemoryLedger()

	// Вебсокеты.
	hub := ws.NewHub()
	go hub.Run()

	// Сервисы.
	authService := service.NewAuthService(userRepo, tokenManager)
	notificationService := service.NewNotificationService(notificationRepo, hub)
	escrowService := service.NewEscrowService(escrowRepo, configRepo, accountLedger, notificationService)
	refundService := service.NewRefundService(refundRepo, escrowRepo, configRepo, accountLedger, notificationService)
	adminService := service.NewAdminService(configRepo, notificationService)

	var seedHandler *httpHandlers.SeedHandler
	if cfg.Env == "development" {
		seedService := service.NewSeedService(userRepo, configRepo, accountLedger)
		seedHandler = httpHandlers.NewSeedHandler(seedService)
	}

	// HTTP хэндлеры.
	authHandler := httpHandlers.NewAuthHandler(authService)
	escrowHandler := httpHandlers.NewEscrowHandler(escrowService, refundService)
	refundHandler := httpHandlers.NewRefundHandler(refundService, evidenceStorage)
	adminHandler := httpHandlers.NewAdminHandler(adminService)
	notificationHandler := httpHandlers.NewNotificationHandler(notificationService)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, authHandler, escrowHandler, refundHandler, adminHandler, notificationHandler, wsHandler, healthHandler, seedHandler, tokenManager)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// primeFeeConfig записывает стартовые ставки комиссии, если строка
// конфигурации ещё не создавалась административными операциями.
func primeFeeConfig(ctx context.Context, configs *repository.ConfigRepository, cfg *config.Config) error {
	current, err := configs.Get(ctx)
	if err != nil {
		return err
	}
	if current.AdminID != nil || current.FeeBps != 0 || current.MinFee != 0 {
		return nil
	}

	current.FeeBps = cfg.DefaultFeeBps
	current.MinFee = cfg.DefaultMinFee
	if cfg.DefaultFeeCollector != "" {
		collector, err := uuid.Parse(cfg.DefaultFeeCollector)
		if err != nil {
			return fmt.Errorf("некорректный FEE_COLLECTOR: %w", err)
		}
		current.FeeCollector = &collector
	}
	return configs.Save(ctx, current)
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
