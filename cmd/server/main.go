package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"buildsmart/backend/internal/cache"
	"buildsmart/backend/internal/config"
	"buildsmart/backend/internal/dispatch"
	"buildsmart/backend/internal/httpapi"
	"buildsmart/backend/internal/invoice"
	"buildsmart/backend/internal/license"
	"buildsmart/backend/internal/notify"
	"buildsmart/backend/internal/service"
	"buildsmart/backend/internal/store"
	"buildsmart/backend/internal/store/memory"
	pgstore "buildsmart/backend/internal/store/postgres"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal("invalid security configuration", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 3)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, cfg.Settings())
		if err != nil {
			logger.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded(cfg.Settings())
		logger.Info("repository: in-memory")
	}

	reportCache := cache.ReportCache(cache.NoopReportCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using noop report cache", zap.Error(err))
		} else {
			reportCache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("report cache: redis")
		}
	} else {
		logger.Info("report cache: noop")
	}

	licenses, err := license.Open(ctx, cfg.LicensePath, cfg.LicenseSecret, cfg.TrialDays)
	if err != nil {
		logger.Fatal("license store unavailable", zap.Error(err))
	}
	closers = append(closers, licenses.Close)

	invoices, err := invoice.NewFileGenerator(cfg.InvoiceDir)
	if err != nil {
		logger.Fatal("invoice directory unavailable", zap.Error(err))
	}

	notifier := notify.Notifier(notify.Noop{})
	if cfg.WhatsAppGatewayURL != "" {
		notifier = notify.NewGateway(cfg.WhatsAppGatewayURL)
		logger.Info("notifier: whatsapp gateway", zap.String("url", cfg.WhatsAppGatewayURL))
	} else {
		logger.Info("notifier: noop")
	}

	svc := service.New(repo, reportCache, logger.Named("service"), time.Duration(cfg.ReportTTLSeconds)*time.Second)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, cfg.ManagerPIN, repo)
	api := httpapi.New(svc, auth, licenses, cfg.AllowedOrigin, logger.Named("http"))

	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	dispatcher := dispatch.New(repo, invoices, notifier, logger.Named("dispatch"),
		time.Duration(cfg.DispatchIntervalSecs)*time.Second, cfg.DispatchMaxAttempts)
	go dispatcher.Run(dispatchCtx)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("POS backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	stopDispatch()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.ManagerPIN) < 6 {
		return fmt.Errorf("MANAGER_PIN must be set and at least 6 digits")
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects PINs that are all the same digit,
// sequential (ascending or descending), or from a known-weak list.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"123456": true, "654321": true, "000000": true, "111111": true,
		"222222": true, "333333": true, "444444": true, "555555": true,
		"666666": true, "777777": true, "888888": true, "999999": true,
		"121212": true, "112233": true, "123123": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	// Reject all-same-digit PINs.
	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	// Reject ascending or descending sequential PINs (e.g. 123456, 987654).
	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}

	return nil
}
