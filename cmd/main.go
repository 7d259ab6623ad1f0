package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexizher/onboarding-back-sub000/config"
	"github.com/alexizher/onboarding-back-sub000/db"
	"github.com/alexizher/onboarding-back-sub000/internal/audit"
	"github.com/alexizher/onboarding-back-sub000/internal/auth/domain"
	"github.com/alexizher/onboarding-back-sub000/internal/auth/handler"
	"github.com/alexizher/onboarding-back-sub000/internal/auth/policy"
	repo "github.com/alexizher/onboarding-back-sub000/internal/auth/repository/postgres"
	"github.com/alexizher/onboarding-back-sub000/internal/auth/service"
	"github.com/alexizher/onboarding-back-sub000/internal/notify"
	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPostgresPool(ctx, cfg.DBURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	if err := db.RunMigrations(cfg.DBURL, "db/migrations"); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	clock := domain.SystemClock{}
	policies := policy.Default()

	userRepo := repo.NewUserRepository(pool)
	sessionRepo := repo.NewSessionRepository(pool)
	refreshRepo := repo.NewRefreshTokenRepository(pool)
	revocationRepo := repo.NewRevocationRepository(pool)
	attemptRepo := repo.NewLoginAttemptRepository(pool)
	resetRepo := repo.NewResetTokenRepository(pool)
	eventRepo := repo.NewSecurityEventRepository(pool)

	auditor := audit.NewDispatcher(audit.Config{
		Enabled:    true,
		BufferSize: cfg.AuditBufferSize,
		DropIfFull: true,
	}, service.NewPersistedSink(eventRepo, clock))
	defer auditor.Close()

	bus := notify.NewBus()

	tokenService := service.NewTokenService(cfg.AccessTokenSecret, cfg.FingerprintKey,
		cfg.AccessTokenExpiry, revocationRepo, policies, clock)
	sessionService := service.NewSessionService(sessionRepo, cfg.MaxConcurrentSessions,
		cfg.AccessTokenExpiry, cfg.SessionInactivityTimeout, clock, auditor, bus)
	refreshService := service.NewRefreshService(refreshRepo, cfg.FingerprintKey,
		cfg.RefreshTokenExpiry, cfg.MaxActiveRefreshTokens, clock)
	lockoutService := service.NewLockoutService(userRepo, cfg.LockoutThreshold,
		cfg.LockoutMaxLevel, clock, auditor)
	throttleService := service.NewThrottleService(attemptRepo, cfg.AttemptWindow,
		cfg.CaptchaThreshold, cfg.IPBlockThreshold, cfg.EmailBlockThreshold, clock)
	resetService := service.NewResetService(userRepo, resetRepo, cfg.ResetTokenExpiry,
		cfg.ResetMaxPerWindow, cfg.ResetIssueWindow, cfg.ResetMaxFailedAttempts,
		cfg.ResetCooldown, clock, auditor)
	userService := service.NewUserService(userRepo, tokenService, sessionService,
		refreshService, lockoutService, throttleService, resetService, auditor, clock)

	sweeper := service.NewSweeper(sessionService, throttleService, resetService,
		refreshRepo, revocationRepo, eventRepo, cfg.SweepInterval, cfg.AccessTokenExpiry,
		cfg.AttemptRetention, cfg.EventRetention, clock)
	go sweeper.Run(ctx)

	authHandler := handler.NewAuthHandler(userService)
	securityHandler := handler.NewSecurityHandler(userService, cfg)
	middleware := handler.NewAuthMiddleware(tokenService, sessionService, policies)

	app := fiber.New()
	handler.RegisterRoutes(app, authHandler, securityHandler, middleware)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("server: %v", err)
		}
	}()
	log.Printf("listening on :%s", cfg.Port)

	<-ctx.Done()
	log.Println("shutting down")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
