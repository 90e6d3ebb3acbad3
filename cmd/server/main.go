package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iliyamo/clinic-scheduling/internal/auth"
	"github.com/iliyamo/clinic-scheduling/internal/captcha"
	"github.com/iliyamo/clinic-scheduling/internal/config"
	"github.com/iliyamo/clinic-scheduling/internal/database"
	"github.com/iliyamo/clinic-scheduling/internal/handler"
	"github.com/iliyamo/clinic-scheduling/internal/logging"
	"github.com/iliyamo/clinic-scheduling/internal/mail"
	"github.com/iliyamo/clinic-scheduling/internal/middleware"
	"github.com/iliyamo/clinic-scheduling/internal/repository"
	"github.com/iliyamo/clinic-scheduling/internal/router"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	logging.Init(logging.Config{
		Level:     cfg.App.LogLevel,
		Format:    cfg.App.LogFormat,
		Timestamp: true,
		Output:    os.Stderr,
	})

	db, dialect, err := database.Open(cfg.DB)
	if err != nil {
		logging.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	} else if cfg.Redis.Configured() {
		logging.Warn().Str("addr", cfg.Redis.Address()).Msg("redis unreachable, rate limiting in process")
	}

	sender, err := mail.New(cfg.Mail)
	if err != nil {
		logging.Fatal().Err(err).Msg("mail provider")
	}
	httpClient := &http.Client{Timeout: 10 * time.Second}

	users := repository.NewUserRepo(db, dialect)
	resets := repository.NewResetRepo(db, dialect)
	images := repository.NewImageRepo(db, dialect)
	appointments := repository.NewAppointmentRepo(db, dialect)
	bookings := repository.NewBookingRepo(db, dialect)
	stats := repository.NewStatsRepo(db, dialect)
	videos := repository.NewVideoRepo(db, dialect)
	assignments := repository.NewAssignmentRepo(db, dialect)

	// Session tokens are ours; an upstream identity provider is optional
	// and only consulted on sign-up.
	sessions := auth.NewAuthenticator(auth.NewHMACVerifier(cfg.Auth.JWTSecret))
	var upstream auth.Verifier
	if cfg.Auth.JWKSURL != "" {
		upstream = auth.NewJWKSVerifier(auth.NewJWKSCache(cfg.Auth.JWKSURL, httpClient, cfg.Auth.JWKSTTL))
	}

	verbose := !cfg.IsProduction()
	e := router.New(router.Deps{
		Config:       cfg,
		DB:           db,
		Redis:        rdb,
		Auth:         sessions,
		EmailAuth:    sessions.WithEmailFallback(users),
		Metrics:      middleware.NewMetrics(),
		Accounts:     handler.NewAuthHandler(cfg, users, resets, sender, captcha.New(cfg.Captcha, httpClient), upstream),
		Profile:      handler.NewProfileHandler(verbose, users, images),
		Appointments: handler.NewAppointmentHandler(verbose, appointments, images),
		Admin:        handler.NewAdminHandler(verbose, users, appointments, bookings, stats),
		Videos:       handler.NewVideoHandler(verbose, videos, assignments, cfg.Media.MaxVideoMB),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		addr := ":" + cfg.App.Port
		logging.Info().Str("addr", addr).Str("env", cfg.App.Env).Str("db", dialect.String()).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("graceful shutdown")
	}
}
