package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gestaozabele/academico/internal/app"
	"github.com/gestaozabele/academico/internal/auth"
	"github.com/gestaozabele/academico/internal/config"
	internalhttp "github.com/gestaozabele/academico/internal/http"
	"github.com/gestaozabele/academico/internal/identity"
	"github.com/gestaozabele/academico/internal/mail"
	"github.com/gestaozabele/academico/internal/metrics"
	"github.com/gestaozabele/academico/internal/reference"
	"github.com/gestaozabele/academico/internal/service"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("api encerrada com erro")
	}
}

func run() error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Open(ctx, cfg, log.Logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewCollector(registry)

	referenceStore := reference.NewRepository(rt.Pool)
	engine := reference.NewEngine(referenceStore, rt.Bus, log.Logger, reference.WithMetrics(recorder))
	if n, err := engine.Reconcile(ctx); err != nil {
		log.Warn().Err(err).Msg("reconciliação inicial falhou")
	} else if n > 0 {
		log.Info().Int("attached", n).Msg("departamentos vinculados na reconciliação")
	}
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("replicação: %w", err)
	}
	defer engine.Stop()

	tokens := auth.NewTokenManager(auth.TokenConfig{
		AccessSecret:  cfg.JWTSecret,
		RefreshSecret: cfg.JWTRefreshKey,
		AccessTTL:     cfg.JWTAccessTTL,
		RefreshTTL:    cfg.JWTRefreshTTL,
		RecoveryTTL:   cfg.RecoveryTTL,
		Issuer:        "academico",
	})

	var mailer mail.Mailer = mail.NewLogMailer(log.Logger)
	if cfg.Mail.WebhookURL != "" {
		mailer = mail.NewWebhookMailer(cfg.Mail.WebhookURL, cfg.Mail.From)
	}

	identityStore := identity.NewRepository(rt.Pool)
	identities := identity.NewService(identityStore, rt.IDs, rt.Bus, app.DefaultPasswords(cfg), log.Logger, identity.WithMetrics(recorder))
	authService := service.NewAuthService(identityStore, tokens, mailer, cfg.ResetLinkBase, service.WithAuthMetrics(recorder))
	source := reference.NewSource(referenceStore, rt.Bus, log.Logger)

	checks := map[string]internalhttp.Checker{
		"db": func(ctx context.Context) error { return rt.Pool.Ping(ctx) },
	}
	if rt.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return rt.Redis.Ping(ctx).Err() }
	}

	handler := internalhttp.NewRouter(internalhttp.Options{
		Config:     cfg,
		Tokens:     tokens,
		Auth:       authService,
		Identities: identities,
		References: source,
		Checks:     checks,
		Metrics:    metrics.Handler(registry),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("API ouvindo em :%d", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("encerrando...")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
