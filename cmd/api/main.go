package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"stockhelper.org/internal/app"
	"stockhelper.org/internal/config"
	"stockhelper.org/internal/httpapi"
	"stockhelper.org/internal/i18n"
	"stockhelper.org/internal/obs"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "stockhelper-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logCloser, err := obs.Configure(obs.LogConfig(cfg.Log))
	if err != nil {
		return err
	}
	defer logCloser.Close()
	obs.Init()
	obs.SetBuildInfo(version, commit)
	log := obs.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer services.Close()

	var tr *i18n.Translator
	if cfg.I18n.Dir != "" {
		tr = i18n.New(cfg.I18n.Dir, cfg.I18n.Base, cfg.I18n.DefaultCulture, i18n.WithRecordMissing(cfg.I18n.RecordMissing))
	}

	api := httpapi.New(httpapi.Deps{
		Permissions:   services.Permissions,
		Users:         services.Users,
		Login:         services.Login,
		Translator:    tr,
		Ready:         services,
		Version:       version,
		RatePerSecond: cfg.HTTP.RatePerSecond,
		RateBurst:     cfg.HTTP.RateBurst,
		MaxBodyBytes:  cfg.HTTP.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().
			Str("version", version).
			Str("addr", srv.Addr).
			Str("driver", cfg.Database.Driver).
			Msg("starting stockhelper-api")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err, ok := <-errc:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("stopped")
	return nil
}
