package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"stockhelper.org/internal/app"
	"stockhelper.org/internal/config"
	"stockhelper.org/internal/migrate"
	"stockhelper.org/internal/obs"
)

const usage = "usage: migrate [--config file] [--dsn dsn] [--driver sqlite|postgres] up|down|status|seed"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = pflag.StringP("config", "c", "", "path to a YAML config file")
		driver     = pflag.String("driver", "", "database driver, overrides the config")
		dsn        = pflag.String("dsn", "", "database DSN, overrides the config")
		timeout    = pflag.Duration("timeout", 30*time.Second, "overall deadline")
	)
	pflag.Parse()
	if pflag.NArg() != 1 {
		return errors.New(usage)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *driver != "" {
		cfg.Database.Driver = *driver
	}
	if *dsn != "" {
		cfg.Database.DSN = *dsn
	}
	if cfg.Database.Driver == config.DriverMemory {
		return errors.New("the memory driver has no schema; pick sqlite or postgres")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logCloser, err := obs.Configure(obs.LogConfig(cfg.Log))
	if err != nil {
		return err
	}
	defer logCloser.Close()
	log := obs.Logger()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, db, err := app.OpenStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	mgr := app.NewMigrator(db)

	switch cmd := pflag.Arg(0); cmd {
	case "up":
		applied, err := mgr.Up(ctx)
		if err != nil {
			return err
		}
		log.Info().Strs("applied", applied).Msg("migrations applied")
	case "down":
		name, err := mgr.Down(ctx)
		if errors.Is(err, migrate.ErrNothingApplied) {
			log.Info().Msg("nothing to roll back")
			return nil
		}
		if err != nil {
			return err
		}
		log.Info().Str("migration", name).Msg("migration rolled back")
	case "status":
		history, err := mgr.Status(ctx)
		if err != nil {
			return err
		}
		for _, item := range history {
			fmt.Println(item)
		}
	case "seed":
		if _, err := mgr.Up(ctx); err != nil {
			return err
		}
		services, err := app.Build(store, db, cfg.Auth)
		if err != nil {
			return err
		}
		written, err := services.Permissions.EnsureCatalog(ctx)
		if err != nil {
			return err
		}
		log.Info().Int("written", written).Msg("built-in catalog seeded")
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
	return nil
}
