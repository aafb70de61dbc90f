package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/revaluation-service/internal/app"
	"github.com/RubachokBoss/revaluation-service/internal/config"
	"github.com/RubachokBoss/revaluation-service/internal/database"
	"github.com/RubachokBoss/revaluation-service/pkg/logger"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		direction := "up"
		var args []string
		if len(os.Args) > 2 {
			direction = os.Args[2]
			args = os.Args[3:]
		}
		runMigrations(direction, args)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.NewWithConfig(cfg.Logging.Level, cfg.Logging.Pretty, cfg.Logging.NoColor)

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	var db *sql.DB
	if cfg.Database.Driver == config.DriverPostgres {
		db, err = database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		log.Info().Msg("Database connection established")
	}

	application, err := app.New(cfg, log, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application")
	}

	go func() {
		if err := application.Run(); err != nil {
			log.Error().Err(err).Msg("HTTP server stopped unexpectedly")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown gracefully")
	}
}

func runMigrations(direction string, args []string) {
	log := logger.New()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	migrator, err := database.NewMigrator(context.Background(), cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create migrator")
	}

	switch direction {
	case "up":
		if err := migrator.Up(); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
		log.Info().Msg("Migrations applied successfully")
	case "down":
		if err := migrator.Down(); err != nil {
			log.Fatal().Err(err).Msg("Failed to rollback migrations")
		}
		log.Info().Msg("Migrations rolled back successfully")
	case "force":
		forceVersion(log, migrator, args)
	case "version":
		v, dirty, err := migrator.Version()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read migration version")
		}
		log.Info().Uint("version", v).Bool("dirty", dirty).Msg("Current migration version")
	default:
		log.Fatal().Msg("Invalid migration direction. Use 'up', 'down', 'force <version>' or 'version'")
	}
}

func forceVersion(log zerolog.Logger, migrator *database.Migrator, args []string) {
	if len(args) == 0 {
		log.Fatal().Msg("force requires a version")
	}
	version, err := strconv.Atoi(args[0])
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid migration version")
	}
	if err := migrator.Force(version); err != nil {
		log.Fatal().Err(err).Msg("Failed to force migration version")
	}
	log.Info().Int("version", version).Msg("Migration version forced")
}
