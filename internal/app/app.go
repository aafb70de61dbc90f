package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/revaluation-service/internal/config"
	"github.com/RubachokBoss/revaluation-service/internal/delivery/httpd"
	"github.com/RubachokBoss/revaluation-service/internal/metrics"
	"github.com/RubachokBoss/revaluation-service/internal/repository"
	"github.com/RubachokBoss/revaluation-service/internal/repository/memory"
	"github.com/RubachokBoss/revaluation-service/internal/service"
	"github.com/RubachokBoss/revaluation-service/internal/service/integration"
)

type App struct {
	server *http.Server
	logger zerolog.Logger
	config *config.Config
	db     *sql.DB
	events integration.EventPublisher
}

type repositories struct {
	regs   repository.RegistrationRepository
	marks  repository.MarksRepository
	finals repository.FinalMarksRepository
	health httpd.Pinger
}

// New wires the service. db may be nil when the memory driver is selected.
func New(cfg *config.Config, log zerolog.Logger, db *sql.DB) (*App, error) {
	m := metrics.New()

	repos := newRepositories(cfg, db, log)

	var events integration.EventPublisher = integration.NoopPublisher{}
	if cfg.RabbitMQ.Enabled {
		publisher, err := integration.NewRabbitMQClient(integration.RabbitMQConfig{
			URL:      cfg.RabbitMQ.URL,
			Exchange: cfg.RabbitMQ.Exchange,
			Queue:    cfg.RabbitMQ.Queue,
		}, m, log)
		if err != nil {
			return nil, err
		}
		events = publisher
	} else {
		log.Warn().Msg("RabbitMQ disabled, workflow events will not be published")
	}

	var receipts integration.ReceiptStorage
	if cfg.Storage.Enabled {
		storage, err := integration.NewMinIOReceiptStorage(integration.StorageConfig{
			Endpoint:        cfg.Storage.Endpoint,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			Bucket:          cfg.Storage.Bucket,
			Region:          cfg.Storage.Region,
			UseSSL:          cfg.Storage.UseSSL,
			ConnectTimeout:  cfg.Storage.ConnectTimeout,
		}, m, log)
		if err != nil {
			_ = events.Close()
			return nil, err
		}
		receipts = storage
	}

	examClient := integration.NewExamClient(clientConfig(cfg.Services.Exams), m, log)
	feeClient := integration.NewFeeClient(clientConfig(cfg.Services.Fees), m, log)
	examinerClient := integration.NewExaminerClient(clientConfig(cfg.Services.Examiners), m, log)

	settings := service.Settings{
		FeeTolerance:             cfg.Revaluation.FeeTolerance,
		EvaluationDeadlineOffset: cfg.Revaluation.EvaluationDeadlineOffset,
		ScriptCodePrefix:         cfg.Revaluation.ScriptCodePrefix,
		DefaultPageLimit:         cfg.Revaluation.DefaultPageLimit,
		MaxPageLimit:             cfg.Revaluation.MaxPageLimit,
		ReceiptURLExpiry:         cfg.Revaluation.ReceiptURLExpiry,
	}

	applicationService := service.NewApplicationService(repos.regs, examClient, feeClient, receipts, events, m, settings, log)
	assignmentService := service.NewAssignmentService(repos.regs, examClient, examinerClient, events, m, settings, log)
	evaluationService := service.NewEvaluationService(repos.regs, repos.marks, repos.finals, examClient, events, m, log)
	comparisonService := service.NewComparisonService(repos.regs, repos.finals, examClient, log)
	publishingService := service.NewPublishingService(repos.regs, repos.finals, examClient, events, m, log)
	reportService := service.NewReportService(repos.regs, repos.finals, log)

	handler := httpd.NewHandler(
		applicationService,
		assignmentService,
		evaluationService,
		comparisonService,
		publishingService,
		reportService,
		m,
		log,
	)
	if repos.health != nil {
		handler.WithDatabase(repos.health)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(httpd.RequestLogger(log))
	router.Use(httpd.Recovery(log))
	router.Use(middleware.Timeout(60 * time.Second))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &App{
		server: server,
		logger: log,
		config: cfg,
		db:     db,
		events: events,
	}, nil
}

func newRepositories(cfg *config.Config, db *sql.DB, log zerolog.Logger) repositories {
	if cfg.Database.Driver == config.DriverMemory || db == nil {
		log.Warn().Msg("Using in-memory storage, data is lost on restart")
		store := memory.NewStore()
		return repositories{
			regs:   memory.NewRegistrationRepository(store),
			marks:  memory.NewMarksRepository(store),
			finals: memory.NewFinalMarksRepository(store),
		}
	}
	return repositories{
		regs:   repository.NewRegistrationRepository(db, log),
		marks:  repository.NewMarksRepository(db, log),
		finals: repository.NewFinalMarksRepository(db, log),
		health: repository.NewPostgresRepository(db, log),
	}
}

func clientConfig(c config.ServiceConfig) integration.ClientConfig {
	return integration.ClientConfig{
		BaseURL:    c.URL,
		Timeout:    c.Timeout,
		RetryCount: c.RetryCount,
		RetryDelay: c.RetryDelay,
	}
}

func (a *App) Handler() http.Handler {
	return a.server.Handler
}

func (a *App) Run() error {
	a.logger.Info().Msgf("Starting revaluation service on %s", a.config.Server.Address)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info().Msg("Shutting down revaluation service...")

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Failed to shutdown HTTP server")
		return err
	}

	if a.events != nil {
		if err := a.events.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close RabbitMQ connection")
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close database connection")
		}
	}

	a.logger.Info().Msg("Revaluation service stopped")
	return nil
}
