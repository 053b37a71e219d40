package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	openaigo "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/palimpsest-ai/palimpsest/internal/api/handlers"
	"github.com/palimpsest-ai/palimpsest/internal/config"
	"github.com/palimpsest-ai/palimpsest/internal/database"
	"github.com/palimpsest-ai/palimpsest/internal/jobs"
	"github.com/palimpsest-ai/palimpsest/internal/openai"
	"github.com/palimpsest-ai/palimpsest/internal/repository"
	"github.com/palimpsest-ai/palimpsest/internal/server"
	"github.com/palimpsest-ai/palimpsest/internal/service"
	"github.com/palimpsest-ai/palimpsest/internal/telemetry"
	"github.com/palimpsest-ai/palimpsest/internal/tokens"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the palimpsest daemon",
		Long:  "Start the API server and background workers",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.SentryDSN != "" {
		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			TracesSampleRate: cfg.SentrySampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	chunkRepo := repository.NewChunkRepository(pool)
	relationshipRepo := repository.NewRelationshipRepository(pool)
	jobRepo := repository.NewJobRepository(pool)
	lineageRepo := repository.NewLineageRepository(pool)
	searchRepo := repository.NewSearchRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	tokenCounter, err := tokens.NewCounter(cfg.EmbeddingModel)
	if err != nil {
		return fmt.Errorf("failed to create token counter: %w", err)
	}

	chunkSvc := service.NewChunkStoreService(chunkRepo, tokenCounter, txRunner)
	searchSvc := service.NewSearchService(searchRepo)
	graphSvc := service.NewGraphService(relationshipRepo)
	transformSvc := service.NewTransformService(jobRepo, txRunner)
	lineageSvc := service.NewLineageService(lineageRepo)

	var workers []*jobs.Worker
	if cfg.HasOpenAI() {
		aiClient := openai.NewClientWithConfig(openai.Config{
			APIKey:         cfg.OpenAIAPIKey,
			EmbeddingModel: openaigo.EmbeddingModel(cfg.EmbeddingModel),
			ChatModel:      cfg.ChatModel,
		})

		transformPoller := jobs.NewTransformWorker(transformSvc, chunkSvc, aiClient, 0)
		transformWorker := jobs.NewWorker("transform", transformPoller, time.Duration(cfg.TransformPollSeconds)*time.Second)
		go transformWorker.Start(ctx)
		workers = append(workers, transformWorker)

		embeddingPoller := jobs.NewEmbeddingWorker(chunkSvc, aiClient, cfg.EmbeddingModel, cfg.EmbeddingBatchSize)
		embeddingWorker := jobs.NewWorker("embedding", embeddingPoller, time.Duration(cfg.EmbeddingPollSeconds)*time.Second)
		go embeddingWorker.Start(ctx)
		workers = append(workers, embeddingWorker)
	} else {
		log.Println("OPENAI_API_KEY not set, background workers disabled")
	}

	routerCfg := server.RouterConfig{
		ChunkHandler:   handlers.NewChunkHandler(chunkSvc),
		SearchHandler:  handlers.NewSearchHandler(searchSvc),
		GraphHandler:   handlers.NewGraphHandler(graphSvc),
		JobHandler:     handlers.NewJobHandler(transformSvc),
		LineageHandler: handlers.NewLineageHandler(lineageSvc),
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.NewRouter(routerCfg),
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	for _, worker := range workers {
		worker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

func runMigrations(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	upErr := m.Up()
	if upErr != nil && upErr != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", upErr)
	}

	version, dirty, err := m.Version()
	if err == migrate.ErrNilVersion {
		log.Println("migrations: no migrations applied yet")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	}

	if upErr == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
