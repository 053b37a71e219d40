package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/palimpsest-ai/palimpsest/internal/config"
	"github.com/palimpsest-ai/palimpsest/internal/database"
	"github.com/palimpsest-ai/palimpsest/internal/repository"
	"github.com/palimpsest-ai/palimpsest/internal/service"
	"github.com/palimpsest-ai/palimpsest/internal/tokens"
)

// ReconcileCmd returns the reconcile command
func ReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Recount stored aggregates and report drift",
		Long:  "Recompute token and chunk counts on messages and collections and report any drift from the stored values",
		RunE:  runReconcile,
	}
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	tokenCounter, err := tokens.NewCounter(cfg.EmbeddingModel)
	if err != nil {
		return fmt.Errorf("failed to create token counter: %w", err)
	}

	chunkRepo := repository.NewChunkRepository(pool)
	txRunner := repository.NewTxRunner(pool)
	chunkSvc := service.NewChunkStoreService(chunkRepo, tokenCounter, txRunner)

	drifts, err := chunkSvc.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("failed to reconcile aggregates: %w", err)
	}

	if len(drifts) == 0 {
		log.Println("aggregates are consistent, no drift found")
		return nil
	}

	log.Printf("found %d drifted aggregate(s):", len(drifts))
	for _, d := range drifts {
		log.Printf("  %s %s: %s was %d, recounted %d", d.Entity, d.ID, d.Field, d.Stored, d.Recounted)
	}

	return nil
}
