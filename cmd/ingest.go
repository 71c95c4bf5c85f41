package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/multisense/agent/internal/gateway"
	"github.com/multisense/agent/internal/rag"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Ingest local text or PDF files into the knowledge store",
	Long: `ingest chunks and embeds the given files and stores them in the
configured chunk store. Files ending in .pdf have their text extracted
first; everything else is read as plain text. Each file becomes one
document; the document ID is the file name without its extension.
Re-ingesting a file overwrites its previous chunks.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd.Context(), args)
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&serveMemoryStore, "memory-store", false,
		"use the in-process chunk store (contents are lost on exit)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(parent context.Context, paths []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := checkRequiredEnv(); err != nil {
		return err
	}

	ctx := parent

	gk, err := gateway.NewGenkit(ctx, gateway.Config{
		ChatModel:     cfg.ChatModel,
		EmbedderModel: cfg.EmbedderModel,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing AI gateway: %w", err)
	}

	store, _, _, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	engine, err := rag.New(store, gk, rag.Config{
		ChunkSize:     cfg.RAG.ChunkSize,
		ChunkOverlap:  cfg.RAG.ChunkOverlap,
		MinSimilarity: cfg.RAG.MinSimilarity,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating RAG engine: %w", err)
	}

	var failed int
	for _, path := range paths {
		if err := ingestFile(ctx, engine, path); err != nil {
			logger.Error("ingestion failed", "path", path, "error", err)
			failed++
			continue
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed to ingest", failed, len(paths))
	}
	return nil
}

func ingestFile(ctx context.Context, engine *rag.Engine, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	base := filepath.Base(path)
	documentID := strings.TrimSuffix(base, filepath.Ext(base))
	metadata := map[string]string{"source": path}

	var report *rag.IngestionReport
	if strings.EqualFold(filepath.Ext(base), ".pdf") {
		report, err = engine.IngestPDF(ctx, documentID, data, metadata)
	} else {
		report, err = engine.Ingest(ctx, documentID, string(data), metadata)
	}
	if err != nil {
		// Partial ingestion still stored some chunks; report and fail so
		// the caller can re-run for the gaps.
		var perr *rag.PartialIngestionError
		if errors.As(err, &perr) {
			fmt.Printf("%s: %d chunks stored, %d failed\n",
				documentID, report.ChunksCreated, len(perr.FailedIndices))
		}
		return err
	}

	fmt.Printf("%s: %d chunks stored\n", documentID, report.ChunksCreated)
	return nil
}
