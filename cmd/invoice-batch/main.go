package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/NirnayK/InvoxAI-sub000/constants"
	"github.com/NirnayK/InvoxAI-sub000/internal/batch"
	"github.com/NirnayK/InvoxAI-sub000/internal/catalog"
	"github.com/NirnayK/InvoxAI-sub000/internal/common"
	"github.com/NirnayK/InvoxAI-sub000/internal/entity"
	"github.com/NirnayK/InvoxAI-sub000/internal/extract"
	"github.com/NirnayK/InvoxAI-sub000/internal/llm/gemini"
	"github.com/NirnayK/InvoxAI-sub000/internal/quota"
	repo "github.com/NirnayK/InvoxAI-sub000/internal/repository"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	// Parse CLI flags
	var (
		inmem   = flag.Bool("inmem", false, "use in-memory SQLite database")
		dir     = flag.String("dir", "", "directory to process invoices from")
		resume  = flag.Bool("resume", false, "also re-submit files left in PROCESSING by a previous run")
		catPath = flag.String("catalog", "", "model catalog YAML (overrides MODEL_CATALOG_PATH)")
	)
	flag.Parse()

	if *dir == "" && !*resume {
		printError("Error: --dir or --resume is required\n")
		os.Exit(1)
	}

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()

	cfg := common.LoadConfig()
	if *catPath != "" {
		cfg.Batch.CatalogPath = *catPath
	}
	if !*inmem {
		if err := cfg.Validate(); err != nil {
			logger.Error("invalid configuration", "error", err)
			os.Exit(1)
		}
	}

	// Model catalog: file if configured, compiled-in default otherwise.
	cat := catalog.Default()
	if cfg.Batch.CatalogPath != "" {
		loaded, err := catalog.Load(cfg.Batch.CatalogPath)
		if err != nil {
			logger.Error("failed to load model catalog", "path", cfg.Batch.CatalogPath, "error", err)
			os.Exit(1)
		}
		cat = loaded
	}

	// Open store
	var db *repo.DB
	var err error
	if *inmem {
		db, err = repo.OpenSQLite(":memory:", logger)
	} else {
		db, err = repo.Open(ctx, cfg.Database, logger)
	}
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close(logger)

	// Wire repositories and the admission tracker
	filesRepo := repo.NewInvoiceFileRepository(db, logger)
	usageRepo := repo.NewModelUsageRepository(db, logger)
	tracker := quota.NewTracker(usageRepo, quota.RealClock(), logger)
	if err := tracker.Sync(ctx, cat.Names()); err != nil {
		logger.Error("failed to sync usage rows", "error", err)
		os.Exit(1)
	}

	// Gemini client + invoker + sequencer + orchestrator
	client := gemini.NewClient(gemini.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
	}, logger)
	invoker := extract.NewInvoker(client, cfg.Batch.AttemptTimeout, logger)
	sequencer := extract.NewSequencer(cat, tracker, invoker, logger)
	orchestrator := batch.NewOrchestrator(logger, filesRepo, sequencer, client.APIKey, cfg.Batch.DefaultCurrency)

	// Collect the batch: freshly imported files plus, with --resume, files a
	// previous run left in PROCESSING.
	var fileIDs []uuid.UUID
	if *dir != "" {
		imported, err := importDirectory(ctx, filesRepo, *dir, logger)
		if err != nil {
			logger.Error("failed to import directory", "dir", *dir, "error", err)
			os.Exit(1)
		}
		fileIDs = append(fileIDs, imported...)
	}
	if *resume {
		stuck, err := filesRepo.ListByStatus(ctx, constants.FileStatusProcessing)
		if err != nil {
			logger.Error("failed to list stuck files", "error", err)
			os.Exit(1)
		}
		for _, f := range stuck {
			fileIDs = append(fileIDs, f.ID)
		}
		logger.Info("re-submitting stuck files", "count", len(stuck))
	}

	result, err := orchestrator.Run(ctx, fileIDs, batch.Hooks{
		OnStatusUpdate: func(message string) {
			fmt.Println(message)
		},
		OnProgress: func(completed, total int) {
			fmt.Printf("Progress: %d/%d\n", completed, total)
		},
	})
	if err != nil {
		logger.Error("batch run failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Files processed: %d\n", result.ProcessedFiles)
	fmt.Printf("- Failures: %d\n", result.FailedFiles)
}

// importDirectory registers every supported file under dir as UNPROCESSED and
// returns the new IDs in directory-walk order.
func importDirectory(ctx context.Context, files repo.InvoiceFileRepository, dir string, logger *slog.Logger) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := constants.NormalizeExt(filepath.Ext(path))
		if _, ok := constants.AllowedExtensions[ext]; !ok {
			logger.Debug("skipping unsupported file", "path", path)
			return nil
		}
		f := &entity.InvoiceFile{
			Filename:   filepath.Base(path),
			MimeType:   constants.MimeTypeForExt(ext),
			SourcePath: path,
		}
		if err := files.Create(ctx, f); err != nil {
			return err
		}
		ids = append(ids, f.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("directory imported", "dir", dir, "files", len(ids))
	return ids, nil
}
