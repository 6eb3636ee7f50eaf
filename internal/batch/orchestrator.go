package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/NirnayK/InvoxAI-sub000/constants"
	"github.com/NirnayK/InvoxAI-sub000/internal/common"
	"github.com/NirnayK/InvoxAI-sub000/internal/entity"
	"github.com/NirnayK/InvoxAI-sub000/internal/extract"
	"github.com/NirnayK/InvoxAI-sub000/internal/llm"
	"github.com/NirnayK/InvoxAI-sub000/internal/repository"
)

// ErrMissingAPIKey aborts a batch before any file is touched.
var ErrMissingAPIKey = common.NewAppError("CREDENTIAL_MISSING", "extraction API key is not configured", common.ErrUnauthorized)

// Runner drives one file through the model fallback chain.
// *extract.Sequencer satisfies it.
type Runner interface {
	Run(ctx context.Context, req llm.ExtractRequest, models []string) extract.Outcome
}

// Hooks receives caller-facing callbacks during a run. Nil funcs are skipped.
type Hooks struct {
	OnStatusUpdate func(message string)
	OnProgress     func(completed, total int)
}

func (h Hooks) status(msg string) {
	if h.OnStatusUpdate != nil {
		h.OnStatusUpdate(msg)
	}
}

func (h Hooks) progress(completed, total int) {
	if h.OnProgress != nil {
		h.OnProgress(completed, total)
	}
}

// Result aggregates terminal counts for one batch run.
type Result struct {
	ProcessedFiles int
	FailedFiles    int
}

// Orchestrator drives a file list through the sequencer, persisting every
// status transition and reporting progress. It is the only writer of status
// and parsed_details during a run.
type Orchestrator struct {
	logger          *slog.Logger
	files           repository.InvoiceFileRepository
	runner          Runner
	apiKey          func() string
	readBinary      func(path string) ([]byte, error)
	defaultCurrency string
}

func NewOrchestrator(
	logger *slog.Logger,
	files repository.InvoiceFileRepository,
	runner Runner,
	apiKey func() string,
	defaultCurrency string,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if apiKey == nil {
		apiKey = func() string { return "" }
	}
	if defaultCurrency == "" {
		defaultCurrency = "USD"
	}
	return &Orchestrator{
		logger:          logger,
		files:           files,
		runner:          runner,
		apiKey:          apiKey,
		readBinary:      os.ReadFile,
		defaultCurrency: defaultCurrency,
	}
}

// SetBinaryReader replaces the filesystem collaborator; used by tests.
func (o *Orchestrator) SetBinaryReader(read func(path string) ([]byte, error)) {
	o.readBinary = read
}

type workItem struct {
	file *entity.InvoiceFile
	req  llm.ExtractRequest
}

// Run processes fileIDs strictly sequentially, in input order. Per-file
// failures are recorded and counted, never returned; only pre-flight failures
// (missing credential, empty input, unknown IDs) and I/O errors while reading
// file content abort the whole batch — after marking every still-unresolved
// file FAILED so nothing is left stuck in PROCESSING.
func (o *Orchestrator) Run(ctx context.Context, fileIDs []uuid.UUID, hooks Hooks) (Result, error) {
	if len(fileIDs) == 0 {
		return Result{}, common.NewAppError("EMPTY_BATCH", "no files to process", common.ErrInvalidInput)
	}
	if o.apiKey() == "" {
		return Result{}, ErrMissingAPIKey
	}

	// One batch-run id correlates every log line of this run, including the
	// per-attempt client logs further down the call chain.
	batchID := uuid.New().String()
	ctx = common.WithBatchID(ctx, batchID)

	files, err := o.files.ListByIDs(ctx, fileIDs)
	if err != nil {
		return Result{}, fmt.Errorf("load batch files: %w", err)
	}

	// Persist PROCESSING for the whole batch before any network call, so a
	// mid-batch crash is observable: a file stuck in PROCESSING means
	// "re-submit me".
	for _, f := range files {
		if err := o.files.UpdateStatus(ctx, f.ID, constants.FileStatusProcessing); err != nil {
			return Result{}, fmt.Errorf("mark processing %s: %w", f.ID, err)
		}
	}
	o.logger.Info("batch.start", "batch_id", batchID, "files", len(files))

	items := make([]workItem, 0, len(files))
	for _, f := range files {
		content, err := o.readBinary(f.SourcePath)
		if err != nil {
			// nothing has resolved yet; the whole batch is unresolved
			o.markRemainingFailed(ctx, files, fmt.Sprintf("batch aborted: read %s: %v", f.Filename, err))
			return Result{}, fmt.Errorf("read file %s: %w", f.SourcePath, err)
		}
		items = append(items, workItem{
			file: f,
			req: llm.ExtractRequest{
				FileBytes:       content,
				MimeType:        f.MimeType,
				FilenameHint:    f.Filename,
				DefaultCurrency: o.defaultCurrency,
			},
		})
	}

	var res Result
	total := len(items)
	for i, it := range items {
		out := o.runner.Run(ctx, it.req, nil)
		if err := o.finishFile(ctx, it.file, out, &res); err != nil {
			// include the current file: its terminal write just failed
			o.markRemainingFailed(ctx, files[i:], fmt.Sprintf("batch aborted: %v", err))
			return res, err
		}
		if out.Success() {
			hooks.status(fmt.Sprintf("Processed %s with %s", it.file.Filename, out.Model))
		} else {
			hooks.status(fmt.Sprintf("Failed %s: %v", it.file.Filename, out.Err))
		}
		hooks.progress(i+1, total)
	}

	o.logger.Info("batch.done", "batch_id", batchID, "processed", res.ProcessedFiles, "failed", res.FailedFiles)
	return res, nil
}

// finishFile persists one file's terminal status and payload immediately,
// not batched at the end.
func (o *Orchestrator) finishFile(ctx context.Context, f *entity.InvoiceFile, out extract.Outcome, res *Result) error {
	if !out.Success() {
		o.logger.Warn("batch.file.failed",
			"batch_id", common.BatchIDFromContext(ctx),
			"file_id", f.ID, "class", out.Class.String(), "status", out.StatusCode, "error", out.Err)
		if err := o.files.MarkFailed(ctx, f.ID, out.Err.Error()); err != nil {
			return fmt.Errorf("mark failed %s: %w", f.ID, err)
		}
		res.FailedFiles++
		return nil
	}

	if err := o.files.UpdateParsedDetails(ctx, f.ID, out.Payload, out.NeedsReview); err != nil {
		return fmt.Errorf("persist payload %s: %w", f.ID, err)
	}
	if err := o.files.UpdateStatus(ctx, f.ID, constants.FileStatusProcessed); err != nil {
		return fmt.Errorf("mark processed %s: %w", f.ID, err)
	}
	o.logger.Info("batch.file.done",
		"batch_id", common.BatchIDFromContext(ctx),
		"file_id", f.ID, "model", out.Model, "needs_review", out.NeedsReview)
	res.ProcessedFiles++
	return nil
}

// markRemainingFailed best-effort marks every still-unresolved file FAILED
// before the batch error propagates.
func (o *Orchestrator) markRemainingFailed(ctx context.Context, files []*entity.InvoiceFile, message string) {
	for _, f := range files {
		if err := o.files.MarkFailed(ctx, f.ID, message); err != nil {
			o.logger.Error("batch.abort.mark_failed", "file_id", f.ID, "error", err)
		}
	}
}
