package extract

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/NirnayK/InvoxAI-sub000/internal/catalog"
	"github.com/NirnayK/InvoxAI-sub000/internal/llm"
	"github.com/NirnayK/InvoxAI-sub000/internal/quota"
)

// Limiter is the admission-control dependency. *quota.Tracker satisfies it.
type Limiter interface {
	Claim(ctx context.Context, model string, limit catalog.Entry) error
}

// AttemptInvoker runs one timed attempt. *Invoker satisfies it.
type AttemptInvoker interface {
	Invoke(ctx context.Context, req llm.ExtractRequest) (Attempt, error)
}

// Outcome is the terminal result of one file's fallback run.
type Outcome struct {
	Payload     []byte
	NeedsReview bool
	Model       string // model that produced the payload

	Err        error
	Class      Classification
	StatusCode int // HTTP-style; 429 only when the last failure was rate-limited
}

// Success reports whether the run produced a payload.
func (o Outcome) Success() bool { return o.Err == nil }

// Sequencer tries candidate models in priority order for one file, advancing
// past transient failures and aborting on fatal ones.
type Sequencer struct {
	catalog *catalog.Catalog
	limiter Limiter
	invoker AttemptInvoker
	logger  *slog.Logger
}

func NewSequencer(cat *catalog.Catalog, limiter Limiter, invoker AttemptInvoker, logger *slog.Logger) *Sequencer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{
		catalog: cat,
		limiter: limiter,
		invoker: invoker,
		logger:  logger,
	}
}

// ResolveOrder returns the candidate order used when Run gets no explicit
// model list: the catalog's fallback order, deduplicated, default model first.
func (s *Sequencer) ResolveOrder() []string {
	return s.catalog.ResolveOrder()
}

// Run drives req through the candidate models until one succeeds or all are
// exhausted. An exhausted daily quota counts as a failed attempt and the loop
// moves on; rate-limited and timed-out attempts likewise advance to the next
// model; any other failure aborts the loop for this file.
func (s *Sequencer) Run(ctx context.Context, req llm.ExtractRequest, models []string) Outcome {
	if len(models) == 0 {
		models = s.ResolveOrder()
	}

	var lastErr error
	lastClass := ClassOther
	for _, model := range models {
		if err := s.limiter.Claim(ctx, model, s.catalog.Limit(model)); err != nil {
			var de *quota.DailyLimitError
			if errors.As(err, &de) {
				s.logger.Warn("extract.model.daily_limit", "model", model, "limit", de.Limit)
				lastErr, lastClass = err, ClassRateLimited
				continue
			}
			// context cancellation during the minute-window wait
			return Outcome{Err: err, Class: ClassOther, Model: model}
		}

		req.Model = model
		attempt, err := s.invoker.Invoke(ctx, req)
		if err == nil {
			s.logger.Info("extract.model.ok", "model", model, "needs_review", attempt.NeedsReview)
			return Outcome{Payload: attempt.Payload, NeedsReview: attempt.NeedsReview, Model: model}
		}

		class := Classify(err)
		lastErr, lastClass = err, class
		switch class {
		case ClassRateLimited, ClassTimedOut:
			s.logger.Warn("extract.model.retryable",
				"model", model, "class", class.String(), "error", err)
			continue
		default:
			// non-retryable API fault; don't waste further attempts
			s.logger.Error("extract.model.fatal", "model", model, "error", err)
			return Outcome{Err: err, Class: class, Model: model, StatusCode: llm.StatusOf(err)}
		}
	}

	status := 0
	if lastClass == ClassRateLimited {
		status = http.StatusTooManyRequests
	}
	return Outcome{Err: lastErr, Class: lastClass, StatusCode: status}
}
