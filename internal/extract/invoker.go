package extract

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/NirnayK/InvoxAI-sub000/internal/common"
	"github.com/NirnayK/InvoxAI-sub000/internal/llm"
)

// Attempt is the result of one successful (file, model) extraction attempt.
// NeedsReview marks payloads that mechanically succeeded but did not yield
// schema-valid data (raw fallback or schema miss).
type Attempt struct {
	Payload     []byte
	NeedsReview bool
}

// Invoker performs one timed extraction attempt for one file against one
// model.
type Invoker struct {
	extractor llm.Extractor
	schema    map[string]any
	timeout   time.Duration
	logger    *slog.Logger
}

func NewInvoker(extractor llm.Extractor, timeout time.Duration, logger *slog.Logger) *Invoker {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{
		extractor: extractor,
		schema:    llm.BuildInvoiceJSONSchema(),
		timeout:   timeout,
		logger:    logger,
	}
}

// Invoke runs the model call under the per-attempt deadline. A deadline hit
// surfaces as *AttemptTimeoutError and cancels the in-flight request.
//
// Unparsable response text is not an error: the caller always receives some
// structured value, so raw text comes back wrapped as {"_raw": text} with
// NeedsReview set. Valid JSON that misses the invoice schema also stays
// successful but is flagged for review.
func (iv *Invoker) Invoke(ctx context.Context, req llm.ExtractRequest) (Attempt, error) {
	actx, cancel := context.WithTimeout(ctx, iv.timeout)
	defer cancel()
	// one request id per attempt; the client and transport logs pick it up
	actx = common.WithRequestID(actx, uuid.New().String())

	raw, err := iv.extractor.Extract(actx, req)
	if err != nil {
		if actx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return Attempt{}, &AttemptTimeoutError{Model: req.Model, Timeout: iv.timeout}
		}
		return Attempt{}, err
	}

	content := llm.StripCodeFences(raw)
	if !json.Valid(content) {
		iv.logger.Warn("extract.invoke.raw_fallback",
			"model", req.Model, "content_bytes", len(content))
		fallback, _ := json.Marshal(map[string]string{"_raw": string(raw)})
		return Attempt{Payload: fallback, NeedsReview: true}, nil
	}

	if err := llm.ValidateJSONAgainstSchema(iv.schema, content); err != nil {
		iv.logger.Warn("extract.invoke.schema_miss",
			"model", req.Model, "error", err)
		return Attempt{Payload: content, NeedsReview: true}, nil
	}
	return Attempt{Payload: content}, nil
}
