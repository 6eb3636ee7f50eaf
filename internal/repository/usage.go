package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/NirnayK/InvoxAI-sub000/internal/common"
	"github.com/NirnayK/InvoxAI-sub000/internal/entity"
)

// ModelUsageRepository persists per-model request counters. One row per model
// name; writes are best-effort from the tracker's point of view.
type ModelUsageRepository interface {
	Load(ctx context.Context, model string) (*entity.ModelUsage, error)
	Upsert(ctx context.Context, row *entity.ModelUsage) error
	EnsureRows(ctx context.Context, models []string) error
}

type modelUsageRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewModelUsageRepository(db *DB, logger *slog.Logger) ModelUsageRepository {
	return &modelUsageRepo{
		db:     db,
		logger: logger,
	}
}

func (r *modelUsageRepo) Load(ctx context.Context, model string) (*entity.ModelUsage, error) {
	q := rebind(r.db.Dialect, `
		SELECT model_name, day_key, minute_start_ms, requests_minute, requests_today
		FROM model_usage WHERE model_name = ?`)
	var u entity.ModelUsage
	err := r.db.SQL.QueryRowContext(ctx, q, model).
		Scan(&u.ModelName, &u.DayKey, &u.MinuteStartMS, &u.RequestsMinute, &u.RequestsToday)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppError("USAGE_NOT_FOUND", model, common.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to load model usage", "model", model, "error", err)
		return nil, err
	}
	return &u, nil
}

func (r *modelUsageRepo) Upsert(ctx context.Context, row *entity.ModelUsage) error {
	q := rebind(r.db.Dialect, `
		INSERT INTO model_usage (model_name, day_key, minute_start_ms, requests_minute, requests_today)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(model_name) DO UPDATE SET
			day_key = excluded.day_key,
			minute_start_ms = excluded.minute_start_ms,
			requests_minute = excluded.requests_minute,
			requests_today = excluded.requests_today`)
	_, err := r.db.SQL.ExecContext(ctx, q,
		row.ModelName, row.DayKey, row.MinuteStartMS, row.RequestsMinute, row.RequestsToday)
	if err != nil {
		r.logger.Error("failed to upsert model usage", "model", row.ModelName, "error", err)
		return err
	}
	return nil
}

// EnsureRows idempotently creates a zero-initialized row for every known
// model, so the first real claim never hits "row not found" ambiguity.
func (r *modelUsageRepo) EnsureRows(ctx context.Context, models []string) error {
	q := rebind(r.db.Dialect, `
		INSERT INTO model_usage (model_name, day_key, minute_start_ms, requests_minute, requests_today)
		VALUES (?, '', 0, 0, 0)
		ON CONFLICT(model_name) DO NOTHING`)
	for _, model := range models {
		if _, err := r.db.SQL.ExecContext(ctx, q, model); err != nil {
			r.logger.Error("failed to ensure model usage row", "model", model, "error", err)
			return err
		}
	}
	r.logger.Info("model usage rows ensured", "models", len(models))
	return nil
}
