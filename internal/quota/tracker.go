package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/NirnayK/InvoxAI-sub000/internal/catalog"
	"github.com/NirnayK/InvoxAI-sub000/internal/common"
	"github.com/NirnayK/InvoxAI-sub000/internal/entity"
	"github.com/NirnayK/InvoxAI-sub000/internal/repository"
)

const minuteWindow = 60 * time.Second

// resetZone is the fixed timezone for daily quota keys. Provider daily quotas
// reset on Pacific days; a fixed offset keeps day keys deterministic
// regardless of the caller's local timezone or DST.
var resetZone = time.FixedZone("PT", -8*60*60)

// DayKey returns the daily-quota bucket key for t.
func DayKey(t time.Time) string {
	return t.In(resetZone).Format("2006-01-02")
}

// DailyLimitError reports an exhausted per-day quota. The daily window will
// not reopen soon, so callers should skip the model rather than wait.
type DailyLimitError struct {
	Model string
	Limit int
}

func (e *DailyLimitError) Error() string {
	return fmt.Sprintf("model %s: daily request limit %d reached", e.Model, e.Limit)
}

// Tracker is the per-model admission controller. Claims for the same model
// are serialized by a per-model mutex; different models never contend. The
// in-memory row is authoritative for admission decisions; persistence is
// best-effort and runs detached.
type Tracker struct {
	repo   repository.ModelUsageRepository
	clock  Clock
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	rows  map[string]*entity.ModelUsage
}

func NewTracker(repo repository.ModelUsageRepository, clock Clock, logger *slog.Logger) *Tracker {
	if clock == nil {
		clock = RealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		repo:   repo,
		clock:  clock,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
		rows:   make(map[string]*entity.ModelUsage),
	}
}

// Sync idempotently ensures a zero-initialized usage row exists for every
// known model. Called once at startup.
func (t *Tracker) Sync(ctx context.Context, models []string) error {
	return t.repo.EnsureRows(ctx, models)
}

// Claim decides whether a request for model may proceed: immediately, after
// waiting out the current minute window, or never for this day
// (DailyLimitError). Unmetered models short-circuit with no read, write or
// suspension.
func (t *Tracker) Claim(ctx context.Context, model string, limit catalog.Entry) error {
	if limit.Unmetered() {
		return nil
	}

	lock := t.lockFor(model)
	lock.Lock()
	defer lock.Unlock()

	row := t.loadRow(ctx, model)
	now := t.clock.Now()

	if day := DayKey(now); row.DayKey != day {
		row.DayKey = day
		row.RequestsToday = 0
	}
	if now.UnixMilli()-row.MinuteStartMS >= minuteWindow.Milliseconds() {
		row.MinuteStartMS = now.UnixMilli()
		row.RequestsMinute = 0
	}

	if limit.RPD > 0 && row.RequestsToday >= limit.RPD {
		return &DailyLimitError{Model: model, Limit: limit.RPD}
	}

	if limit.RPM > 0 && row.RequestsMinute >= limit.RPM {
		wait := minuteWindow - time.Duration(now.UnixMilli()-row.MinuteStartMS)*time.Millisecond
		t.logger.Info("quota.claim.wait",
			"model", model, "rpm", limit.RPM, "wait_ms", wait.Milliseconds())
		if err := t.clock.Sleep(ctx, wait); err != nil {
			return err
		}
		now = t.clock.Now()
		row.MinuteStartMS = now.UnixMilli()
		row.RequestsMinute = 0
	}

	row.RequestsMinute++
	row.RequestsToday++
	t.persistDetached(row.Clone())
	return nil
}

func (t *Tracker) lockFor(model string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	lock, ok := t.locks[model]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[model] = lock
	}
	return lock
}

// loadRow returns the in-memory usage row for model, loading it from the
// store on first use and lazily creating a zero row when absent.
func (t *Tracker) loadRow(ctx context.Context, model string) *entity.ModelUsage {
	t.mu.Lock()
	row, ok := t.rows[model]
	t.mu.Unlock()
	if ok {
		return row
	}

	row, err := t.repo.Load(ctx, model)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			t.logger.Warn("quota.load.failed", "model", model, "error", err)
		}
		row = &entity.ModelUsage{ModelName: model}
	}

	t.mu.Lock()
	t.rows[model] = row
	t.mu.Unlock()
	return row
}

// persistDetached writes the counters in the background. The admission
// decision already happened in memory and a storage error must not revert it,
// so failures are logged and swallowed.
func (t *Tracker) persistDetached(row *entity.ModelUsage) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.repo.Upsert(ctx, row); err != nil {
			t.logger.Warn("quota.persist.failed", "model", row.ModelName, "error", err)
		}
	}()
}
