package extract

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/NirnayK/InvoxAI-sub000/internal/catalog"
	"github.com/NirnayK/InvoxAI-sub000/internal/llm"
	"github.com/NirnayK/InvoxAI-sub000/internal/quota"
)

type fakeLimiter struct {
	errs  map[string]error
	calls []string
}

func (f *fakeLimiter) Claim(_ context.Context, model string, _ catalog.Entry) error {
	f.calls = append(f.calls, model)
	return f.errs[model]
}

type attemptResult struct {
	attempt Attempt
	err     error
}

type fakeInvoker struct {
	results map[string]attemptResult
	calls   []string
}

func (f *fakeInvoker) Invoke(_ context.Context, req llm.ExtractRequest) (Attempt, error) {
	f.calls = append(f.calls, req.Model)
	r := f.results[req.Model]
	return r.attempt, r.err
}

func testCatalog(names ...string) *catalog.Catalog {
	c := &catalog.Catalog{DefaultModel: names[0], FallbackOrder: names}
	for _, n := range names {
		c.Models = append(c.Models, catalog.Entry{Name: n})
	}
	return c
}

func newTestSequencer(cat *catalog.Catalog, limiter *fakeLimiter, invoker *fakeInvoker) *Sequencer {
	if limiter.errs == nil {
		limiter.errs = map[string]error{}
	}
	return NewSequencer(cat, limiter, invoker, nil)
}

func TestRunFallsBackPastRateLimit(t *testing.T) {
	inv := &fakeInvoker{results: map[string]attemptResult{
		"a": {err: &llm.APIError{StatusCode: 429, Body: "rate limit"}},
		"b": {attempt: Attempt{Payload: []byte(`{"ok":true}`)}},
	}}
	s := newTestSequencer(testCatalog("a", "b"), &fakeLimiter{}, inv)

	out := s.Run(context.Background(), llm.ExtractRequest{}, nil)
	require.True(t, out.Success())
	require.Equal(t, "b", out.Model)
	require.JSONEq(t, `{"ok":true}`, string(out.Payload))
	require.Equal(t, []string{"a", "b"}, inv.calls)
}

func TestRunTimeoutAdvancesLikeRateLimit(t *testing.T) {
	inv := &fakeInvoker{results: map[string]attemptResult{
		"a": {err: &AttemptTimeoutError{Model: "a", Timeout: time.Minute}},
		"b": {attempt: Attempt{Payload: []byte(`{}`)}},
	}}
	s := newTestSequencer(testCatalog("a", "b"), &fakeLimiter{}, inv)

	out := s.Run(context.Background(), llm.ExtractRequest{}, nil)
	require.True(t, out.Success())
	require.Equal(t, "b", out.Model)
}

func TestRunSuccessStopsTheChain(t *testing.T) {
	inv := &fakeInvoker{results: map[string]attemptResult{
		"a": {attempt: Attempt{Payload: []byte(`{}`)}},
	}}
	s := newTestSequencer(testCatalog("a", "b", "c"), &fakeLimiter{}, inv)

	out := s.Run(context.Background(), llm.ExtractRequest{}, nil)
	require.True(t, out.Success())
	require.Equal(t, []string{"a"}, inv.calls, "remaining models must not be tried")
}

func TestRunFatalErrorAbortsTheChain(t *testing.T) {
	fatal := errors.New("invalid request payload")
	inv := &fakeInvoker{results: map[string]attemptResult{
		"a": {err: fatal},
		"b": {attempt: Attempt{Payload: []byte(`{}`)}},
	}}
	s := newTestSequencer(testCatalog("a", "b"), &fakeLimiter{}, inv)

	out := s.Run(context.Background(), llm.ExtractRequest{}, nil)
	require.False(t, out.Success())
	require.ErrorIs(t, out.Err, fatal)
	require.Equal(t, ClassOther, out.Class)
	require.Equal(t, []string{"a"}, inv.calls, "Other must stop the loop with candidates remaining")
}

func TestRunDailyLimitSkipsModelWithoutInvoking(t *testing.T) {
	lim := &fakeLimiter{errs: map[string]error{
		"a": &quota.DailyLimitError{Model: "a", Limit: 100},
	}}
	inv := &fakeInvoker{results: map[string]attemptResult{
		"b": {attempt: Attempt{Payload: []byte(`{}`)}},
	}}
	s := newTestSequencer(testCatalog("a", "b"), lim, inv)

	out := s.Run(context.Background(), llm.ExtractRequest{}, nil)
	require.True(t, out.Success())
	require.Equal(t, "b", out.Model)
	require.Equal(t, []string{"b"}, inv.calls, "daily-limited model must not be invoked")
	require.Equal(t, []string{"a", "b"}, lim.calls)
}

func TestRunExhaustedReportsLastError(t *testing.T) {
	errA := &llm.APIError{StatusCode: 429, Body: "a limit"}
	errB := &llm.APIError{StatusCode: 429, Body: "b limit"}
	inv := &fakeInvoker{results: map[string]attemptResult{
		"a": {err: errA},
		"b": {err: errB},
	}}
	s := newTestSequencer(testCatalog("a", "b"), &fakeLimiter{}, inv)

	out := s.Run(context.Background(), llm.ExtractRequest{}, nil)
	require.False(t, out.Success())
	require.ErrorIs(t, out.Err, errB, "last error wins")
	require.Equal(t, ClassRateLimited, out.Class)
	require.Equal(t, http.StatusTooManyRequests, out.StatusCode)
}

func TestRunExhaustedByTimeoutsHasNo429(t *testing.T) {
	inv := &fakeInvoker{results: map[string]attemptResult{
		"a": {err: &AttemptTimeoutError{Model: "a", Timeout: time.Minute}},
		"b": {err: &AttemptTimeoutError{Model: "b", Timeout: time.Minute}},
	}}
	s := newTestSequencer(testCatalog("a", "b"), &fakeLimiter{}, inv)

	out := s.Run(context.Background(), llm.ExtractRequest{}, nil)
	require.False(t, out.Success())
	require.Equal(t, ClassTimedOut, out.Class)
	require.Zero(t, out.StatusCode)
}

func TestRunUsesCatalogOrderWhenNoModelsGiven(t *testing.T) {
	cat := &catalog.Catalog{
		Models:        []catalog.Entry{{Name: "x"}, {Name: "a"}},
		DefaultModel:  "x",
		FallbackOrder: []string{"a"},
	}
	inv := &fakeInvoker{results: map[string]attemptResult{
		"x": {err: &AttemptTimeoutError{Model: "x", Timeout: time.Minute}},
		"a": {attempt: Attempt{Payload: []byte(`{}`)}},
	}}
	s := newTestSequencer(cat, &fakeLimiter{}, inv)

	out := s.Run(context.Background(), llm.ExtractRequest{}, nil)
	require.True(t, out.Success())
	require.Equal(t, []string{"x", "a"}, inv.calls, "default model goes first")
}
