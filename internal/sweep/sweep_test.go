package sweep

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gridshare/platform/internal/domain"
	"github.com/gridshare/platform/internal/eventbus"
	"github.com/gridshare/platform/internal/eventstore"
	"github.com/gridshare/platform/internal/infra"
	"github.com/gridshare/platform/internal/lifecycle"
	"github.com/gridshare/platform/internal/outbox"
	"github.com/gridshare/platform/internal/permission"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var t0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	now     time.Time
	store   *eventstore.MemoryStore
	service *permission.Service
	repo    *permission.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{now: t0}
	f.store = eventstore.NewMemoryStore(eventstore.NewRegistry(), eventstore.WithClock(func() time.Time { return f.now }))
	f.repo = permission.NewRepository(f.store)
	ob := outbox.New(f.store, eventbus.New(testLogger(), nil), testLogger(), nil)
	f.service = permission.NewService(f.repo, ob, nil, testLogger())
	return f
}

func (f *fixture) seed(t *testing.T, pid string, end time.Time, statuses ...domain.Status) {
	t.Helper()
	ctx := context.Background()
	events := []domain.PermissionEvent{
		domain.NewCreatedEvent(pid, "dnid", "cid"),
		domain.NewValidatedEvent(pid, domain.Timeframe{Start: t0, End: end}, nil, domain.GranularityPT15M),
	}
	for _, st := range statuses {
		events = append(events, domain.NewSimpleEvent(pid, st))
	}
	for _, ev := range events {
		_, err := f.store.Append(ctx, ev)
		require.NoError(t, err)
	}
}

func (f *fixture) status(t *testing.T, pid string) domain.Status {
	t.Helper()
	pr, err := f.repo.GetByPermissionID(context.Background(), pid)
	require.NoError(t, err)
	return pr.Status
}

func counterValue(t *testing.T, g prometheus.Gatherer, name string) float64 {
	t.Helper()
	families, err := g.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func TestRunOnce_TimesOutAndExpires(t *testing.T) {
	f := newFixture(t)
	sent := domain.StatusSentToPermissionAdministrator

	f.seed(t, "stale", t0.AddDate(0, 1, 0), sent)
	f.seed(t, "expired", t0.AddDate(0, 0, 2), sent, domain.StatusAccepted)
	f.seed(t, "active", t0.AddDate(0, 1, 0), sent, domain.StatusAccepted)
	f.now = t0.AddDate(0, 0, 7)
	f.seed(t, "fresh", t0.AddDate(0, 1, 0), sent)

	reg := prometheus.NewRegistry()
	s := New(f.store, f.service, nil, Config{StaleAfter: 72 * time.Hour}, testLogger(), infra.NewMetrics(reg))
	s.clock = func() time.Time { return t0.AddDate(0, 0, 8) }

	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{TimedOut: 1, Expired: 1}, res)

	assert.Equal(t, domain.StatusTimedOut, f.status(t, "stale"))
	assert.Equal(t, sent, f.status(t, "fresh"))
	assert.Equal(t, domain.StatusFulfilled, f.status(t, "expired"))
	assert.Equal(t, domain.StatusAccepted, f.status(t, "active"))
	assert.Equal(t, float64(1), counterValue(t, reg, "permission_sweep_timeouts_total"))

	res, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestRunOnce_ZeroStaleAfterSkipsTimeouts(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "stale", t0.AddDate(0, 1, 0), domain.StatusSentToPermissionAdministrator)

	s := New(f.store, f.service, nil, Config{}, testLogger(), nil)
	s.clock = func() time.Time { return t0.AddDate(1, 0, 0) }

	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.TimedOut)
	assert.Equal(t, domain.StatusSentToPermissionAdministrator, f.status(t, "stale"))
}

type fixedIndex map[domain.Status][]string

func (i fixedIndex) LatestByStatus(_ context.Context, status domain.Status, _ time.Time) ([]string, error) {
	return i[status], nil
}

type failingAdvancer struct {
	fail     map[string]bool
	advanced []string
}

func (a *failingAdvancer) Advance(_ context.Context, pid string, _ lifecycle.Operation, _ domain.PermissionEvent) error {
	if a.fail[pid] {
		return errors.New("commit failed")
	}
	a.advanced = append(a.advanced, pid)
	return nil
}

func (a *failingAdvancer) Get(_ context.Context, pid string) (*domain.PermissionRequest, error) {
	return &domain.PermissionRequest{PermissionID: pid, Status: domain.StatusAccepted}, nil
}

func TestRunOnce_ContinuesPastFailures(t *testing.T) {
	index := fixedIndex{domain.StatusSentToPermissionAdministrator: {"a", "b", "c"}}
	adv := &failingAdvancer{fail: map[string]bool{"b": true}}

	s := New(index, adv, nil, Config{StaleAfter: time.Hour}, testLogger(), nil)
	res, err := s.RunOnce(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit failed")
	assert.Equal(t, 2, res.TimedOut)
	assert.Equal(t, []string{"a", "c"}, adv.advanced)
}

func TestStart_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "stale", t0.AddDate(0, 1, 0), domain.StatusSentToPermissionAdministrator)

	s := New(f.store, f.service, nil, Config{Interval: 10 * time.Millisecond, StaleAfter: time.Hour}, testLogger(), nil)
	s.clock = func() time.Time { return t0.AddDate(0, 0, 1) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	assert.Eventually(t, func() bool {
		pr, err := f.repo.GetByPermissionID(context.Background(), "stale")
		return err == nil && pr.Status == domain.StatusTimedOut
	}, time.Second, 10*time.Millisecond)
}

type recordingResender struct {
	fail   map[string]bool
	resent []string
}

func (r *recordingResender) Resend(_ context.Context, pid string) error {
	if r.fail[pid] {
		return errors.New("administrator unreachable")
	}
	r.resent = append(r.resent, pid)
	return nil
}

func TestRunOnce_ResendsStuckValidatedRequests(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "stuck", t0.AddDate(0, 1, 0))
	f.seed(t, "unreachable", t0.AddDate(0, 1, 0))
	f.seed(t, "sent", t0.AddDate(0, 1, 0), domain.StatusSentToPermissionAdministrator)
	f.now = t0.Add(30 * time.Minute)
	f.seed(t, "recent", t0.AddDate(0, 1, 0))

	resender := &recordingResender{fail: map[string]bool{"unreachable": true}}
	s := New(f.store, f.service, resender, Config{ResendAfter: 10 * time.Minute}, testLogger(), nil)
	s.clock = func() time.Time { return t0.Add(35 * time.Minute) }

	res, err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "administrator unreachable")
	assert.Equal(t, 1, res.Resent)
	assert.Equal(t, []string{"stuck"}, resender.resent)
}

func TestRunOnce_ZeroResendAfterSkipsResend(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "stuck", t0.AddDate(0, 1, 0))

	resender := &recordingResender{}
	s := New(f.store, f.service, resender, Config{}, testLogger(), nil)
	s.clock = func() time.Time { return t0.AddDate(0, 0, 1) }

	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Resent)
	assert.Empty(t, resender.resent)
}
