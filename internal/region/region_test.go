package region

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gridshare/platform/internal/dataneed"
	"github.com/gridshare/platform/internal/domain"
	"github.com/gridshare/platform/internal/eventbus"
	"github.com/gridshare/platform/internal/eventstore"
	"github.com/gridshare/platform/internal/guard"
	"github.com/gridshare/platform/internal/lifecycle"
	"github.com/gridshare/platform/internal/outbox"
	"github.com/gridshare/platform/internal/permission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Register Tests ---

type consentEvent struct {
	domain.Header
	ConsentID string `json:"consentId"`
}

func (e *consentEvent) EventType() domain.EventType { return "at-eda.consent_granted" }

type fakeModule struct {
	id        string
	eventsErr error
	calls     *[]string
}

func (m fakeModule) ID() string { return m.id }

func (m fakeModule) RegisterEvents(reg *eventstore.Registry) error {
	*m.calls = append(*m.calls, m.id+":events")
	if m.eventsErr != nil {
		return m.eventsErr
	}
	return reg.RegisterRegion(m.id, domain.EventType(m.id+".consent_granted"), func() domain.PermissionEvent { return &consentEvent{} })
}

func (m fakeModule) RegisterHandlers(*eventbus.Bus) error {
	*m.calls = append(*m.calls, m.id+":handlers")
	return nil
}

func TestRegister_EventsBeforeHandlers(t *testing.T) {
	var calls []string
	reg := eventstore.NewRegistry()
	bus := eventbus.New(testLogger(), nil)

	err := Register(reg, bus, fakeModule{id: "at-eda", calls: &calls}, fakeModule{id: "fr-enedis", calls: &calls})
	require.NoError(t, err)

	assert.Equal(t, []string{"at-eda:events", "fr-enedis:events", "at-eda:handlers", "fr-enedis:handlers"}, calls)
	assert.True(t, reg.Known("at-eda.consent_granted"))

	rec, err := reg.Encode(&consentEvent{Header: domain.NewHeader("pid", domain.StatusAccepted), ConsentID: "c-1"})
	require.NoError(t, err)
	assert.Equal(t, "at-eda", rec.RegionID)
}

func TestRegister_Errors(t *testing.T) {
	var calls []string
	boom := errors.New("boom")

	tests := []struct {
		name string
		mods []Module
	}{
		{"duplicate id", []Module{fakeModule{id: "at-eda", calls: &calls}, fakeModule{id: "at-eda", calls: &calls}}},
		{"missing id", []Module{fakeModule{calls: &calls}}},
		{"events fail", []Module{fakeModule{id: "at-eda", eventsErr: boom, calls: &calls}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Register(eventstore.NewRegistry(), eventbus.New(testLogger(), nil), tt.mods...)
			assert.Error(t, err)
		})
	}
}

func TestCommon_RequiresCoreDeps(t *testing.T) {
	err := Register(eventstore.NewRegistry(), eventbus.New(testLogger(), nil), NewCommon("at-eda", CommonDeps{}))
	assert.Error(t, err)
}

// --- Lifecycle Wiring Tests ---

type stubCalculator struct{ end time.Time }

func (c stubCalculator) CalculateByID(string, time.Time) dataneed.Result {
	tf := domain.Timeframe{Start: c.end.AddDate(0, -1, 0), End: c.end}
	return dataneed.ValidatedHistoricalDataResult{
		Granularities: []domain.Granularity{domain.GranularityPT15M},
		Permission:    tf,
		Energy:        tf,
	}
}

func (stubCalculator) RegionID() string { return "at-eda" }

type recorder struct {
	sent       []string
	terminated []string
	deleted    []string
}

func (r *recorder) Send(_ context.Context, pr *domain.PermissionRequest) error {
	r.sent = append(r.sent, pr.PermissionID)
	return nil
}

func (r *recorder) Terminate(_ context.Context, pr *domain.PermissionRequest) error {
	r.terminated = append(r.terminated, pr.PermissionID)
	return nil
}

func (r *recorder) DeleteByPermissionID(_ context.Context, pid string) error {
	r.deleted = append(r.deleted, pid)
	return nil
}

// syncPoller commits the whole data window as observed.
type syncPoller struct {
	ob outbox.Committer
}

func (p syncPoller) Poll(ctx context.Context, pr *domain.PermissionRequest) error {
	return p.ob.Commit(ctx, domain.NewMeterReadingObservedEvent(pr.PermissionID, pr.DataWindowEnd()))
}

type wired struct {
	svc   *permission.Service
	store *eventstore.MemoryStore
	ob    *outbox.Outbox
	rec   *recorder
}

func wire(t *testing.T) *wired {
	t.Helper()
	reg := eventstore.NewRegistry()
	store := eventstore.NewMemoryStore(reg)
	bus := eventbus.New(testLogger(), nil)
	ob := outbox.New(store, bus, testLogger(), nil)
	repo := permission.NewRepository(store)
	rec := &recorder{}

	common := NewCommon("at-eda", CommonDeps{
		Repo:        repo,
		Outbox:      ob,
		Sender:      rec,
		Poller:      syncPoller{ob: ob},
		Terminator:  rec,
		Credentials: rec,
		Logger:      testLogger(),
	})
	require.NoError(t, Register(reg, bus, common))

	svc := permission.NewService(repo, ob, stubCalculator{end: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}, testLogger())
	return &wired{svc: svc, store: store, ob: ob, rec: rec}
}

func TestCommon_CreateSendsToAdministrator(t *testing.T) {
	w := wire(t)

	pr, err := w.svc.Create(context.Background(), domain.CreateRequest{ConnectionID: "cid", DataNeedID: "dnid"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSentToPermissionAdministrator, pr.Status)
	assert.Equal(t, []string{pr.PermissionID}, w.rec.sent)
}

func TestCommon_AcceptedRequestIsFulfilled(t *testing.T) {
	w := wire(t)
	ctx := context.Background()

	pr, err := w.svc.Create(ctx, domain.CreateRequest{ConnectionID: "cid", DataNeedID: "dnid"})
	require.NoError(t, err)
	require.NoError(t, w.svc.Advance(ctx, pr.PermissionID, lifecycle.OpAccept, domain.NewAcceptedEvent(pr.PermissionID)))

	pr, err = w.svc.Get(ctx, pr.PermissionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFulfilled, pr.Status)
	assert.True(t, pr.DataEnd.Equal(pr.LatestMeterReading))
}

func TestCommon_AcceptedDedupeExpires(t *testing.T) {
	deps := func() CommonDeps {
		reg := eventstore.NewRegistry()
		store := eventstore.NewMemoryStore(reg)
		ob := outbox.New(store, eventbus.New(testLogger(), nil), testLogger(), nil)
		return CommonDeps{Repo: permission.NewRepository(store), Outbox: ob, Poller: syncPoller{ob: ob}, Logger: testLogger()}
	}

	common := NewCommon("at-eda", deps())
	require.NoError(t, Register(eventstore.NewRegistry(), eventbus.New(testLogger(), nil), common))
	require.NotNil(t, common.Dedupe())
	assert.Equal(t, DefaultDedupeTTL, common.Dedupe().TTL())

	d := deps()
	d.Dedupe = guard.NewIdempotencyGuard(time.Hour)
	common = NewCommon("at-eda", d)
	require.NoError(t, Register(eventstore.NewRegistry(), eventbus.New(testLogger(), nil), common))
	assert.Same(t, d.Dedupe, common.Dedupe())
}

func (w *wired) seedAccepted(t *testing.T, pid string) {
	t.Helper()
	for _, ev := range []domain.PermissionEvent{
		domain.NewCreatedEvent(pid, "dnid", "cid"),
		domain.NewValidatedEvent(pid, domain.Timeframe{}, nil, ""),
		domain.NewSimpleEvent(pid, domain.StatusSentToPermissionAdministrator),
		domain.NewAcceptedEvent(pid),
	} {
		_, err := w.store.Append(context.Background(), ev)
		require.NoError(t, err)
	}
}

func TestCommon_RevokedRequestDropsCredentials(t *testing.T) {
	w := wire(t)
	ctx := context.Background()
	w.seedAccepted(t, "pid-r")

	require.NoError(t, w.svc.Advance(ctx, "pid-r", lifecycle.OpRevoke, domain.NewRevokedEvent("pid-r")))

	assert.Equal(t, []string{"pid-r"}, w.rec.deleted)
	assert.Empty(t, w.rec.terminated)
}

func TestCommon_UnfulfillableIsTerminatedExternally(t *testing.T) {
	w := wire(t)
	ctx := context.Background()
	w.seedAccepted(t, "pid-u")

	require.NoError(t, w.ob.Commit(ctx, domain.NewUnfulfillableEvent("pid-u")))

	pr, err := w.svc.Get(ctx, "pid-u")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExternallyTerminated, pr.Status)
	assert.Equal(t, []string{"pid-u"}, w.rec.terminated)
	assert.Equal(t, []string{"pid-u"}, w.rec.deleted)
}
