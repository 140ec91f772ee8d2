package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Validator Tests ---

func TestCreateRequest_Validate(t *testing.T) {
	tests := []struct {
		name   string
		req    CreateRequest
		fields []string
	}{
		{"valid", CreateRequest{ConnectionID: "cid", DataNeedID: "dnid", RegionID: "at-eda"}, nil},
		{"region optional", CreateRequest{ConnectionID: "cid", DataNeedID: "dnid"}, nil},
		{"blank connection", CreateRequest{ConnectionID: " ", DataNeedID: "dnid"}, []string{"connectionId"}},
		{"missing both", CreateRequest{}, []string{"connectionId", "dataNeedId"}},
		{"bad characters", CreateRequest{ConnectionID: "c id", DataNeedID: "dn/id"}, []string{"connectionId", "dataNeedId"}},
		{"bad region", CreateRequest{ConnectionID: "cid", DataNeedID: "dnid", RegionID: "AT"}, []string{"regionId"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.req.Validate()
			var got []string
			for _, e := range errs {
				got = append(got, e.Name)
				assert.NotEmpty(t, e.Message)
			}
			assert.Equal(t, tt.fields, got)
		})
	}
}

// --- Status Tests ---

func TestStatus_Terminal(t *testing.T) {
	terminal := []Status{
		StatusInvalid, StatusTerminated, StatusFulfilled, StatusRevoked,
		StatusExternallyTerminated, StatusUnableToSend, StatusRejected, StatusTimedOut,
	}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
	}

	open := []Status{StatusCreated, StatusMalformed, StatusValidated, StatusAccepted, StatusUnfulfillable, StatusRequiresExternalTermination}
	for _, s := range open {
		assert.False(t, s.Terminal(), "%s should not be terminal", s)
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("ACCEPTED")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, s)

	_, err = ParseStatus("accepted")
	assert.Error(t, err)
}

// --- Granularity Tests ---

func TestGranularity_Ordering(t *testing.T) {
	assert.Equal(t, -1, GranularityPT15M.Compare(GranularityPT1H))
	assert.Equal(t, 1, GranularityP1D.Compare(GranularityPT1H))
	assert.Equal(t, 0, GranularityP1D.Compare(GranularityP1D))
	assert.True(t, GranularityPT1H.Between(GranularityPT15M, GranularityP1D))
	assert.False(t, GranularityPT5M.Between(GranularityPT15M, GranularityP1D))
	assert.Equal(t, 15*time.Minute, GranularityPT15M.Duration())
}

func TestParseGranularity(t *testing.T) {
	g, err := ParseGranularity("PT15M")
	require.NoError(t, err)
	assert.Equal(t, GranularityPT15M, g)

	_, err = ParseGranularity("PT7M")
	assert.Error(t, err)
}

// --- Event Tests ---

func TestSimpleEvent_DiscriminatorFollowsStatus(t *testing.T) {
	ev := NewSimpleEvent("pid", StatusUnfulfillable)
	assert.Equal(t, EventUnfulfillable, ev.EventType())
	assert.Equal(t, EventType("unfulfillable"), ev.EventType())
	assert.Equal(t, EventType("requires_external_termination"), NewRequiresExternalTerminationEvent("pid").EventType())
	assert.NotEqual(t, EventCreated, NewSimpleEvent("pid", StatusCreated).EventType())
}

func TestIsInternal(t *testing.T) {
	assert.True(t, IsInternal(NewMeterReadingObservedEvent("pid", time.Now())))
	assert.True(t, IsInternal(NewGranularityUpdatedEvent("pid", StatusAccepted, GranularityPT1H)))
	assert.False(t, IsInternal(NewAcceptedEvent("pid")))
	assert.False(t, IsInternal(NewCreatedEvent("pid", "dnid", "cid")))
}

func TestStamp_KeepsExistingTimestamp(t *testing.T) {
	ev := NewAcceptedEvent("pid")
	first := time.Date(2024, 1, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	Stamp(ev, first)
	assert.Equal(t, time.UTC, ev.EventCreated().Location())
	assert.True(t, ev.EventCreated().Equal(first))

	Stamp(ev, first.Add(time.Hour))
	assert.True(t, ev.EventCreated().Equal(first))
}

func TestRestoreHeader(t *testing.T) {
	ev := &CreatedEvent{}
	created := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	RestoreHeader(ev, Header{Permission: "pid", State: StatusCreated, Created: created})

	assert.Equal(t, "pid", ev.PermissionID())
	assert.Equal(t, StatusCreated, ev.Status())
	assert.Equal(t, created, ev.EventCreated())
}

func TestValidatedEvent_JSONShape(t *testing.T) {
	tf := Timeframe{Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)}
	ev := NewValidatedEvent("pid", tf, &tf, GranularityPT15M)

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "pid", raw["permissionId"])
	assert.Equal(t, "VALIDATED", raw["status"])
	assert.Equal(t, "PT15M", raw["granularity"])
	assert.Contains(t, raw, "permissionTimeframe")
	assert.Contains(t, raw, "energyTimeframe")
}

// --- Projection Tests ---

func TestPermissionRequest_Apply(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	created := NewCreatedEvent("pid", "dnid", "cid")
	created.RegionID = "at-eda"
	Stamp(created, t0)

	tf := Timeframe{Start: t0.AddDate(0, -1, 0), End: t0.AddDate(0, 1, 0)}
	validated := NewValidatedEvent("pid", tf, &tf, GranularityPT15M)
	Stamp(validated, t0.Add(time.Minute))

	accepted := NewAcceptedEvent("pid")
	Stamp(accepted, t0.Add(2*time.Minute))

	reading := NewMeterReadingObservedEvent("pid", t0.Add(24*time.Hour))
	Stamp(reading, t0.Add(3*time.Minute))

	pr := &PermissionRequest{}
	for i, ev := range []PermissionEvent{created, validated, accepted, reading} {
		pr.Apply(StoredEvent{ID: int64(i + 1), Event: ev})
	}

	assert.Equal(t, "pid", pr.PermissionID)
	assert.Equal(t, "cid", pr.ConnectionID)
	assert.Equal(t, "dnid", pr.DataNeedID)
	assert.Equal(t, "at-eda", pr.RegionID)
	assert.Equal(t, StatusAccepted, pr.Status)
	assert.Equal(t, t0, pr.Created)
	assert.Equal(t, tf.End, pr.DataWindowEnd())
	assert.Equal(t, GranularityPT15M, pr.Granularity)
	assert.Equal(t, t0.Add(24*time.Hour), pr.LatestMeterReading)
	assert.Equal(t, int64(4), pr.Version)
}

func TestPermissionRequest_MalformedRecordsErrors(t *testing.T) {
	pr := &PermissionRequest{}
	pr.Apply(StoredEvent{ID: 1, Event: NewCreatedEvent("pid", "dnid", "cid")})
	pr.Apply(StoredEvent{ID: 2, Event: NewMalformedEvent("pid", []AttributeError{{Name: "dataNeedId", Message: "unknown"}})})

	assert.Equal(t, StatusMalformed, pr.Status)
	require.Len(t, pr.Errors, 1)
	assert.Equal(t, "dataNeedId", pr.Errors[0].Name)
}

type regionAccepted struct {
	Header
	MeteringPoint string
}

func (e *regionAccepted) EventType() EventType { return "test.accepted" }
func (e *regionAccepted) Project(pr *PermissionRequest) {
	pr.ConnectionID = pr.ConnectionID + "/" + e.MeteringPoint
}

func TestPermissionRequest_RegionProjector(t *testing.T) {
	pr := &PermissionRequest{}
	pr.Apply(StoredEvent{ID: 1, Event: NewCreatedEvent("pid", "dnid", "cid")})
	pr.Apply(StoredEvent{ID: 2, Event: &regionAccepted{Header: NewHeader("pid", StatusAccepted), MeteringPoint: "AT001"}})

	assert.Equal(t, StatusAccepted, pr.Status)
	assert.Equal(t, "cid/AT001", pr.ConnectionID)
}

// --- AppError Tests ---

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := ErrInternal("append failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "INTERNAL_ERROR")
	assert.Equal(t, 500, err.Status)
}

func TestErrMalformed_CarriesFields(t *testing.T) {
	err := ErrMalformed("pid", []AttributeError{{Name: "connectionId", Message: "must not be blank"}})
	assert.Equal(t, 400, err.Status)
	assert.Equal(t, "VALIDATION_ERROR", err.Code)
	assert.Len(t, err.Details, 1)
}
