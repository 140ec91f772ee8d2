package domain

import (
	"strings"
	"time"
)

// EventType is the discriminator naming a PermissionEvent variant.
type EventType string

const (
	EventCreated              EventType = "permission_created"
	EventValidated            EventType = "permission_validated"
	EventMalformed            EventType = "permission_malformed"
	EventMeterReadingObserved EventType = "meter_reading_observed"
	EventGranularityUpdated   EventType = "granularity_updated"
)

// Discriminators of status-only events.
var (
	EventUnableToSend                  = SimpleEventType(StatusUnableToSend)
	EventPendingAcknowledgement        = SimpleEventType(StatusPendingAcknowledgement)
	EventSentToPermissionAdministrator = SimpleEventType(StatusSentToPermissionAdministrator)
	EventTimedOut                      = SimpleEventType(StatusTimedOut)
	EventAccepted                      = SimpleEventType(StatusAccepted)
	EventRejected                      = SimpleEventType(StatusRejected)
	EventInvalid                       = SimpleEventType(StatusInvalid)
	EventRevoked                       = SimpleEventType(StatusRevoked)
	EventTerminated                    = SimpleEventType(StatusTerminated)
	EventFulfilled                     = SimpleEventType(StatusFulfilled)
	EventUnfulfillable                 = SimpleEventType(StatusUnfulfillable)
	EventRequiresExternalTermination   = SimpleEventType(StatusRequiresExternalTermination)
	EventFailedToTerminate             = SimpleEventType(StatusFailedToTerminate)
	EventExternallyTerminated          = SimpleEventType(StatusExternallyTerminated)
)

// SimpleEventType returns the discriminator of a SimpleEvent carrying status.
func SimpleEventType(status Status) EventType {
	return EventType(strings.ToLower(string(status)))
}

// PermissionEvent is one immutable lifecycle fact about one permission request.
// The set of variants is closed: every implementation embeds Header.
type PermissionEvent interface {
	PermissionID() string
	Status() Status
	EventCreated() time.Time
	EventType() EventType
	header() *Header
}

// InternalEvent marks variants that are consumed inside the process and never
// published to eligible parties.
type InternalEvent interface {
	PermissionEvent
	Internal()
}

// IsInternal reports whether ev is an internal-only event.
func IsInternal(ev PermissionEvent) bool {
	_, ok := ev.(InternalEvent)
	return ok
}

// Header holds the fields shared by every PermissionEvent.
type Header struct {
	Permission string    `json:"permissionId"`
	State      Status    `json:"status"`
	Created    time.Time `json:"eventCreated"`
}

func (h *Header) PermissionID() string    { return h.Permission }
func (h *Header) Status() Status          { return h.State }
func (h *Header) EventCreated() time.Time { return h.Created }
func (h *Header) header() *Header         { return h }

// NewHeader builds a header for embedding in region-specific events.
func NewHeader(permissionID string, status Status) Header {
	return Header{Permission: permissionID, State: status}
}

// HeaderOf returns a copy of the shared fields of ev.
func HeaderOf(ev PermissionEvent) Header {
	return *ev.header()
}

// RestoreHeader overwrites the shared fields of ev. Used when reloading
// events from storage.
func RestoreHeader(ev PermissionEvent, h Header) {
	*ev.header() = h
}

// Stamp assigns the commit timestamp if the event does not carry one yet.
func Stamp(ev PermissionEvent, at time.Time) {
	h := ev.header()
	if h.Created.IsZero() {
		h.Created = at.UTC()
	}
}

// StoredEvent is an event together with its store-assigned identity.
type StoredEvent struct {
	ID    int64
	Event PermissionEvent
}

// SimpleEvent is a status-only transition without payload.
type SimpleEvent struct {
	Header
}

// NewSimpleEvent creates a status-only event.
func NewSimpleEvent(permissionID string, status Status) *SimpleEvent {
	return &SimpleEvent{Header: NewHeader(permissionID, status)}
}

func (e *SimpleEvent) EventType() EventType { return SimpleEventType(e.State) }

func NewAcceptedEvent(permissionID string) *SimpleEvent {
	return NewSimpleEvent(permissionID, StatusAccepted)
}

func NewFulfilledEvent(permissionID string) *SimpleEvent {
	return NewSimpleEvent(permissionID, StatusFulfilled)
}

func NewRevokedEvent(permissionID string) *SimpleEvent {
	return NewSimpleEvent(permissionID, StatusRevoked)
}

func NewUnfulfillableEvent(permissionID string) *SimpleEvent {
	return NewSimpleEvent(permissionID, StatusUnfulfillable)
}

func NewRequiresExternalTerminationEvent(permissionID string) *SimpleEvent {
	return NewSimpleEvent(permissionID, StatusRequiresExternalTermination)
}

func NewTimedOutEvent(permissionID string) *SimpleEvent {
	return NewSimpleEvent(permissionID, StatusTimedOut)
}

// CreatedEvent records the arrival of a new permission request.
type CreatedEvent struct {
	Header
	DataNeedID   string `json:"dataNeedId"`
	ConnectionID string `json:"connectionId"`
	RegionID     string `json:"regionId,omitempty"`
}

// NewCreatedEvent creates the first event of a permission request.
func NewCreatedEvent(permissionID, dataNeedID, connectionID string) *CreatedEvent {
	return &CreatedEvent{
		Header:       NewHeader(permissionID, StatusCreated),
		DataNeedID:   dataNeedID,
		ConnectionID: connectionID,
	}
}

func (e *CreatedEvent) EventType() EventType { return EventCreated }

// ValidatedEvent carries the resolved permission window, energy-data window
// and granularity.
type ValidatedEvent struct {
	Header
	Timeframe       Timeframe   `json:"permissionTimeframe"`
	EnergyTimeframe *Timeframe  `json:"energyTimeframe,omitempty"`
	Granularity     Granularity `json:"granularity,omitempty"`
}

// NewValidatedEvent creates a validation event. energy may be nil for data
// needs that do not collect metered data.
func NewValidatedEvent(permissionID string, permission Timeframe, energy *Timeframe, g Granularity) *ValidatedEvent {
	return &ValidatedEvent{
		Header:          NewHeader(permissionID, StatusValidated),
		Timeframe:       permission,
		EnergyTimeframe: energy,
		Granularity:     g,
	}
}

func (e *ValidatedEvent) EventType() EventType { return EventValidated }

// AttributeError names one invalid attribute of an inbound request.
type AttributeError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// MalformedEvent records that the request violates schema or business rules.
type MalformedEvent struct {
	Header
	Errors []AttributeError `json:"errors"`
}

func NewMalformedEvent(permissionID string, errs []AttributeError) *MalformedEvent {
	return &MalformedEvent{Header: NewHeader(permissionID, StatusMalformed), Errors: errs}
}

func (e *MalformedEvent) EventType() EventType { return EventMalformed }

// MeterReadingObservedEvent reports the end of the latest metered interval
// received for an accepted request.
type MeterReadingObservedEvent struct {
	Header
	ReadingEnd time.Time `json:"readingEnd"`
}

func NewMeterReadingObservedEvent(permissionID string, readingEnd time.Time) *MeterReadingObservedEvent {
	return &MeterReadingObservedEvent{
		Header:     NewHeader(permissionID, StatusAccepted),
		ReadingEnd: readingEnd.UTC(),
	}
}

func (e *MeterReadingObservedEvent) EventType() EventType { return EventMeterReadingObserved }
func (e *MeterReadingObservedEvent) Internal()            {}

// GranularityUpdatedEvent records a granularity change negotiated with the
// permission administrator.
type GranularityUpdatedEvent struct {
	Header
	Granularity Granularity `json:"granularity"`
}

func NewGranularityUpdatedEvent(permissionID string, status Status, g Granularity) *GranularityUpdatedEvent {
	return &GranularityUpdatedEvent{Header: NewHeader(permissionID, status), Granularity: g}
}

func (e *GranularityUpdatedEvent) EventType() EventType { return EventGranularityUpdated }
func (e *GranularityUpdatedEvent) Internal()            {}
