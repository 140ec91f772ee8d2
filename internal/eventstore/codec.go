package eventstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gridshare/platform/internal/domain"
)

// ErrUnknownEventType is returned when a discriminator has no registered factory.
var ErrUnknownEventType = errors.New("unknown event type")

// Factory returns a zero value of one event variant, ready to be decoded into.
type Factory func() domain.PermissionEvent

type registration struct {
	region  string
	factory Factory
}

// Registry maps event discriminators to their variants. Region modules add
// their own variants at startup.
type Registry struct {
	mu      sync.RWMutex
	entries map[domain.EventType]registration
}

// NewRegistry returns a registry holding the shared event variants.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[domain.EventType]registration)}

	core := map[domain.EventType]Factory{
		domain.EventCreated:              func() domain.PermissionEvent { return &domain.CreatedEvent{} },
		domain.EventValidated:            func() domain.PermissionEvent { return &domain.ValidatedEvent{} },
		domain.EventMalformed:            func() domain.PermissionEvent { return &domain.MalformedEvent{} },
		domain.EventMeterReadingObserved: func() domain.PermissionEvent { return &domain.MeterReadingObservedEvent{} },
		domain.EventGranularityUpdated:   func() domain.PermissionEvent { return &domain.GranularityUpdatedEvent{} },
	}
	for t, f := range core {
		r.entries[t] = registration{factory: f}
	}
	for _, st := range domain.Statuses {
		r.entries[domain.SimpleEventType(st)] = registration{
			factory: func() domain.PermissionEvent { return &domain.SimpleEvent{} },
		}
	}
	return r
}

// Register adds a shared variant.
func (r *Registry) Register(t domain.EventType, f Factory) error {
	return r.RegisterRegion("", t, f)
}

// RegisterRegion adds a variant owned by a region module. Records of that
// variant are tagged with the region id.
func (r *Registry) RegisterRegion(region string, t domain.EventType, f Factory) error {
	if t == "" || f == nil {
		return fmt.Errorf("register event type %q: empty discriminator or factory", t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[t]; exists {
		return fmt.Errorf("register event type %q: already registered", t)
	}
	r.entries[t] = registration{region: region, factory: f}
	return nil
}

// Known reports whether t has a registered factory.
func (r *Registry) Known(t domain.EventType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[t]
	return ok
}

// Encode turns an event into a storable record. The record id is left zero.
func (r *Registry) Encode(ev domain.PermissionEvent) (domain.EventRecord, error) {
	t := ev.EventType()

	r.mu.RLock()
	reg, ok := r.entries[t]
	r.mu.RUnlock()
	if !ok {
		return domain.EventRecord{}, fmt.Errorf("encode %q: %w", t, ErrUnknownEventType)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return domain.EventRecord{}, fmt.Errorf("encode %q: %w", t, err)
	}

	h := domain.HeaderOf(ev)
	rec := domain.EventRecord{
		PermissionID: h.Permission,
		RegionID:     reg.region,
		EventType:    t,
		Status:       h.State,
		EventCreated: h.Created,
		Payload:      payload,
	}
	if created, ok := ev.(*domain.CreatedEvent); ok && created.RegionID != "" {
		rec.RegionID = created.RegionID
	}
	return rec, nil
}

// Decode rebuilds the event held by a record. The record's shared columns
// take precedence over the payload.
func (r *Registry) Decode(rec domain.EventRecord) (domain.StoredEvent, error) {
	r.mu.RLock()
	reg, ok := r.entries[rec.EventType]
	r.mu.RUnlock()
	if !ok {
		return domain.StoredEvent{}, fmt.Errorf("decode %q (id %d): %w", rec.EventType, rec.ID, ErrUnknownEventType)
	}

	ev := reg.factory()
	if len(rec.Payload) > 0 {
		if err := json.Unmarshal(rec.Payload, ev); err != nil {
			return domain.StoredEvent{}, fmt.Errorf("decode %q (id %d): %w", rec.EventType, rec.ID, err)
		}
	}
	domain.RestoreHeader(ev, domain.Header{
		Permission: rec.PermissionID,
		State:      rec.Status,
		Created:    rec.EventCreated,
	})
	if ev.EventType() != rec.EventType {
		return domain.StoredEvent{}, fmt.Errorf("decode %q (id %d): payload decodes as %q", rec.EventType, rec.ID, ev.EventType())
	}
	return domain.StoredEvent{ID: rec.ID, Event: ev}, nil
}

func (r *Registry) decodeAll(records []domain.EventRecord) ([]domain.StoredEvent, error) {
	events := make([]domain.StoredEvent, 0, len(records))
	for _, rec := range records {
		stored, err := r.Decode(rec)
		if err != nil {
			return nil, err
		}
		events = append(events, stored)
	}
	return events, nil
}
