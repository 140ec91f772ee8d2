package domain

import "time"

// PermissionRequest is the projection of a permission request's event log.
// It is only ever built by applying stored events in commit order.
type PermissionRequest struct {
	PermissionID       string           `json:"permissionId"`
	ConnectionID       string           `json:"connectionId"`
	DataNeedID         string           `json:"dataNeedId"`
	RegionID           string           `json:"regionId,omitempty"`
	Status             Status           `json:"status"`
	Created            time.Time        `json:"created"`
	Updated            time.Time        `json:"updated"`
	Start              time.Time        `json:"start,omitempty"`
	End                time.Time        `json:"end,omitempty"`
	DataStart          time.Time        `json:"dataStart,omitempty"`
	DataEnd            time.Time        `json:"dataEnd,omitempty"`
	Granularity        Granularity      `json:"granularity,omitempty"`
	LatestMeterReading time.Time        `json:"latestMeterReading,omitempty"`
	Errors             []AttributeError `json:"errors,omitempty"`
	Version            int64            `json:"version"`
}

// Projector is implemented by region-specific events that carry payload the
// projection should absorb.
type Projector interface {
	Project(pr *PermissionRequest)
}

// Apply folds one stored event into the projection.
func (pr *PermissionRequest) Apply(stored StoredEvent) {
	ev := stored.Event
	h := HeaderOf(ev)

	if pr.PermissionID == "" {
		pr.PermissionID = h.Permission
		pr.Created = h.Created
	}
	pr.Status = h.State
	pr.Updated = h.Created
	pr.Version = stored.ID

	switch e := ev.(type) {
	case *CreatedEvent:
		pr.ConnectionID = e.ConnectionID
		pr.DataNeedID = e.DataNeedID
		pr.RegionID = e.RegionID
		pr.Created = h.Created
	case *ValidatedEvent:
		pr.Start = e.Timeframe.Start
		pr.End = e.Timeframe.End
		if e.EnergyTimeframe != nil {
			pr.DataStart = e.EnergyTimeframe.Start
			pr.DataEnd = e.EnergyTimeframe.End
		}
		pr.Granularity = e.Granularity
		pr.Errors = nil
	case *MalformedEvent:
		pr.Errors = append([]AttributeError(nil), e.Errors...)
	case *MeterReadingObservedEvent:
		if e.ReadingEnd.After(pr.LatestMeterReading) {
			pr.LatestMeterReading = e.ReadingEnd
		}
	case *GranularityUpdatedEvent:
		pr.Granularity = e.Granularity
	case Projector:
		e.Project(pr)
	}
}

// DataWindowEnd returns the end of the energy-data window, falling back to
// the permission end when the request has no separate data window.
func (pr *PermissionRequest) DataWindowEnd() time.Time {
	if !pr.DataEnd.IsZero() {
		return pr.DataEnd
	}
	return pr.End
}
