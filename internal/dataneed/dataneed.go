// Package dataneed derives the permission timeframe, energy-data timeframe and
// granularities a region can grant for a declared data need.
package dataneed

import (
	"time"

	"github.com/gridshare/platform/internal/domain"
)

// Type names a kind of data need.
type Type string

const (
	TypeValidatedHistoricalData Type = "validated-historical-data"
	TypeAccountingPoint         Type = "accounting-point"
	TypeInboundAiida            Type = "inbound-aiida"
	TypeOutboundAiida           Type = "outbound-aiida"
)

func (t Type) Aiida() bool {
	return t == TypeInboundAiida || t == TypeOutboundAiida
}

// Timeframed reports whether data needs of this type declare a data window.
func (t Type) Timeframed() bool {
	return t == TypeValidatedHistoricalData || t.Aiida()
}

// EnergyType is the medium being metered.
type EnergyType string

const (
	EnergyElectricity EnergyType = "ELECTRICITY"
	EnergyNaturalGas  EnergyType = "NATURAL_GAS"
	EnergyHydrogen    EnergyType = "HYDROGEN"
	EnergyHeat        EnergyType = "HEAT"
)

// DurationKind distinguishes relative from absolute data windows.
type DurationKind string

const (
	DurationRelative DurationKind = "relative"
	DurationAbsolute DurationKind = "absolute"
)

// Duration is the desired data window of a data need. Relative windows are
// offsets from the reference date; a nil offset means the region's bound.
type Duration struct {
	Kind  DurationKind
	Start *Period
	End   *Period
	From  time.Time
	To    time.Time
}

// Relative builds a relative window. Pass nil for an open end.
func Relative(start, end *Period) *Duration {
	return &Duration{Kind: DurationRelative, Start: start, End: end}
}

// Absolute builds a window between two fixed dates.
func Absolute(from, to time.Time) *Duration {
	return &Duration{Kind: DurationAbsolute, From: from, To: to}
}

func (d *Duration) resolve(today, earliest, latest time.Time) (time.Time, time.Time) {
	if d.Kind == DurationAbsolute {
		return dateOf(d.From, time.UTC), dateOf(d.To, time.UTC)
	}
	start, end := earliest, latest
	if d.Start != nil {
		start = d.Start.AddTo(today)
	}
	if d.End != nil {
		end = d.End.AddTo(today)
	}
	return start, end
}

// FilterKind selects allowlist or blocklist semantics.
type FilterKind string

const (
	FilterAllowlist FilterKind = "allowlist"
	FilterBlocklist FilterKind = "blocklist"
)

// RegionFilter limits which regions may serve a data need.
type RegionFilter struct {
	Kind    FilterKind
	Regions []string
}

func (f *RegionFilter) contains(regionID string) bool {
	for _, id := range f.Regions {
		if id == regionID {
			return true
		}
	}
	return false
}

// DataNeed declares what data an eligible party wants.
type DataNeed struct {
	ID                 string
	Name               string
	Type               Type
	Enabled            bool
	Duration           *Duration
	EnergyType         EnergyType
	MinGranularity     domain.Granularity
	MaxGranularity     domain.Granularity
	Filter             *RegionFilter
	SupportsAllSchemas bool
}

// RegionMetadata describes the data window and resolutions a region offers.
type RegionMetadata struct {
	ID            string
	EarliestStart Period
	LatestEnd     Period
	Granularities []domain.Granularity
	Location      *time.Location
	EnergyTypes   []EnergyType
}

// offersEnergyType reports whether the region delivers et. An empty
// EnergyTypes list places no restriction.
func (r RegionMetadata) offersEnergyType(et EnergyType) bool {
	if len(r.EnergyTypes) == 0 {
		return true
	}
	for _, t := range r.EnergyTypes {
		if t == et {
			return true
		}
	}
	return false
}

// restrictGranularities keeps the members of gs the region offers, in order.
func (r RegionMetadata) restrictGranularities(gs []domain.Granularity) []domain.Granularity {
	if len(r.Granularities) == 0 {
		return gs
	}
	var out []domain.Granularity
	for _, g := range gs {
		for _, offered := range r.Granularities {
			if g == offered {
				out = append(out, g)
				break
			}
		}
	}
	return out
}

func (r RegionMetadata) location() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

// bounds returns the earliest start and latest end dates relative to today.
func (r RegionMetadata) bounds(today time.Time) (time.Time, time.Time) {
	return r.EarliestStart.AddTo(today), r.LatestEnd.AddTo(today)
}

// dateOf returns the calendar date of t in loc as midnight UTC.
func dateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
