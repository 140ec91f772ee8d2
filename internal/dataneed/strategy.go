package dataneed

import (
	"fmt"
	"time"

	"github.com/gridshare/platform/internal/domain"
)

// UnsupportedError is returned by strategies that cannot represent a data
// need. The calculator converts it into a NotSupportedResult.
type UnsupportedError struct {
	DataNeedID string
	Reason     string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("data need %s unsupported: %s", e.DataNeedID, e.Reason)
}

// EnergyDataTimeframeStrategy computes the window of metered data. A nil
// timeframe means the data need has none.
type EnergyDataTimeframeStrategy interface {
	EnergyDataTimeframe(dn DataNeed, reference time.Time) (*domain.Timeframe, error)
}

// PermissionTimeframeStrategy computes how long the permission must last to
// cover an energy-data window.
type PermissionTimeframeStrategy interface {
	PermissionTimeframe(energy *domain.Timeframe, now time.Time) domain.Timeframe
}

// BoundedEnergyStrategy resolves the data window against the region's
// earliest-start and latest-end bounds. Open ends take the bound. When Strict
// is false the window is clamped into the bounds; otherwise a window
// reaching past them is unsupported.
type BoundedEnergyStrategy struct {
	Region RegionMetadata
	Strict bool
}

// NewDefaultEnergyStrategy clamps data windows into the region bounds.
func NewDefaultEnergyStrategy(region RegionMetadata) *BoundedEnergyStrategy {
	return &BoundedEnergyStrategy{Region: region}
}

// NewStrictEnergyStrategy rejects data windows outside the region bounds.
func NewStrictEnergyStrategy(region RegionMetadata) *BoundedEnergyStrategy {
	return &BoundedEnergyStrategy{Region: region, Strict: true}
}

func (s *BoundedEnergyStrategy) EnergyDataTimeframe(dn DataNeed, reference time.Time) (*domain.Timeframe, error) {
	if !dn.Type.Timeframed() || dn.Duration == nil {
		return nil, nil
	}

	today := dateOf(reference, s.Region.location())
	earliest, latest := s.Region.bounds(today)
	start, end := dn.Duration.resolve(today, earliest, latest)

	if s.Strict {
		if start.Before(earliest) {
			return nil, &UnsupportedError{DataNeedID: dn.ID, Reason: fmt.Sprintf("start %s is before the earliest supported date %s", start.Format(time.DateOnly), earliest.Format(time.DateOnly))}
		}
		if end.After(latest) {
			return nil, &UnsupportedError{DataNeedID: dn.ID, Reason: fmt.Sprintf("end %s is after the latest supported date %s", end.Format(time.DateOnly), latest.Format(time.DateOnly))}
		}
	} else {
		if start.Before(earliest) {
			start = earliest
		}
		if end.After(latest) {
			end = latest
		}
	}

	if end.Before(start) {
		return nil, &UnsupportedError{DataNeedID: dn.ID, Reason: "data window ends before it starts"}
	}
	return &domain.Timeframe{Start: start, End: end}, nil
}

// PermissionEndIsEnergyDataEnd grants the permission from today until the
// energy-data window ends. Data needs without a window get a one-day
// permission.
type PermissionEndIsEnergyDataEnd struct{}

func (PermissionEndIsEnergyDataEnd) PermissionTimeframe(energy *domain.Timeframe, now time.Time) domain.Timeframe {
	today := dateOf(now, time.UTC)
	if energy == nil || energy.End.Before(today) {
		return domain.Timeframe{Start: today, End: today}
	}
	return domain.Timeframe{Start: today, End: energy.End}
}

// ExtendedPermissionEnd keeps the permission open for Extension past the end
// of the energy-data window, for regions that deliver data late.
type ExtendedPermissionEnd struct {
	Extension Period
}

func (s ExtendedPermissionEnd) PermissionTimeframe(energy *domain.Timeframe, now time.Time) domain.Timeframe {
	base := PermissionEndIsEnergyDataEnd{}.PermissionTimeframe(energy, now)
	base.End = s.Extension.AddTo(base.End)
	return base
}
