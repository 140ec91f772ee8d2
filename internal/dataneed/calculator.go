package dataneed

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Catalog looks up data needs by id.
type Catalog interface {
	FindByID(id string) (DataNeed, bool)
}

// Calculator evaluates data needs for one region.
type Calculator struct {
	region     RegionMetadata
	rules      RuleSet
	catalog    Catalog
	permission PermissionTimeframeStrategy
	energy     EnergyDataTimeframeStrategy
	clock      func() time.Time
	logger     *slog.Logger
}

// Option configures a Calculator.
type Option func(*Calculator)

func WithPermissionStrategy(s PermissionTimeframeStrategy) Option {
	return func(c *Calculator) { c.permission = s }
}

func WithEnergyStrategy(s EnergyDataTimeframeStrategy) Option {
	return func(c *Calculator) { c.energy = s }
}

func WithClock(clock func() time.Time) Option {
	return func(c *Calculator) { c.clock = clock }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Calculator) { c.logger = logger }
}

// NewCalculator uses PermissionEndIsEnergyDataEnd and the clamping energy
// strategy unless overridden.
func NewCalculator(region RegionMetadata, rules RuleSet, catalog Catalog, opts ...Option) *Calculator {
	c := &Calculator{
		region:     region,
		rules:      rules,
		catalog:    catalog,
		permission: PermissionEndIsEnergyDataEnd{},
		energy:     NewDefaultEnergyStrategy(region),
		clock:      time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Calculator) RegionID() string { return c.region.ID }

// Calculate evaluates dn relative to the reference date.
func (c *Calculator) Calculate(dn DataNeed, reference time.Time) Result {
	if !dn.Enabled {
		return NotSupportedResult{Message: "data need is disabled"}
	}
	if f := dn.Filter; f != nil {
		listed := f.contains(c.region.ID)
		if f.Kind == FilterAllowlist && !listed {
			return NotSupportedResult{Message: fmt.Sprintf("region %s is not in the allowlist", c.region.ID)}
		}
		if f.Kind == FilterBlocklist && listed {
			return NotSupportedResult{Message: fmt.Sprintf("region %s is in the blocklist", c.region.ID)}
		}
	}

	if !c.rules.Supports(dn.Type) {
		supported := c.rules.SupportedTypes()
		names := make([]string, len(supported))
		for i, t := range supported {
			names[i] = string(t)
		}
		return NotSupportedResult{Message: fmt.Sprintf(
			"data need type %q not supported, region supports data needs of types %s",
			dn.Type, strings.Join(names, ", "),
		)}
	}

	energy, err := c.energy.EnergyDataTimeframe(dn, reference)
	if err != nil {
		var unsupported *UnsupportedError
		if errors.As(err, &unsupported) {
			return NotSupportedResult{Message: unsupported.Reason}
		}
		c.logger.Error("energy data timeframe failed", "data_need_id", dn.ID, "error", err)
		return NotSupportedResult{Message: "could not calculate timeframe for this data need"}
	}
	permission := c.permission.PermissionTimeframe(energy, c.clock())

	switch dn.Type {
	case TypeValidatedHistoricalData:
		if energy == nil {
			c.logger.Warn("no energy data timeframe for validated historical data need", "data_need_id", dn.ID)
			return NotSupportedResult{Message: "could not calculate timeframe for this data need"}
		}
		if !c.region.offersEnergyType(dn.EnergyType) {
			return NotSupportedResult{Message: fmt.Sprintf("energy type %s is not offered by region %s", dn.EnergyType, c.region.ID)}
		}
		supported, ok := c.rules.historicalGranularities(dn.EnergyType)
		if !ok {
			return NotSupportedResult{Message: "energy type is not supported"}
		}
		granularities := c.region.restrictGranularities(ChooseGranularities(supported, dn.MinGranularity, dn.MaxGranularity))
		if len(granularities) == 0 {
			return NotSupportedResult{Message: "granularities are not supported"}
		}
		return ValidatedHistoricalDataResult{
			Granularities: granularities,
			Permission:    permission,
			Energy:        *energy,
		}
	case TypeInboundAiida, TypeOutboundAiida:
		return AiidaResult{SupportsAllSchemas: dn.SupportsAllSchemas, Energy: energy}
	case TypeAccountingPoint:
		return AccountingPointResult{Permission: permission}
	}
	return NotSupportedResult{Message: fmt.Sprintf("unknown data need type: %s", dn.Type)}
}

// CalculateByID looks the data need up in the catalog first.
func (c *Calculator) CalculateByID(id string, reference time.Time) Result {
	dn, ok := c.catalog.FindByID(id)
	if !ok {
		return NotFoundResult{}
	}
	return c.Calculate(dn, reference)
}

// CalculateAll evaluates several data needs requested together.
func (c *Calculator) CalculateAll(ids []string, reference time.Time) MultipleResult {
	ids = uniqueSorted(ids)
	if len(ids) == 1 {
		return CalculationResults{ids[0]: c.CalculateByID(ids[0], reference)}
	}
	if !c.rules.AllowsMultiple() {
		return InvalidCombination{IDs: ids, Message: "multiple data needs not supported"}
	}

	results := make(CalculationResults, len(ids))
	var found []DataNeed
	for _, id := range ids {
		dn, ok := c.catalog.FindByID(id)
		if !ok {
			results[id] = NotFoundResult{}
			continue
		}
		found = append(found, dn)
	}

	if invalid, ok := checkCombination(found); ok {
		return invalid
	}
	for _, dn := range found {
		results[dn.ID] = c.Calculate(dn, reference)
	}
	return results
}

func checkCombination(dns []DataNeed) (InvalidCombination, bool) {
	var aiida, accountingPoint, historical []string
	energyTypes := make(map[EnergyType]bool)
	repeatedEnergy := false
	for _, dn := range dns {
		switch {
		case dn.Type.Aiida():
			aiida = append(aiida, dn.ID)
		case dn.Type == TypeAccountingPoint:
			accountingPoint = append(accountingPoint, dn.ID)
		case dn.Type == TypeValidatedHistoricalData:
			historical = append(historical, dn.ID)
			if energyTypes[dn.EnergyType] {
				repeatedEnergy = true
			}
			energyTypes[dn.EnergyType] = true
		}
	}

	if len(aiida) > 0 && len(aiida) < len(dns) {
		return InvalidCombination{IDs: aiida, Message: "these data needs cannot be mixed with data needs of any other type"}, true
	}
	if len(accountingPoint) > 1 {
		return InvalidCombination{IDs: accountingPoint, Message: "only one accounting point data need allowed at a time"}, true
	}
	if repeatedEnergy {
		return InvalidCombination{IDs: historical, Message: "only one energy type allowed for validated historical data needs at a time"}, true
	}
	return InvalidCombination{}, false
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
