package dataneed

import (
	"sort"

	"github.com/gridshare/platform/internal/domain"
)

// Rule is one capability a region declares.
type Rule interface {
	rule()
}

// ValidatedHistoricalDataRule allows historical metered data of one energy
// type at the listed granularities.
type ValidatedHistoricalDataRule struct {
	EnergyType    EnergyType
	Granularities []domain.Granularity
}

type AccountingPointRule struct{}
type InboundAiidaRule struct{}
type OutboundAiidaRule struct{}

// AllowMultipleRule permits several data needs in a single request.
type AllowMultipleRule struct{}

func (ValidatedHistoricalDataRule) rule() {}
func (AccountingPointRule) rule()         {}
func (InboundAiidaRule) rule()            {}
func (OutboundAiidaRule) rule()           {}
func (AllowMultipleRule) rule()           {}

// RuleSet is the full list of capabilities of a region.
type RuleSet []Rule

func ruleType(r Rule) (Type, bool) {
	switch r.(type) {
	case ValidatedHistoricalDataRule:
		return TypeValidatedHistoricalData, true
	case AccountingPointRule:
		return TypeAccountingPoint, true
	case InboundAiidaRule:
		return TypeInboundAiida, true
	case OutboundAiidaRule:
		return TypeOutboundAiida, true
	}
	return "", false
}

// Supports reports whether any rule covers data needs of type t.
func (rs RuleSet) Supports(t Type) bool {
	for _, r := range rs {
		if rt, ok := ruleType(r); ok && rt == t {
			return true
		}
	}
	return false
}

// SupportedTypes lists the covered data-need types, sorted and unique.
func (rs RuleSet) SupportedTypes() []Type {
	seen := make(map[Type]bool)
	var types []Type
	for _, r := range rs {
		if t, ok := ruleType(r); ok && !seen[t] {
			seen[t] = true
			types = append(types, t)
		}
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func (rs RuleSet) AllowsMultiple() bool {
	for _, r := range rs {
		if _, ok := r.(AllowMultipleRule); ok {
			return true
		}
	}
	return false
}

// historicalGranularities returns the granularities declared for an energy
// type by the first matching rule.
func (rs RuleSet) historicalGranularities(et EnergyType) ([]domain.Granularity, bool) {
	for _, r := range rs {
		if vhd, ok := r.(ValidatedHistoricalDataRule); ok && vhd.EnergyType == et {
			return vhd.Granularities, true
		}
	}
	return nil, false
}

// ChooseGranularities returns the members of supported within [min, max],
// finest first.
func ChooseGranularities(supported []domain.Granularity, min, max domain.Granularity) []domain.Granularity {
	var out []domain.Granularity
	for _, g := range domain.Granularities {
		if !g.Between(min, max) {
			continue
		}
		for _, s := range supported {
			if s == g {
				out = append(out, g)
				break
			}
		}
	}
	return out
}
