package dataneed

import "github.com/gridshare/platform/internal/domain"

// Result is the outcome of calculating one data need. Unsupported data
// needs are a normal Result, not an error.
type Result interface {
	result()
}

type NotSupportedResult struct {
	Message string
}

type NotFoundResult struct{}

type ValidatedHistoricalDataResult struct {
	Granularities []domain.Granularity
	Permission    domain.Timeframe
	Energy        domain.Timeframe
}

type AccountingPointResult struct {
	Permission domain.Timeframe
}

type AiidaResult struct {
	SupportsAllSchemas bool
	Energy             *domain.Timeframe
}

func (NotSupportedResult) result()            {}
func (NotFoundResult) result()                {}
func (ValidatedHistoricalDataResult) result() {}
func (AccountingPointResult) result()         {}
func (AiidaResult) result()                   {}

// MultipleResult is the outcome of calculating several data needs at once.
type MultipleResult interface {
	multiple()
}

// CalculationResults holds one Result per requested data-need id.
type CalculationResults map[string]Result

// InvalidCombination reports data needs that cannot be requested together.
type InvalidCombination struct {
	IDs     []string
	Message string
}

func (CalculationResults) multiple() {}
func (InvalidCombination) multiple() {}
