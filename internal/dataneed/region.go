package dataneed

import (
	"fmt"
	"os"
	"time"

	"github.com/gridshare/platform/internal/domain"
	"gopkg.in/yaml.v3"
)

// Profile is the static description of one region: its metadata and the
// data needs it declares support for.
type Profile struct {
	Region RegionMetadata
	Rules  RuleSet
}

type profileFile struct {
	ID            string   `yaml:"id"`
	Timezone      string   `yaml:"timezone"`
	EarliestStart string   `yaml:"earliestStart"`
	LatestEnd     string   `yaml:"latestEnd"`
	Granularities []string `yaml:"granularities"`
	EnergyTypes   []string `yaml:"energyTypes"`
	AllowMultiple bool     `yaml:"allowMultiple"`
	Supports      []struct {
		Type          Type     `yaml:"type"`
		EnergyType    string   `yaml:"energyType"`
		Granularities []string `yaml:"granularities"`
	} `yaml:"supports"`
}

// LoadProfile reads a YAML region profile from path.
func LoadProfile(path string) (Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read region profile: %w", err)
	}
	return ParseProfile(raw)
}

// ParseProfile decodes a YAML region profile.
func ParseProfile(raw []byte) (Profile, error) {
	var f profileFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Profile{}, fmt.Errorf("parse region profile: %w", err)
	}
	if f.ID == "" {
		return Profile{}, fmt.Errorf("region id is required")
	}

	region := RegionMetadata{ID: f.ID}
	var err error
	if region.EarliestStart, err = ParsePeriod(f.EarliestStart); err != nil {
		return Profile{}, fmt.Errorf("earliestStart: %w", err)
	}
	if region.LatestEnd, err = ParsePeriod(f.LatestEnd); err != nil {
		return Profile{}, fmt.Errorf("latestEnd: %w", err)
	}
	if f.Timezone != "" {
		if region.Location, err = time.LoadLocation(f.Timezone); err != nil {
			return Profile{}, fmt.Errorf("timezone: %w", err)
		}
	}
	if region.Granularities, err = parseGranularities(f.Granularities); err != nil {
		return Profile{}, err
	}
	for _, et := range f.EnergyTypes {
		region.EnergyTypes = append(region.EnergyTypes, EnergyType(et))
	}

	var rules RuleSet
	for i, s := range f.Supports {
		switch s.Type {
		case TypeValidatedHistoricalData:
			gs, err := parseGranularities(s.Granularities)
			if err != nil {
				return Profile{}, fmt.Errorf("supports #%d: %w", i, err)
			}
			if s.EnergyType == "" {
				return Profile{}, fmt.Errorf("supports #%d: energyType is required", i)
			}
			rules = append(rules, ValidatedHistoricalDataRule{EnergyType: EnergyType(s.EnergyType), Granularities: gs})
		case TypeAccountingPoint:
			rules = append(rules, AccountingPointRule{})
		case TypeInboundAiida:
			rules = append(rules, InboundAiidaRule{})
		case TypeOutboundAiida:
			rules = append(rules, OutboundAiidaRule{})
		default:
			return Profile{}, fmt.Errorf("supports #%d: unknown type %q", i, s.Type)
		}
	}
	if f.AllowMultiple {
		rules = append(rules, AllowMultipleRule{})
	}

	return Profile{Region: region, Rules: rules}, nil
}

func parseGranularities(raw []string) ([]domain.Granularity, error) {
	out := make([]domain.Granularity, 0, len(raw))
	for _, s := range raw {
		g, err := domain.ParseGranularity(s)
		if err != nil {
			return nil, fmt.Errorf("granularity: %w", err)
		}
		out = append(out, g)
	}
	return out, nil
}
