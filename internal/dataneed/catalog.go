package dataneed

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gridshare/platform/internal/domain"
	"gopkg.in/yaml.v3"
)

// MemoryCatalog is a Catalog backed by a map.
type MemoryCatalog struct {
	mu    sync.RWMutex
	needs map[string]DataNeed
}

func NewMemoryCatalog(needs ...DataNeed) *MemoryCatalog {
	c := &MemoryCatalog{needs: make(map[string]DataNeed, len(needs))}
	for _, dn := range needs {
		c.needs[dn.ID] = dn
	}
	return c
}

func (c *MemoryCatalog) FindByID(id string) (DataNeed, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	dn, ok := c.needs[id]
	return dn, ok
}

func (c *MemoryCatalog) Put(dn DataNeed) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.needs[dn.ID] = dn
}

func (c *MemoryCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.needs)
}

type catalogFile struct {
	DataNeeds []catalogEntry `yaml:"dataNeeds"`
}

type catalogEntry struct {
	ID                 string `yaml:"id"`
	Name               string `yaml:"name"`
	Type               Type   `yaml:"type"`
	Enabled            *bool  `yaml:"enabled"`
	EnergyType         string `yaml:"energyType"`
	MinGranularity     string `yaml:"minGranularity"`
	MaxGranularity     string `yaml:"maxGranularity"`
	SupportsAllSchemas bool   `yaml:"supportsAllSchemas"`
	Duration           *struct {
		Type  DurationKind `yaml:"type"`
		Start string       `yaml:"start"`
		End   string       `yaml:"end"`
	} `yaml:"duration"`
	RegionFilter *struct {
		Type    FilterKind `yaml:"type"`
		Regions []string   `yaml:"regions"`
	} `yaml:"regionFilter"`
}

// LoadCatalog reads a YAML data-need catalog from path.
func LoadCatalog(path string) (*MemoryCatalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read data needs: %w", err)
	}
	return ParseCatalog(raw)
}

// ParseCatalog decodes a YAML data-need catalog.
func ParseCatalog(raw []byte) (*MemoryCatalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse data needs: %w", err)
	}

	c := NewMemoryCatalog()
	for i, entry := range file.DataNeeds {
		dn, err := entry.toDataNeed()
		if err != nil {
			return nil, fmt.Errorf("data need #%d (%s): %w", i, entry.ID, err)
		}
		if _, dup := c.FindByID(dn.ID); dup {
			return nil, fmt.Errorf("duplicate data need id %q", dn.ID)
		}
		c.Put(dn)
	}
	return c, nil
}

func (e catalogEntry) toDataNeed() (DataNeed, error) {
	if e.ID == "" {
		return DataNeed{}, fmt.Errorf("id is required")
	}
	switch e.Type {
	case TypeValidatedHistoricalData, TypeAccountingPoint, TypeInboundAiida, TypeOutboundAiida:
	default:
		return DataNeed{}, fmt.Errorf("unknown type %q", e.Type)
	}

	dn := DataNeed{
		ID:                 e.ID,
		Name:               e.Name,
		Type:               e.Type,
		Enabled:            e.Enabled == nil || *e.Enabled,
		EnergyType:         EnergyType(e.EnergyType),
		SupportsAllSchemas: e.SupportsAllSchemas,
	}

	if e.Type == TypeValidatedHistoricalData {
		min, err := domain.ParseGranularity(e.MinGranularity)
		if err != nil {
			return DataNeed{}, fmt.Errorf("minGranularity: %w", err)
		}
		max, err := domain.ParseGranularity(e.MaxGranularity)
		if err != nil {
			return DataNeed{}, fmt.Errorf("maxGranularity: %w", err)
		}
		if min.Compare(max) > 0 {
			return DataNeed{}, fmt.Errorf("minGranularity %s is coarser than maxGranularity %s", min, max)
		}
		dn.MinGranularity, dn.MaxGranularity = min, max
	}

	if d := e.Duration; d != nil {
		switch d.Type {
		case DurationRelative:
			start, err := optionalPeriod(d.Start)
			if err != nil {
				return DataNeed{}, fmt.Errorf("duration.start: %w", err)
			}
			end, err := optionalPeriod(d.End)
			if err != nil {
				return DataNeed{}, fmt.Errorf("duration.end: %w", err)
			}
			dn.Duration = Relative(start, end)
		case DurationAbsolute:
			from, err := time.Parse(time.DateOnly, d.Start)
			if err != nil {
				return DataNeed{}, fmt.Errorf("duration.start: %w", err)
			}
			to, err := time.Parse(time.DateOnly, d.End)
			if err != nil {
				return DataNeed{}, fmt.Errorf("duration.end: %w", err)
			}
			if to.Before(from) {
				return DataNeed{}, fmt.Errorf("duration ends before it starts")
			}
			dn.Duration = Absolute(from, to)
		default:
			return DataNeed{}, fmt.Errorf("unknown duration type %q", d.Type)
		}
	} else if e.Type.Timeframed() {
		return DataNeed{}, fmt.Errorf("duration is required for %s", e.Type)
	}

	if f := e.RegionFilter; f != nil {
		if f.Type != FilterAllowlist && f.Type != FilterBlocklist {
			return DataNeed{}, fmt.Errorf("unknown region filter type %q", f.Type)
		}
		dn.Filter = &RegionFilter{Kind: f.Type, Regions: f.Regions}
	}
	return dn, nil
}

func optionalPeriod(s string) (*Period, error) {
	if s == "" {
		return nil, nil
	}
	p, err := ParsePeriod(s)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
