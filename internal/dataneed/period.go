package dataneed

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var periodRegex = regexp.MustCompile(`^([-+]?)P(?:([-+]?\d+)Y)?(?:([-+]?\d+)M)?(?:([-+]?\d+)W)?(?:([-+]?\d+)D)?$`)

// Period is a calendar amount of years, months and days, such as P1Y2M3D.
type Period struct {
	Years  int
	Months int
	Days   int
}

// ParsePeriod reads an ISO-8601 date-based period. A leading minus negates
// every component, so -P10D equals P-10D.
func ParsePeriod(s string) (Period, error) {
	m := periodRegex.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(s)))
	if m == nil || (m[2] == "" && m[3] == "" && m[4] == "" && m[5] == "") {
		return Period{}, fmt.Errorf("invalid period: %q", s)
	}

	var parts [4]int
	for i, raw := range m[2:] {
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Period{}, fmt.Errorf("invalid period %q: %w", s, err)
		}
		parts[i] = n
	}

	p := Period{Years: parts[0], Months: parts[1], Days: parts[3] + 7*parts[2]}
	if m[1] == "-" {
		p = p.Negate()
	}
	return p, nil
}

// MustParsePeriod is ParsePeriod for literals known to be valid.
func MustParsePeriod(s string) Period {
	p, err := ParsePeriod(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Period) Negate() Period {
	return Period{Years: -p.Years, Months: -p.Months, Days: -p.Days}
}

func (p Period) IsZero() bool { return p == Period{} }

// AddTo shifts t by the period using calendar arithmetic.
func (p Period) AddTo(t time.Time) time.Time {
	return t.AddDate(p.Years, p.Months, p.Days)
}

func (p Period) String() string {
	if p.IsZero() {
		return "P0D"
	}
	var b strings.Builder
	b.WriteString("P")
	if p.Years != 0 {
		fmt.Fprintf(&b, "%dY", p.Years)
	}
	if p.Months != 0 {
		fmt.Fprintf(&b, "%dM", p.Months)
	}
	if p.Days != 0 {
		fmt.Fprintf(&b, "%dD", p.Days)
	}
	return b.String()
}

func (p Period) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Period) UnmarshalText(text []byte) error {
	parsed, err := ParsePeriod(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
