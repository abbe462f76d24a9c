package domain

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed corrections.yaml
var defaultCorrectionsYAML []byte

// ErrInvalidCorrections is returned when a correction table is ambiguous or
// would change its own output on a second application.
var ErrInvalidCorrections = errors.New("invalid corrections")

// CorrectionTable is the file form of the city and state correction rules.
type CorrectionTable struct {
	CityAliases    map[string]string `yaml:"city_aliases"`
	CityOverrides  []CityOverride    `yaml:"city_overrides"`
	StateOverrides []StateOverride   `yaml:"state_overrides"`
}

// CityOverride rewrites a city when it appears in State or on Date.
// Exactly one of State and Date is set.
type CityOverride struct {
	City  string `yaml:"city"`
	State string `yaml:"state,omitempty"`
	Date  string `yaml:"date,omitempty"`
	To    string `yaml:"to"`
}

// StateOverride rewrites the state of City when it appears in State.
type StateOverride struct {
	City  string `yaml:"city"`
	State string `yaml:"state"`
	To    string `yaml:"to"`
}

type place struct {
	city  string
	state string
}

type cityDay struct {
	city string
	day  string
}

// Corrections is an immutable, validated correction table. All conditions
// are exact matches on the aliased city and the incoming state or date, so
// the result does not depend on rule order.
type Corrections struct {
	aliases     map[string]string
	cityByState map[place]string
	cityByDate  map[cityDay]string
	stateByCity map[place]string
}

// DefaultCorrections returns the built-in correction table.
func DefaultCorrections() (*Corrections, error) {
	return ParseCorrections(defaultCorrectionsYAML)
}

// LoadCorrections reads a YAML correction table from path.
func LoadCorrections(path string) (*Corrections, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corrections: %w", err)
	}
	return ParseCorrections(data)
}

// ParseCorrections decodes and validates a YAML correction table.
func ParseCorrections(data []byte) (*Corrections, error) {
	var table CorrectionTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse corrections: %w", err)
	}
	return NewCorrections(table)
}

// NewCorrections compiles a table and checks that applying it twice gives
// the same result as applying it once.
func NewCorrections(table CorrectionTable) (*Corrections, error) {
	c := &Corrections{
		aliases:     make(map[string]string, len(table.CityAliases)),
		cityByState: make(map[place]string),
		cityByDate:  make(map[cityDay]string),
		stateByCity: make(map[place]string),
	}
	for from, to := range table.CityAliases {
		c.aliases[from] = to
	}

	for _, r := range table.CityOverrides {
		switch {
		case (r.State == "") == (r.Date == ""):
			return nil, fmt.Errorf("%w: city override %q needs exactly one of state or date", ErrInvalidCorrections, r.City)
		case r.State != "":
			k := place{r.City, r.State}
			if prev, ok := c.cityByState[k]; ok && prev != r.To {
				return nil, fmt.Errorf("%w: conflicting city overrides for %q in %q", ErrInvalidCorrections, r.City, r.State)
			}
			c.cityByState[k] = r.To
		default:
			if _, err := time.Parse(isoDateLayout, r.Date); err != nil {
				return nil, fmt.Errorf("%w: city override %q: bad date %q", ErrInvalidCorrections, r.City, r.Date)
			}
			k := cityDay{r.City, r.Date}
			if prev, ok := c.cityByDate[k]; ok && prev != r.To {
				return nil, fmt.Errorf("%w: conflicting city overrides for %q on %s", ErrInvalidCorrections, r.City, r.Date)
			}
			c.cityByDate[k] = r.To
		}
	}

	for _, r := range table.StateOverrides {
		k := place{r.City, r.State}
		if prev, ok := c.stateByCity[k]; ok && prev != r.To {
			return nil, fmt.Errorf("%w: conflicting state overrides for %q in %q", ErrInvalidCorrections, r.City, r.State)
		}
		c.stateByCity[k] = r.To
	}

	if err := c.validate(table); err != nil {
		return nil, err
	}
	return c, nil
}

// Apply returns the corrected city and state. date may be zero.
func (c *Corrections) Apply(city, state string, date time.Time) (string, string) {
	base := city
	if to, ok := c.aliases[city]; ok {
		base = to
	}

	newCity := base
	if to, ok := c.cityByState[place{base, state}]; ok {
		newCity = to
	} else if !date.IsZero() {
		if to, ok := c.cityByDate[cityDay{base, date.Format(isoDateLayout)}]; ok {
			newCity = to
		}
	}

	newState := state
	if to, ok := c.stateByCity[place{base, state}]; ok {
		newState = to
	}
	return newCity, newState
}

func (c *Corrections) validate(table CorrectionTable) error {
	var problems []string

	dateCities := make(map[string]bool)
	for k := range c.cityByDate {
		dateCities[k.city] = true
	}
	for k := range c.cityByState {
		if dateCities[k.city] {
			problems = append(problems, fmt.Sprintf("city %q has both state and date overrides", k.city))
		}
	}

	for from, to := range c.aliases {
		if _, ok := c.aliases[to]; ok {
			problems = append(problems, fmt.Sprintf("alias %q -> %q chains into another alias", from, to))
		}
	}

	type sample struct {
		city, state string
		date        time.Time
	}
	var samples []sample
	for from := range c.aliases {
		samples = append(samples, sample{city: from})
	}
	for _, r := range table.CityOverrides {
		if _, ok := c.aliases[r.City]; ok {
			problems = append(problems, fmt.Sprintf("city override on alias %q never matches", r.City))
		}
		d, _ := time.Parse(isoDateLayout, r.Date)
		samples = append(samples, sample{city: r.City, state: r.State, date: d})
	}
	for _, r := range table.StateOverrides {
		if _, ok := c.aliases[r.City]; ok {
			problems = append(problems, fmt.Sprintf("state override on alias %q never matches", r.City))
		}
		samples = append(samples, sample{city: r.City, state: r.State})
	}

	for _, p := range samples {
		city, state := c.Apply(p.city, p.state, p.date)
		city2, state2 := c.Apply(city, state, p.date)
		if city2 != city || state2 != state {
			problems = append(problems, fmt.Sprintf("(%s, %s) -> (%s, %s) -> (%s, %s) is not stable",
				p.city, p.state, city, state, city2, state2))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("%w: %v", ErrInvalidCorrections, problems)
}
