package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Granularity is the width of a time bucket.
type Granularity string

const (
	GranularityYear  Granularity = "year"
	GranularityMonth Granularity = "month"
	GranularityWeek  Granularity = "week"
	GranularityDay   Granularity = "day"
)

// Granularities lists the bucket widths published per refresh.
func Granularities() []Granularity {
	return []Granularity{GranularityYear, GranularityMonth, GranularityWeek}
}

// ParseGranularity validates a granularity name.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(s); g {
	case GranularityYear, GranularityMonth, GranularityWeek, GranularityDay:
		return g, nil
	}
	return "", fmt.Errorf("unknown granularity %q", s)
}

// Bucket is a time bucket identified by its first day in UTC.
type Bucket struct {
	Granularity Granularity
	Start       time.Time
}

// BucketOf returns the bucket containing t. Weeks start on Monday.
func BucketOf(g Granularity, t time.Time) Bucket {
	y, m, d := t.Date()
	var start time.Time
	switch g {
	case GranularityYear:
		start = time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
	case GranularityMonth:
		start = time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	case GranularityWeek:
		offset := (int(t.Weekday()) + 6) % 7
		start = time.Date(y, m, d-offset, 0, 0, 0, 0, time.UTC)
	default:
		start = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return Bucket{Granularity: g, Start: start}
}

// ParseBucket parses a bucket label as produced by Bucket.String.
func ParseBucket(g Granularity, s string) (Bucket, error) {
	var (
		t   time.Time
		err error
	)
	switch g {
	case GranularityYear:
		var y int
		y, err = strconv.Atoi(s)
		t = time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
	case GranularityMonth:
		t, err = time.Parse("2006-01", s)
	default:
		t, err = time.Parse(isoDateLayout, s)
	}
	if err != nil {
		return Bucket{}, fmt.Errorf("parse %s bucket %q: %w", g, s, err)
	}
	return BucketOf(g, t), nil
}

// Before orders buckets by start.
func (b Bucket) Before(o Bucket) bool { return b.Start.Before(o.Start) }

// String renders the bucket as a year, "YYYY-MM", or the first day.
func (b Bucket) String() string {
	switch b.Granularity {
	case GranularityYear:
		return strconv.Itoa(b.Start.Year())
	case GranularityMonth:
		return b.Start.Format("2006-01")
	default:
		return b.Start.Format(isoDateLayout)
	}
}

// MarshalText encodes the bucket by its label.
func (b Bucket) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// Level is the administrative level of a locality key.
type Level string

const (
	LevelDistrict Level = "district"
	LevelState    Level = "state"
	LevelRegion   Level = "region"
	LevelCountry  Level = "country"
)

// Sentinel and range constants for locality keys.
const (
	CountryKey = 0
	WestKey    = -1
	EastKey    = -2

	// StateKeyDivisor turns a district key into its state key.
	StateKeyDivisor = 1000
	// MaxStateKey is the largest state key (Thüringen).
	MaxStateKey = 16
	// MaxWestStateKey is the largest state key in West Germany.
	MaxWestStateKey = 10

	CountryName = "Germany"
	WestName    = "West Germany"
	EastName    = "East Germany"
)

// ParseLevel validates a level name.
func ParseLevel(s string) (Level, error) {
	switch l := Level(s); l {
	case LevelDistrict, LevelState, LevelRegion, LevelCountry:
		return l, nil
	}
	return "", fmt.Errorf("unknown level %q", s)
}

// LevelOf classifies a locality key.
func LevelOf(key int) Level {
	switch {
	case key < CountryKey:
		return LevelRegion
	case key == CountryKey:
		return LevelCountry
	case key <= MaxStateKey:
		return LevelState
	default:
		return LevelDistrict
	}
}

// StateKey returns the state key of a district key.
func StateKey(districtKey int) int { return districtKey / StateKeyDivisor }

// Cell is one panel row: the incident count for a locality, time bucket and
// category, with the population-normalized rate.
type Cell struct {
	Key      int      `json:"key"`
	Time     Bucket   `json:"time"`
	Category Category `json:"category_en"`
	Attacks  int      `json:"attacks"`
	Name     string   `json:"name"`
	State    string   `json:"state"`
	Pop      int64    `json:"pop"`
	// AttackPop is attacks per 100,000 inhabitants, nil when Pop is zero.
	AttackPop    *float64 `json:"attack_pop"`
	AttackPopBin string   `json:"attack_pop_c,omitempty"`
}

// Level returns the administrative level of the cell's key.
func (c Cell) Level() Level { return LevelOf(c.Key) }

// Panel is the dense output of one aggregation run.
type Panel struct {
	Granularity Granularity `json:"granularity"`
	RefreshedAt time.Time   `json:"refreshed_at"`
	Cells       []Cell      `json:"cells"`
}
