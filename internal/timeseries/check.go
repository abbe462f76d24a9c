package timeseries

import (
	"fmt"
	"math"
	"slices"

	"github.com/couchcryptid/arvig-etl/internal/domain"
)

// Check groups the integrity problems found in one panel.
type Check struct {
	Name     string
	Problems []string
}

func (c *Check) errorf(format string, args ...any) {
	c.Problems = append(c.Problems, fmt.Sprintf(format, args...))
}

// Passed reports whether the check found nothing.
func (c *Check) Passed() bool { return len(c.Problems) == 0 }

type sliceKey struct {
	bucket   domain.Bucket
	category domain.Category
}

// Verify runs the panel invariants over cells: every district carries the
// same dense grid, every roll-up level sums to the country, "All" covers
// the named categories and each rate matches its count and population.
// Problems within a check are sorted.
func Verify(cells []domain.Cell) []*Check {
	checks := []*Check{
		checkDensity(cells),
		checkRollups(cells),
		checkAllCategory(cells),
		checkRates(cells),
	}
	for _, c := range checks {
		slices.Sort(c.Problems)
	}
	return checks
}

func checkDensity(cells []domain.Cell) *Check {
	c := &Check{Name: "dense unique grid"}
	seen := make(map[cellKey]bool, len(cells))
	grid := make(map[sliceKey]bool)
	perKey := make(map[int]int)

	for _, cell := range cells {
		k := cellKey{cell.Key, cell.Time, cell.Category}
		if seen[k] {
			c.errorf("duplicate cell key=%d time=%s category=%s", cell.Key, cell.Time, cell.Category)
		}
		seen[k] = true
		grid[sliceKey{cell.Time, cell.Category}] = true
		perKey[cell.Key]++
	}
	for _, key := range sortedKeys(keysOf(perKey)) {
		if perKey[key] != len(grid) {
			c.errorf("key %d has %d cells, want %d", key, perKey[key], len(grid))
		}
	}
	return c
}

func checkRollups(cells []domain.Cell) *Check {
	c := &Check{Name: "roll-ups sum to country"}
	sums := map[domain.Level]map[sliceKey]int{}
	for _, l := range []domain.Level{domain.LevelDistrict, domain.LevelState, domain.LevelRegion, domain.LevelCountry} {
		sums[l] = make(map[sliceKey]int)
	}
	for _, cell := range cells {
		sums[cell.Level()][sliceKey{cell.Time, cell.Category}] += cell.Attacks
	}

	country := sums[domain.LevelCountry]
	for _, l := range []domain.Level{domain.LevelDistrict, domain.LevelState, domain.LevelRegion} {
		for k, v := range sums[l] {
			if country[k] != v {
				c.errorf("%s sum %d != country %d at time=%s category=%s", l, v, country[k], k.bucket, k.category)
			}
		}
	}
	return c
}

func checkAllCategory(cells []domain.Cell) *Check {
	c := &Check{Name: "All covers named categories"}
	type point struct {
		key    int
		bucket domain.Bucket
	}
	all := make(map[point]int)
	named := make(map[point]int)
	for _, cell := range cells {
		p := point{cell.Key, cell.Time}
		if cell.Category == domain.CategoryAll {
			all[p] = cell.Attacks
		} else {
			named[p] += cell.Attacks
		}
	}
	for p, n := range named {
		if all[p] < n {
			c.errorf("key %d time=%s: All=%d below named sum %d", p.key, p.bucket, all[p], n)
		}
	}
	return c
}

func checkRates(cells []domain.Cell) *Check {
	c := &Check{Name: "rates match counts"}
	for _, cell := range cells {
		want := AttackRate(cell.Attacks, cell.Pop)
		switch {
		case want == nil && cell.AttackPop != nil:
			c.errorf("key %d time=%s: rate %v without population", cell.Key, cell.Time, *cell.AttackPop)
		case want != nil && cell.AttackPop == nil:
			c.errorf("key %d time=%s: missing rate, want %v", cell.Key, cell.Time, *want)
		case want != nil && math.Abs(*want-*cell.AttackPop) > 0.005:
			c.errorf("key %d time=%s: rate %v, want %v", cell.Key, cell.Time, *cell.AttackPop, *want)
		}
	}
	return c
}

func keysOf(m map[int]int) map[int]struct{} {
	out := make(map[int]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}
