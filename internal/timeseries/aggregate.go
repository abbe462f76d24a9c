// Package timeseries turns geo-tagged incidents into a dense panel of
// incident counts per locality, time bucket and category, rolled up from
// districts to states, East/West regions and the country.
package timeseries

import (
	"sort"

	"github.com/couchcryptid/arvig-etl/internal/domain"
)

// Options restricts the emitted panel. Zero values keep everything.
type Options struct {
	Category domain.Category
	Levels   []domain.Level
}

type cellKey struct {
	key      int
	bucket   domain.Bucket
	category domain.Category
}

type districtAttrs struct {
	name  string
	state string
	pop   int64
}

// Aggregate builds the panel for one granularity. Only incidents with a
// date and a district take part. Every district key, time bucket and
// category seen in that input (plus "All") gets exactly one district cell;
// "All" also counts incidents whose category is unmapped. Output is
// sorted by key, bucket start and category.
func Aggregate(incidents []domain.Incident, g domain.Granularity, opts Options) []domain.Cell {
	counts := make(map[cellKey]int)
	attrs := make(map[int]*districtAttrs)
	keySet := make(map[int]struct{})
	bucketSet := make(map[domain.Bucket]struct{})
	categorySet := make(map[domain.Category]struct{})

	for _, inc := range incidents {
		if inc.Locality == nil || !inc.HasDate() {
			continue
		}
		k := inc.Locality.Key
		b := domain.BucketOf(g, inc.Date)

		keySet[k] = struct{}{}
		bucketSet[b] = struct{}{}
		firstValues(attrs, k, inc)

		counts[cellKey{k, b, domain.CategoryAll}]++
		categorySet[domain.CategoryAll] = struct{}{}
		if inc.Category != "" {
			counts[cellKey{k, b, inc.Category}]++
			categorySet[inc.Category] = struct{}{}
		}
	}

	keys := sortedKeys(keySet)
	buckets := sortedBuckets(bucketSet)
	categories := sortedCategories(categorySet)

	districts := make([]domain.Cell, 0, len(keys)*len(buckets)*len(categories))
	for _, k := range keys {
		a := attrs[k]
		for _, b := range buckets {
			for _, c := range categories {
				districts = append(districts, domain.Cell{
					Key:      k,
					Time:     b,
					Category: c,
					Attacks:  counts[cellKey{k, b, c}],
					Name:     a.name,
					State:    a.state,
					Pop:      a.pop,
				})
			}
		}
	}

	states := rollUpStates(districts)
	panel := make([]domain.Cell, 0, len(districts)+len(states)+3*len(buckets)*len(categories))
	panel = append(panel, districts...)
	panel = append(panel, states...)
	panel = append(panel, rollUpRegions(states)...)
	panel = append(panel, rollUpCountry(districts)...)

	panel = filter(panel, opts)
	sortCells(panel)
	for i := range panel {
		panel[i].AttackPop = AttackRate(panel[i].Attacks, panel[i].Pop)
		if panel[i].AttackPop != nil {
			panel[i].AttackPopBin, _ = Bin(*panel[i].AttackPop)
		}
	}
	return panel
}

// firstValues records the first non-empty name, state and population seen
// for a district key.
func firstValues(attrs map[int]*districtAttrs, key int, inc domain.Incident) {
	a, ok := attrs[key]
	if !ok {
		a = &districtAttrs{}
		attrs[key] = a
	}
	if a.name == "" {
		a.name = inc.Locality.Name
	}
	if a.state == "" {
		a.state = inc.State
	}
	if a.pop == 0 {
		a.pop = inc.Locality.Population
	}
}

// rollup sums cells into groups in first-seen order.
type rollup struct {
	order []cellKey
	cells map[cellKey]*domain.Cell
}

func newRollup() *rollup {
	return &rollup{cells: make(map[cellKey]*domain.Cell)}
}

func (r *rollup) add(key int, name, state string, c domain.Cell) {
	k := cellKey{key, c.Time, c.Category}
	agg, ok := r.cells[k]
	if !ok {
		agg = &domain.Cell{Key: key, Time: c.Time, Category: c.Category, Name: name, State: state}
		r.cells[k] = agg
		r.order = append(r.order, k)
	}
	agg.Attacks += c.Attacks
	agg.Pop += c.Pop
}

func (r *rollup) result() []domain.Cell {
	out := make([]domain.Cell, len(r.order))
	for i, k := range r.order {
		out[i] = *r.cells[k]
	}
	return out
}

// rollUpStates groups district cells by state key. The state name is the
// first non-empty state of its districts in key order.
func rollUpStates(districts []domain.Cell) []domain.Cell {
	names := make(map[int]string)
	for _, d := range districts {
		sk := domain.StateKey(d.Key)
		if names[sk] == "" {
			names[sk] = d.State
		}
	}

	r := newRollup()
	for _, d := range districts {
		sk := domain.StateKey(d.Key)
		r.add(sk, names[sk], names[sk], d)
	}
	return r.result()
}

func rollUpRegions(states []domain.Cell) []domain.Cell {
	r := newRollup()
	for _, s := range states {
		if s.Key <= domain.MaxWestStateKey {
			r.add(domain.WestKey, domain.WestName, "", s)
		} else {
			r.add(domain.EastKey, domain.EastName, "", s)
		}
	}
	return r.result()
}

func rollUpCountry(districts []domain.Cell) []domain.Cell {
	r := newRollup()
	for _, d := range districts {
		r.add(domain.CountryKey, domain.CountryName, "", d)
	}
	return r.result()
}

func filter(cells []domain.Cell, opts Options) []domain.Cell {
	if opts.Category == "" && len(opts.Levels) == 0 {
		return cells
	}
	levels := make(map[domain.Level]bool, len(opts.Levels))
	for _, l := range opts.Levels {
		levels[l] = true
	}
	out := cells[:0]
	for _, c := range cells {
		if opts.Category != "" && c.Category != opts.Category {
			continue
		}
		if len(levels) > 0 && !levels[c.Level()] {
			continue
		}
		out = append(out, c)
	}
	return out
}

func sortCells(cells []domain.Cell) {
	sort.SliceStable(cells, func(i, j int) bool {
		a, b := cells[i], cells[j]
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		if !a.Time.Start.Equal(b.Time.Start) {
			return a.Time.Before(b.Time)
		}
		return a.Category < b.Category
	})
}

func sortedKeys(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func sortedBuckets(set map[domain.Bucket]struct{}) []domain.Bucket {
	out := make([]domain.Bucket, 0, len(set))
	for b := range set {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func sortedCategories(set map[domain.Category]struct{}) []domain.Category {
	out := make([]domain.Category, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
