package timeseries

import (
	"math"

	"github.com/couchcryptid/arvig-etl/internal/domain"
)

// perInhabitants is the population base of AttackRate.
const perInhabitants = 100000

// AttackRate returns attacks per 100,000 inhabitants rounded to two
// decimals, or nil when pop is not positive.
func AttackRate(attacks int, pop int64) *float64 {
	if pop <= 0 {
		return nil
	}
	v := math.Round(float64(attacks)*perInhabitants/float64(pop)*100) / 100
	return &v
}

var binEdges = []float64{-1, 0, 0.5, 1, 1.5, 2, 2.5, 5, 7, 10, 15, 50}

// BinLabels are the rate classes used by the map legend, lowest first.
var BinLabels = []string{
	"00.00",
	"00.01 - 00.50",
	"00.51 - 01.00",
	"01.01 - 01.50",
	"01.51 - 02.00",
	"02.01 - 02.50",
	"02.51 - 05.00",
	"05.01 - 07.00",
	"07.01 - 10.00",
	"10.01 - 15.00",
	"15.01 - 50.00",
}

// Bin returns the rate class of v. Classes are right-closed and the lowest
// one also includes its lower edge. Values outside [-1, 50] have no class.
func Bin(v float64) (string, bool) {
	if math.IsNaN(v) || v < binEdges[0] || v > binEdges[len(binEdges)-1] {
		return "", false
	}
	for i := 1; i < len(binEdges); i++ {
		if v <= binEdges[i] {
			return BinLabels[i-1], true
		}
	}
	return "", false
}

// DashboardSubset keeps incidents up to maxYear, optionally without
// suspected cases. maxYear 0 disables the year cut.
func DashboardSubset(incidents []domain.Incident, maxYear int, excludeSuspected bool) []domain.Incident {
	out := make([]domain.Incident, 0, len(incidents))
	for _, inc := range incidents {
		if maxYear > 0 && inc.Year > maxYear {
			continue
		}
		if excludeSuspected && inc.Category == domain.CategorySuspected {
			continue
		}
		out = append(out, inc)
	}
	return out
}
