package domain

import (
	"log/slog"
	"sort"
	"strings"
)

// Category is a canonical attack category.
type Category string

// Canonical categories. CategoryAll is synthetic and only appears in panels.
const (
	CategoryOther         Category = "Other"
	CategoryAssault       Category = "Assault"
	CategoryDemonstration Category = "Demonstration"
	CategorySuspected     Category = "Suspected/unconfirmed"
	CategoryArson         Category = "Arson"
	CategoryAll           Category = "All"
)

const (
	// DefaultCategoryDelimiter joins multiple labels in one chronicle field.
	DefaultCategoryDelimiter = "& "
	// FallbackCategoryDE replaces missing labels.
	FallbackCategoryDE = "Sonstige Angriffe"
)

// DefaultCategoryLabels returns the German to canonical label mapping.
func DefaultCategoryLabels() map[string]Category {
	return map[string]Category{
		"Sonstige Angriffe":                    CategoryOther,
		"Tätlicher Übergriff/Körperverletzung": CategoryAssault,
		"Kundgebung/Demo":                      CategoryDemonstration,
		"Verdachtsfall":                        CategorySuspected,
		"Brandanschlag":                        CategoryArson,
	}
}

// CategoryReport summarizes one normalization pass.
type CategoryReport struct {
	Input         int `json:"input"`
	Output        int `json:"output"`
	RowsAdded     int `json:"rows_added"`
	Recategorized int `json:"recategorized"`
	// Unmapped counts rows per label that has no canonical category.
	Unmapped map[string]int `json:"unmapped,omitempty"`
}

// UnmappedRows returns the number of rows left without a canonical category.
func (r CategoryReport) UnmappedRows() int {
	n := 0
	for _, c := range r.Unmapped {
		n += c
	}
	return n
}

// CategoryNormalizer splits multi-valued category fields into one row per
// label and maps each label onto the canonical category set.
type CategoryNormalizer struct {
	delimiter string
	labels    map[string]Category
	logger    *slog.Logger
}

// NewCategoryNormalizer creates a normalizer. An empty delimiter selects
// DefaultCategoryDelimiter and a nil label map selects DefaultCategoryLabels.
func NewCategoryNormalizer(delimiter string, labels map[string]Category, logger *slog.Logger) *CategoryNormalizer {
	if delimiter == "" {
		delimiter = DefaultCategoryDelimiter
	}
	if labels == nil {
		labels = DefaultCategoryLabels()
	}
	copied := make(map[string]Category, len(labels))
	for k, v := range labels {
		copied[k] = v
	}
	return &CategoryNormalizer{delimiter: delimiter, labels: copied, logger: logger}
}

// Normalize explodes raw records into single-category incidents. Output
// order follows input order, with split labels in their original order.
func (n *CategoryNormalizer) Normalize(records []RawRecord) ([]Incident, CategoryReport) {
	report := CategoryReport{Input: len(records), Unmapped: make(map[string]int)}
	out := make([]Incident, 0, len(records))

	for _, rec := range records {
		for _, label := range n.split(rec.CategoryDE) {
			if label == "" {
				label = FallbackCategoryDE
				report.Recategorized++
			}
			inc := newIncident(rec)
			inc.CategoryDE = label
			category, ok := n.labels[label]
			if !ok {
				report.Unmapped[label]++
			}
			inc.Category = category
			out = append(out, inc)
		}
	}

	report.Output = len(out)
	report.RowsAdded = report.Output - report.Input
	n.warnUnmapped(report.Unmapped)
	return out, report
}

func (n *CategoryNormalizer) split(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{""}
	}
	var parts []string
	for _, p := range strings.Split(raw, n.delimiter) {
		// A stray delimiter leaves an empty piece; it is not a category.
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return []string{""}
	}
	return parts
}

func (n *CategoryNormalizer) warnUnmapped(unmapped map[string]int) {
	labels := make([]string, 0, len(unmapped))
	for label := range unmapped {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		n.logger.Warn("unmapped category label",
			"label", label,
			"rows", unmapped[label],
		)
	}
}

func newIncident(rec RawRecord) Incident {
	return Incident{
		RawDate:       rec.Date,
		Year:          rec.Year,
		City:          rec.City,
		State:         rec.State,
		Address:       rec.Address,
		DescriptionDE: rec.DescriptionDE,
		Source:        rec.Source,
		PageNr:        rec.PageNr,
	}
}
