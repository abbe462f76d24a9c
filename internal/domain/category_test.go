package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryNormalizer_Normalize(t *testing.T) {
	n := NewCategoryNormalizer("", nil, discardLogger())

	t.Run("split into two rows", func(t *testing.T) {
		records := []RawRecord{{City: "Nauen", State: "Brandenburg", CategoryDE: "Brandanschlag& Sonstige Angriffe"}}

		out, report := n.Normalize(records)

		require.Len(t, out, 2)
		assert.Equal(t, CategoryArson, out[0].Category)
		assert.Equal(t, "Brandanschlag", out[0].CategoryDE)
		assert.Equal(t, CategoryOther, out[1].Category)
		assert.Equal(t, "Sonstige Angriffe", out[1].CategoryDE)
		assert.Equal(t, "Nauen", out[1].City)
		assert.Equal(t, 1, report.RowsAdded)
		assert.Zero(t, report.Recategorized)
	})

	t.Run("stray delimiters add no rows", func(t *testing.T) {
		tests := []struct {
			raw  string
			want []Category
		}{
			{"Brandanschlag& ", []Category{CategoryArson}},
			{"& Brandanschlag", []Category{CategoryArson}},
			{"Brandanschlag& & Tätlicher Übergriff/Körperverletzung", []Category{CategoryArson, CategoryAssault}},
			{" & ", []Category{CategoryOther}},
		}
		for _, tt := range tests {
			out, report := n.Normalize([]RawRecord{{CategoryDE: tt.raw}})

			got := make([]Category, 0, len(out))
			for _, inc := range out {
				got = append(got, inc.Category)
			}
			assert.Equal(t, tt.want, got, tt.raw)
			assert.Equal(t, len(tt.want)-1, report.RowsAdded, tt.raw)
			assert.Empty(t, report.Unmapped, tt.raw)
		}
		_, report := n.Normalize([]RawRecord{{CategoryDE: "Brandanschlag& "}})
		assert.Zero(t, report.Recategorized)
	})

	t.Run("missing label falls back to other", func(t *testing.T) {
		out, report := n.Normalize([]RawRecord{{CategoryDE: "  "}})

		require.Len(t, out, 1)
		assert.Equal(t, FallbackCategoryDE, out[0].CategoryDE)
		assert.Equal(t, CategoryOther, out[0].Category)
		assert.Equal(t, 1, report.Recategorized)
		assert.Zero(t, report.RowsAdded)
	})

	t.Run("unmapped label stays empty and is reported", func(t *testing.T) {
		out, report := n.Normalize([]RawRecord{
			{CategoryDE: "Sachbeschädigung"},
			{CategoryDE: "Sachbeschädigung& Kundgebung/Demo"},
		})

		require.Len(t, out, 3)
		assert.Empty(t, out[0].Category)
		assert.Empty(t, out[1].Category)
		assert.Equal(t, CategoryDemonstration, out[2].Category)
		assert.Equal(t, map[string]int{"Sachbeschädigung": 2}, report.Unmapped)
		assert.Equal(t, 2, report.UnmappedRows())
	})

	t.Run("all known labels", func(t *testing.T) {
		for label, want := range DefaultCategoryLabels() {
			out, _ := n.Normalize([]RawRecord{{CategoryDE: " " + label + " "}})
			require.Len(t, out, 1)
			assert.Equal(t, want, out[0].Category, label)
		}
	})

	t.Run("raw fields carried over", func(t *testing.T) {
		rec := RawRecord{
			Date: "21.02.2017", City: "Berlin", State: "Berlin", CategoryDE: "Verdachtsfall",
			DescriptionDE: "Text", Source: "Quelle: Polizei", PageNr: 3, Year: 2017,
		}
		out, _ := n.Normalize([]RawRecord{rec})

		require.Len(t, out, 1)
		assert.Equal(t, "21.02.2017", out[0].RawDate)
		assert.Equal(t, 2017, out[0].Year)
		assert.Equal(t, "Quelle: Polizei", out[0].Source)
		assert.Equal(t, 3, out[0].PageNr)
		assert.Equal(t, CategorySuspected, out[0].Category)
	})
}

func TestCategoryNormalizer_CustomDelimiter(t *testing.T) {
	n := NewCategoryNormalizer(";", map[string]Category{"a": CategoryArson, "b": CategoryAssault}, discardLogger())

	out, report := n.Normalize([]RawRecord{{CategoryDE: "a; b"}})

	require.Len(t, out, 2)
	assert.Equal(t, CategoryArson, out[0].Category)
	assert.Equal(t, CategoryAssault, out[1].Category)
	assert.Equal(t, 1, report.RowsAdded)
}
