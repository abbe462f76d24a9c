package domain

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCorrections_Valid(t *testing.T) {
	c, err := DefaultCorrections()
	require.NoError(t, err)

	city, state := c.Apply("Würnsdorf", "Brandenburg", time.Time{})
	assert.Equal(t, "Zossen", city)
	assert.Equal(t, "Brandenburg", state)
}

func TestCorrections_OrderIndependent(t *testing.T) {
	forward := CorrectionTable{
		CityOverrides: []CityOverride{
			{City: "Halle", State: "Sachsen", To: "Halle (Saale)"},
			{City: "Halle", State: "Nordrhein-Westfalen", To: "Halle (Westfalen)"},
		},
		StateOverrides: []StateOverride{
			{City: "Halle", State: "Sachsen", To: "Sachsen-Anhalt"},
		},
	}
	reversed := CorrectionTable{
		CityOverrides:  []CityOverride{forward.CityOverrides[1], forward.CityOverrides[0]},
		StateOverrides: forward.StateOverrides,
	}

	a, err := NewCorrections(forward)
	require.NoError(t, err)
	b, err := NewCorrections(reversed)
	require.NoError(t, err)

	for _, st := range []string{"Sachsen", "Nordrhein-Westfalen", "Bayern"} {
		ca, sa := a.Apply("Halle", st, time.Time{})
		cb, sb := b.Apply("Halle", st, time.Time{})
		assert.Equal(t, ca, cb, st)
		assert.Equal(t, sa, sb, st)
	}
}

func TestCorrections_StateRuleSeesOriginalState(t *testing.T) {
	c, err := NewCorrections(CorrectionTable{
		CityOverrides:  []CityOverride{{City: "X", State: "B", To: "X2"}},
		StateOverrides: []StateOverride{{City: "X", State: "A", To: "B"}},
	})
	// (X, A) -> (X, B) would match the city rule on a second pass.
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCorrections))
	assert.Nil(t, c)
}

func TestNewCorrections_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		table CorrectionTable
		want  string
	}{
		{
			name:  "chained alias",
			table: CorrectionTable{CityAliases: map[string]string{"A": "B", "B": "C"}},
			want:  "chains",
		},
		{
			name:  "override without condition",
			table: CorrectionTable{CityOverrides: []CityOverride{{City: "A", To: "B"}}},
			want:  "exactly one",
		},
		{
			name:  "override with both conditions",
			table: CorrectionTable{CityOverrides: []CityOverride{{City: "A", State: "S", Date: "2017-01-01", To: "B"}}},
			want:  "exactly one",
		},
		{
			name:  "bad date",
			table: CorrectionTable{CityOverrides: []CityOverride{{City: "A", Date: "01.01.2017", To: "B"}}},
			want:  "bad date",
		},
		{
			name: "conflicting states",
			table: CorrectionTable{StateOverrides: []StateOverride{
				{City: "A", State: "S", To: "T"},
				{City: "A", State: "S", To: "U"},
			}},
			want: "conflicting",
		},
		{
			name:  "override keyed on alias",
			table: CorrectionTable{CityAliases: map[string]string{"A": "B"}, StateOverrides: []StateOverride{{City: "A", State: "S", To: "T"}}},
			want:  "never matches",
		},
		{
			name: "state and date overrides on one city",
			table: CorrectionTable{CityOverrides: []CityOverride{
				{City: "A", State: "S", To: "B"},
				{City: "A", Date: "2017-01-01", To: "C"},
			}},
			want: "both state and date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCorrections(tt.table)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidCorrections)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadCorrections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrections.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
city_aliases:
  Muenchen: München
state_overrides:
  - {city: München, state: Hessen, to: Bayern}
`), 0o600))

	c, err := LoadCorrections(path)
	require.NoError(t, err)

	city, state := c.Apply("Muenchen", "Hessen", time.Time{})
	assert.Equal(t, "München", city)
	assert.Equal(t, "Bayern", state)
}

func TestLoadCorrections_MissingFile(t *testing.T) {
	_, err := LoadCorrections(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read corrections")
}
