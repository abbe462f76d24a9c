package domain

import "time"

// RawRecord is one chronicle entry as scraped, before any normalization.
type RawRecord struct {
	Date          string `json:"date"`
	City          string `json:"city"`
	State         string `json:"state"`
	Address       string `json:"address,omitempty"`
	CategoryDE    string `json:"category_de"`
	DescriptionDE string `json:"description_de"`
	Source        string `json:"source"`
	PageNr        int    `json:"page_nr"`
	Year          int    `json:"year"`
}

// Incident is a single-category incident row. It starts as a split raw
// record and is enriched by cleaning, geocoding, translation and geo merge.
type Incident struct {
	// ID is the record position after cleaning, assigned by the geo merge.
	ID int `json:"attack_id"`

	RawDate string `json:"-"`
	// Date is the zero time when the raw date could not be parsed.
	Date time.Time `json:"date"`
	Year int       `json:"year"`

	City    string `json:"city"`
	State   string `json:"state"`
	Address string `json:"address"`

	CategoryDE string `json:"category_de"`
	// Category is empty when CategoryDE has no canonical mapping.
	Category Category `json:"category_en"`

	DescriptionDE string `json:"description_de"`
	DescriptionEN string `json:"description_en,omitempty"`
	Source        string `json:"source"`
	PageNr        int    `json:"page_nr"`

	Geo      *Geo      `json:"geo,omitempty"`
	Locality *Locality `json:"locality,omitempty"`
}

// HasDate reports whether the incident carries a parsed date.
func (i Incident) HasDate() bool { return !i.Date.IsZero() }

// Geo is a geocoded point in WGS84.
type Geo struct {
	Lat              float64 `json:"latitude"`
	Lon              float64 `json:"longitude"`
	FormattedAddress string  `json:"address_formatted"`
}

// Locality is an administrative unit: a district from the boundary set, or
// a state, region or country derived by roll-up.
type Locality struct {
	Key        int    `json:"key"`
	Name       string `json:"name"`
	Type       string `json:"key_type"`
	Population int64  `json:"pop"`
}
