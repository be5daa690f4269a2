package model

// PriceRange is structured pricing data from a reference source or
// marketplace price analysis.
type PriceRange struct {
	Median     float64 `json:"median"`
	Low        float64 `json:"low"`
	High       float64 `json:"high"`
	SampleSize int     `json:"sample_size,omitempty"`
}

// AuthorityData is read-only reference information from a trusted catalog
// source, as opposed to a marketplace listing search.
type AuthorityData struct {
	SourceID    string         `json:"source_id"`
	Verified    bool           `json:"verified"`
	ItemDetails map[string]any `json:"item_details,omitempty"`
	PriceData   *PriceRange    `json:"price_data,omitempty"`
}
