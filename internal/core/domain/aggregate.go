package domain

// CountEntry is one bucket of a frequency distribution. Distributions are
// sorted by count descending, then name ascending, for stable output.
type CountEntry struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// WardrobeValues lists the distinct values present in a user's store.
type WardrobeValues struct {
	GarmentClasses []string                   `json:"garment_classes"`
	Attributes     map[LabelCategory][]string `json:"attributes"`
}

// WardrobeDistribution holds frequency rollups over a user's store. Attribute
// buckets are named "category:value".
type WardrobeDistribution struct {
	GarmentClasses []CountEntry `json:"garment_classes"`
	Attributes     []CountEntry `json:"attributes"`
}
