package domain

// LabelCategory is one classification axis (pattern, material, style, color).
// The set of live categories is driven by the vocabulary table; values outside
// it fall back to CategoryUnknown rather than being dropped.
type LabelCategory string

const (
	CategoryPattern  LabelCategory = "pattern"
	CategoryMaterial LabelCategory = "material"
	CategoryStyle    LabelCategory = "style"
	CategoryColor    LabelCategory = "color"
	CategoryUnknown  LabelCategory = "unknown"
)

// LabelSet holds the single chosen label per category for one cutout.
type LabelSet map[LabelCategory]string

// LabelScore is one candidate label with the model's confidence for it.
type LabelScore struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// RankedLabels is the raw classifier output for one cutout: per category, all
// candidate labels sorted by descending confidence.
type RankedLabels map[LabelCategory][]LabelScore

// Top returns the best candidate per category whose confidence clears the
// floor. Categories with no candidate above the floor are omitted.
func (r RankedLabels) Top(floor float64) LabelSet {
	picked := make(LabelSet)
	for category, candidates := range r {
		if len(candidates) == 0 {
			continue
		}
		if candidates[0].Confidence < floor {
			continue
		}
		picked[category] = candidates[0].Value
	}
	return picked
}
