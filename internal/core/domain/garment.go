package domain

import "time"

// GarmentRecord is one physical garment detected in one upload, together with
// the artifacts derived from it. All path fields are relative to the owning
// user's image root; absolute paths are never persisted.
type GarmentRecord struct {
	ID               string `json:"id"`
	SourceImagePath  string `json:"source_image_path"`
	MaskPath         string `json:"mask_path"`
	CombinedMaskPath string `json:"combined_mask_path"`

	// Cutouts maps a segmentation class key (decimal class index, "1"..) to
	// the path of that class's cropped, background-removed image. Classes
	// absent from the photo produce no entry.
	Cutouts map[string]string `json:"cutouts"`

	// ClassificationResults maps the same cutout keys to the chosen label per
	// category. A missing category means classification abstained for it; an
	// empty set means classification failed for that cutout.
	ClassificationResults map[string]LabelSet `json:"classification_results"`

	// ContentFingerprint is the perceptual hash of the original upload and
	// the dedup key within a user's store.
	ContentFingerprint string `json:"content_fingerprint"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Segmentation is the output of the segmentation stage for one upload. Paths
// are absolute at this point; the ingestion pipeline relativizes them before
// anything is persisted.
type Segmentation struct {
	OriginalCopyPath string
	MaskPath         string
	CombinedMaskPath string
	Cutouts          map[string]string
}

// ReprocessJob asks the worker to re-run the inference chain over one stored
// record's source image.
type ReprocessJob struct {
	UserID string `json:"user_id"`
	ItemID string `json:"item_id"`
}
