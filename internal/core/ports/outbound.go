package ports

import (
	"context"

	"github.com/anshultibby/pocket-fashion/internal/core/domain"
)

// ClosetStore persists one flat garment table per user. Implementations own
// schema normalization and must serialize mutations for the same user.
type ClosetStore interface {
	List(ctx context.Context, userID string) ([]domain.GarmentRecord, error)
	Get(ctx context.Context, userID, id string) (*domain.GarmentRecord, error)
	FindByFingerprint(ctx context.Context, userID, fingerprint string) (*domain.GarmentRecord, error)
	Append(ctx context.Context, userID string, record *domain.GarmentRecord) error
	Update(ctx context.Context, userID string, record *domain.GarmentRecord) error
	Delete(ctx context.Context, userID, id string) (bool, error)
}

// Segmenter runs the pixel-classification stage over one photo, writing its
// artifacts under outDir (which it creates).
type Segmenter interface {
	Segment(ctx context.Context, imagePath, outDir string) (*domain.Segmentation, error)
}

// GarmentClassifier ranks label candidates per category for one cutout.
type GarmentClassifier interface {
	Classify(ctx context.Context, cutoutPath string) (domain.RankedLabels, error)
}

// Fingerprinter computes the perceptual content digest used as dedup key.
type Fingerprinter interface {
	Fingerprint(ctx context.Context, imagePath string) (string, error)
}

// JobQueue publishes/consumes reprocess jobs.
type JobQueue interface {
	PublishReprocess(ctx context.Context, job domain.ReprocessJob) error
	SubscribeReprocess(ctx context.Context, handler func(context.Context, domain.ReprocessJob) error) error
}

// UserRepository persists authenticated accounts.
type UserRepository interface {
	Upsert(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
}
