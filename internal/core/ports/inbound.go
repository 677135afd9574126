package ports

import (
	"context"

	"github.com/anshultibby/pocket-fashion/internal/core/domain"
)

// WardrobeIngestor is the inbound contract for upload orchestration.
type WardrobeIngestor interface {
	AddItem(ctx context.Context, userID, imagePath string) (*domain.GarmentRecord, bool, error)
	DeleteItem(ctx context.Context, userID, itemID string) (bool, error)
	ReprocessItem(ctx context.Context, userID, itemID string) (*domain.GarmentRecord, error)
}

// WardrobeAggregator computes read-only rollups over one user's store.
type WardrobeAggregator interface {
	Distinct(ctx context.Context, userID string) (*domain.WardrobeValues, error)
	Distribution(ctx context.Context, userID string) (*domain.WardrobeDistribution, error)
}
