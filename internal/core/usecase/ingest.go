package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anshultibby/pocket-fashion/internal/core/domain"
	"github.com/anshultibby/pocket-fashion/internal/core/ports"
)

// PipelineMetrics receives ingestion outcomes. Implemented by the prometheus
// pipeline metrics; a no-op is used in tests.
type PipelineMetrics interface {
	IngestFinished(outcome string)
	DedupHit()
}

type noopMetrics struct{}

func (noopMetrics) IngestFinished(string) {}
func (noopMetrics) DedupHit()             {}

// IngestItemUseCase orchestrates one upload: dedup check, segmentation,
// per-cutout classification, record assembly, persistence.
type IngestItemUseCase struct {
	store         ports.ClosetStore
	fingerprinter ports.Fingerprinter
	segmenter     ports.Segmenter
	classifier    ports.GarmentClassifier
	gate          *InferenceGate

	imagesDir       string
	confidenceFloor float64
	metrics         PipelineMetrics
	logger          *slog.Logger

	// userLocks serializes a user's ingestions end to end, so the dedup
	// check and the append it guards are atomic per user. The store's own
	// per-user mutex only covers individual calls.
	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

func NewIngestItemUseCase(
	store ports.ClosetStore,
	fingerprinter ports.Fingerprinter,
	segmenter ports.Segmenter,
	classifier ports.GarmentClassifier,
	gate *InferenceGate,
	imagesDir string,
	confidenceFloor float64,
	metrics PipelineMetrics,
	logger *slog.Logger,
) *IngestItemUseCase {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestItemUseCase{
		store:           store,
		fingerprinter:   fingerprinter,
		segmenter:       segmenter,
		classifier:      classifier,
		gate:            gate,
		imagesDir:       imagesDir,
		confidenceFloor: confidenceFloor,
		metrics:         metrics,
		logger:          logger,
		userLocks:       make(map[string]*sync.Mutex),
	}
}

func (uc *IngestItemUseCase) userLock(userID string) *sync.Mutex {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	lock, ok := uc.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		uc.userLocks[userID] = lock
	}
	return lock
}

// AddItem ingests one uploaded photo for the user. The second return value is
// true when the upload deduplicated to an already stored record; in that case
// no inference ran and the existing record is returned unchanged.
func (uc *IngestItemUseCase) AddItem(ctx context.Context, userID, imagePath string) (*domain.GarmentRecord, bool, error) {
	fingerprint, err := uc.fingerprinter.Fingerprint(ctx, imagePath)
	if err != nil {
		uc.metrics.IngestFinished("error")
		return nil, false, domain.WrapError(domain.ErrInvalidInput, "fingerprint upload", err)
	}

	lock := uc.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := uc.store.FindByFingerprint(ctx, userID, fingerprint)
	if err != nil {
		uc.metrics.IngestFinished("error")
		return nil, false, fmt.Errorf("dedup lookup: %w", err)
	}
	if existing != nil {
		uc.metrics.DedupHit()
		uc.metrics.IngestFinished("duplicate")
		return existing, true, nil
	}

	record, err := uc.runPipeline(ctx, userID, uuid.NewString(), imagePath, fingerprint)
	if err != nil {
		uc.metrics.IngestFinished("error")
		return nil, false, err
	}

	if err := uc.store.Append(ctx, userID, record); err != nil {
		uc.cleanupArtifacts(userID, record.ID)
		uc.metrics.IngestFinished("error")
		// The pipeline succeeded; a store write failure is retryable.
		return nil, false, domain.WrapError(domain.ErrTemporary, "persist record", err)
	}

	uc.metrics.IngestFinished("ingested")
	return record, false, nil
}

// DeleteItem removes the record from the store, then best-effort removes the
// garment's file subtree. The store mutation is the source of truth: file
// removal failures are logged, never surfaced.
func (uc *IngestItemUseCase) DeleteItem(ctx context.Context, userID, itemID string) (bool, error) {
	found, err := uc.store.Delete(ctx, userID, itemID)
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	if !found {
		return false, nil
	}
	uc.cleanupArtifacts(userID, itemID)
	return true, nil
}

// ReprocessItem re-runs the inference chain over a stored record's source
// image, replacing its artifacts and classifications in place.
func (uc *IngestItemUseCase) ReprocessItem(ctx context.Context, userID, itemID string) (*domain.GarmentRecord, error) {
	lock := uc.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	record, err := uc.store.Get(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}

	sourcePath := filepath.Join(uc.userRoot(userID), filepath.FromSlash(record.SourceImagePath))
	fingerprint, err := uc.fingerprinter.Fingerprint(ctx, sourcePath)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "fingerprint stored source", err)
	}

	rebuilt, err := uc.runPipeline(ctx, userID, record.ID, sourcePath, fingerprint)
	if err != nil {
		return nil, err
	}
	rebuilt.CreatedAt = record.CreatedAt

	if err := uc.store.Update(ctx, userID, rebuilt); err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "persist reprocessed record", err)
	}
	return rebuilt, nil
}

func (uc *IngestItemUseCase) runPipeline(ctx context.Context, userID, recordID, imagePath, fingerprint string) (*domain.GarmentRecord, error) {
	outDir := filepath.Join(uc.userRoot(userID), recordID)

	var segmentation *domain.Segmentation
	var results map[string]domain.LabelSet
	err := uc.gate.Serialize(func() error {
		seg, err := uc.segmenter.Segment(ctx, imagePath, outDir)
		if err != nil {
			return domain.WrapError(domain.ErrSegmentationFailed, "segment upload", err)
		}
		segmentation = seg
		results = uc.classifyCutouts(ctx, seg.Cutouts)
		return nil
	})
	if err != nil {
		uc.cleanupArtifacts(userID, recordID)
		return nil, err
	}

	record, err := uc.assemble(userID, recordID, fingerprint, segmentation, results)
	if err != nil {
		uc.cleanupArtifacts(userID, recordID)
		return nil, err
	}
	return record, nil
}

// classifyCutouts runs the classification stage per cutout. A failure is
// scoped to its cutout: the entry is recorded empty and the rest proceed.
func (uc *IngestItemUseCase) classifyCutouts(ctx context.Context, cutouts map[string]string) map[string]domain.LabelSet {
	results := make(map[string]domain.LabelSet, len(cutouts))
	for _, key := range sortedKeys(cutouts) {
		ranked, err := uc.classifier.Classify(ctx, cutouts[key])
		if err != nil {
			uc.logger.Warn("classification failed for cutout",
				"cutout_key", key,
				"error", domain.WrapError(domain.ErrClassificationFailed, "classify cutout", err).Error(),
			)
			results[key] = domain.LabelSet{}
			continue
		}
		results[key] = ranked.Top(uc.confidenceFloor)
	}
	return results
}

// assemble converts stage output into a persistable record with every path
// relative to the user's image root.
func (uc *IngestItemUseCase) assemble(
	userID, recordID, fingerprint string,
	seg *domain.Segmentation,
	results map[string]domain.LabelSet,
) (*domain.GarmentRecord, error) {
	root := uc.userRoot(userID)

	source, err := relativize(root, seg.OriginalCopyPath)
	if err != nil {
		return nil, err
	}
	mask, err := relativize(root, seg.MaskPath)
	if err != nil {
		return nil, err
	}
	combined, err := relativize(root, seg.CombinedMaskPath)
	if err != nil {
		return nil, err
	}

	cutouts := make(map[string]string, len(seg.Cutouts))
	for key, path := range seg.Cutouts {
		rel, err := relativize(root, path)
		if err != nil {
			return nil, err
		}
		cutouts[key] = rel
	}

	now := time.Now().UTC()
	return &domain.GarmentRecord{
		ID:                    recordID,
		SourceImagePath:       source,
		MaskPath:              mask,
		CombinedMaskPath:      combined,
		Cutouts:               cutouts,
		ClassificationResults: results,
		ContentFingerprint:    fingerprint,
		CreatedAt:             now,
		UpdatedAt:             now,
	}, nil
}

func (uc *IngestItemUseCase) userRoot(userID string) string {
	return filepath.Join(uc.imagesDir, userID)
}

func (uc *IngestItemUseCase) cleanupArtifacts(userID, recordID string) {
	dir := filepath.Join(uc.userRoot(userID), recordID)
	if err := os.RemoveAll(dir); err != nil {
		uc.logger.Warn("artifact cleanup failed", "dir", dir, "error", err.Error())
	}
}

func relativize(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", fmt.Errorf("relativize %q against %q: %w", path, root, err)
	}
	if rel == ".." || filepath.IsAbs(rel) {
		return "", fmt.Errorf("path %q escapes user root %q", path, root)
	}
	return filepath.ToSlash(rel), nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
