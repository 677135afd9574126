// Package closetfile persists one flat garment table per user as a CSV file
// under the closets directory. Every mutation rewrites the whole table, which
// is acceptable because stores are small and per-user. Loading tolerates every
// historical encoding the table has gone through; see normalize.go.
package closetfile

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/anshultibby/pocket-fashion/internal/core/domain"
)

// Current column set. Older tables may miss trailing columns or use legacy
// names; loads synthesize what is absent instead of rejecting the file.
var header = []string{
	"id",
	"source_image_path",
	"mask_path",
	"combined_mask_path",
	"cutouts",
	"classification_results",
	"image_hash",
	"created_at",
	"updated_at",
}

// columnAliases maps legacy column names onto their current ones.
var columnAliases = map[string]string{
	"image_path":   "source_image_path",
	"clothes_mask": "mask_path",
}

type Repository struct {
	closetsDir string

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

func New(closetsDir string) (*Repository, error) {
	if closetsDir == "" {
		closetsDir = "./data/closets"
	}
	if err := os.MkdirAll(closetsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create closets dir: %w", err)
	}
	return &Repository{
		closetsDir: closetsDir,
		userLocks:  make(map[string]*sync.Mutex),
	}, nil
}

func (r *Repository) List(_ context.Context, userID string) ([]domain.GarmentRecord, error) {
	lock := r.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	return r.load(userID)
}

func (r *Repository) Get(_ context.Context, userID, id string) (*domain.GarmentRecord, error) {
	lock := r.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	records, err := r.load(userID)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].ID == id {
			record := records[i]
			return &record, nil
		}
	}
	return nil, domain.WrapError(domain.ErrItemNotFound, "get record", fmt.Errorf("id %q", id))
}

func (r *Repository) FindByFingerprint(_ context.Context, userID, fingerprint string) (*domain.GarmentRecord, error) {
	if fingerprint == "" {
		return nil, nil
	}
	lock := r.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	records, err := r.load(userID)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].ContentFingerprint == fingerprint {
			record := records[i]
			return &record, nil
		}
	}
	return nil, nil
}

func (r *Repository) Append(_ context.Context, userID string, record *domain.GarmentRecord) error {
	lock := r.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	records, err := r.load(userID)
	if err != nil {
		return err
	}
	for i := range records {
		if records[i].ID == record.ID {
			return domain.WrapError(domain.ErrInvalidInput, "append record", fmt.Errorf("duplicate id %q", record.ID))
		}
	}
	records = append(records, *record)
	return r.save(userID, records)
}

func (r *Repository) Update(_ context.Context, userID string, record *domain.GarmentRecord) error {
	lock := r.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	records, err := r.load(userID)
	if err != nil {
		return err
	}
	for i := range records {
		if records[i].ID == record.ID {
			records[i] = *record
			return r.save(userID, records)
		}
	}
	return domain.WrapError(domain.ErrItemNotFound, "update record", fmt.Errorf("id %q", record.ID))
}

func (r *Repository) Delete(_ context.Context, userID, id string) (bool, error) {
	lock := r.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	records, err := r.load(userID)
	if err != nil {
		return false, err
	}
	kept := records[:0]
	found := false
	for i := range records {
		if records[i].ID == id {
			found = true
			continue
		}
		kept = append(kept, records[i])
	}
	if !found {
		return false, nil
	}
	if err := r.save(userID, kept); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Repository) tablePath(userID string) string {
	return filepath.Join(r.closetsDir, userID+"_closet.csv")
}

func (r *Repository) userLock(userID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		r.userLocks[userID] = lock
	}
	return lock
}

// load reads and normalizes the user's table. A missing file is an empty
// store, not an error.
func (r *Repository) load(userID string) ([]domain.GarmentRecord, error) {
	f, err := os.Open(r.tablePath(userID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open closet table: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	columns, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read closet header: %w", err)
	}
	index := columnIndex(columns)

	var records []domain.GarmentRecord
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read closet row: %w", err)
		}
		records = append(records, normalizeRow(index, row))
	}
	return records, nil
}

// save rewrites the whole table atomically: temp file in the same directory,
// then rename over the old table.
func (r *Repository) save(userID string, records []domain.GarmentRecord) error {
	tmp, err := os.CreateTemp(r.closetsDir, ".closet-*.csv")
	if err != nil {
		return fmt.Errorf("create temp table: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	writer := csv.NewWriter(tmp)
	if err := writer.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("write closet header: %w", err)
	}
	for i := range records {
		row, err := encodeRow(&records[i])
		if err != nil {
			tmp.Close()
			return err
		}
		if err := writer.Write(row); err != nil {
			tmp.Close()
			return fmt.Errorf("write closet row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush closet table: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp table: %w", err)
	}
	if err := os.Rename(tmpPath, r.tablePath(userID)); err != nil {
		return fmt.Errorf("replace closet table: %w", err)
	}
	return nil
}

func columnIndex(columns []string) map[string]int {
	index := make(map[string]int, len(columns))
	for i, name := range columns {
		if alias, ok := columnAliases[name]; ok {
			name = alias
		}
		index[name] = i
	}
	return index
}

func fieldValue(index map[string]int, row []string, name string) string {
	i, ok := index[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func normalizeRow(index map[string]int, row []string) domain.GarmentRecord {
	return domain.GarmentRecord{
		ID:                    fieldValue(index, row, "id"),
		SourceImagePath:       fieldValue(index, row, "source_image_path"),
		MaskPath:              fieldValue(index, row, "mask_path"),
		CombinedMaskPath:      fieldValue(index, row, "combined_mask_path"),
		Cutouts:               normalizeNested(fieldValue(index, row, "cutouts")),
		ClassificationResults: normalizeClassifications(fieldValue(index, row, "classification_results")),
		ContentFingerprint:    fieldValue(index, row, "image_hash"),
		CreatedAt:             parseTime(fieldValue(index, row, "created_at")),
		UpdatedAt:             parseTime(fieldValue(index, row, "updated_at")),
	}
}

func encodeRow(record *domain.GarmentRecord) ([]string, error) {
	cutouts, err := json.Marshal(nonNilCutouts(record.Cutouts))
	if err != nil {
		return nil, fmt.Errorf("encode cutouts: %w", err)
	}
	results, err := json.Marshal(nonNilResults(record.ClassificationResults))
	if err != nil {
		return nil, fmt.Errorf("encode classification results: %w", err)
	}
	return []string{
		record.ID,
		record.SourceImagePath,
		record.MaskPath,
		record.CombinedMaskPath,
		string(cutouts),
		string(results),
		record.ContentFingerprint,
		formatTime(record.CreatedAt),
		formatTime(record.UpdatedAt),
	}, nil
}

func nonNilCutouts(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func nonNilResults(m map[string]domain.LabelSet) map[string]domain.LabelSet {
	if m == nil {
		return map[string]domain.LabelSet{}
	}
	return m
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
