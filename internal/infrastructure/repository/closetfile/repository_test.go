package closetfile

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/anshultibby/pocket-fashion/internal/core/domain"
)

func testRecord(id, fingerprint string) *domain.GarmentRecord {
	return &domain.GarmentRecord{
		ID:               id,
		SourceImagePath:  id + "/original.jpg",
		MaskPath:         id + "/mask.png",
		CombinedMaskPath: id + "/combined_mask.png",
		Cutouts: map[string]string{
			"1": id + "/cutout_1.png",
			"2": id + "/cutout_2.png",
		},
		ClassificationResults: map[string]domain.LabelSet{
			"1": {domain.CategoryPattern: "solid", domain.CategoryColor: "blue"},
			"2": {},
		},
		ContentFingerprint: fingerprint,
		CreatedAt:          time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		UpdatedAt:          time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestAppendLoadRoundTrip(t *testing.T) {
	repo, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	record := testRecord("rec-1", "aabbccdd")
	if err := repo.Append(ctx, "user-1", record); err != nil {
		t.Fatalf("append: %v", err)
	}

	loaded, err := repo.Get(ctx, "user-1", "rec-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(loaded.Cutouts, record.Cutouts) {
		t.Fatalf("cutouts changed across save/load: %v vs %v", loaded.Cutouts, record.Cutouts)
	}
	if !reflect.DeepEqual(loaded.ClassificationResults, record.ClassificationResults) {
		t.Fatalf("classification results changed: %v vs %v", loaded.ClassificationResults, record.ClassificationResults)
	}
	if loaded.ContentFingerprint != "aabbccdd" {
		t.Fatalf("fingerprint lost: %q", loaded.ContentFingerprint)
	}
}

func TestAppendRejectsDuplicateID(t *testing.T) {
	repo, _ := New(t.TempDir())
	ctx := context.Background()

	if err := repo.Append(ctx, "user-1", testRecord("rec-1", "aa")); err != nil {
		t.Fatal(err)
	}
	err := repo.Append(ctx, "user-1", testRecord("rec-1", "bb"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for duplicate id, got %v", err)
	}
}

func TestFindByFingerprint(t *testing.T) {
	repo, _ := New(t.TempDir())
	ctx := context.Background()

	if err := repo.Append(ctx, "user-1", testRecord("rec-1", "ffee")); err != nil {
		t.Fatal(err)
	}

	hit, err := repo.FindByFingerprint(ctx, "user-1", "ffee")
	if err != nil {
		t.Fatal(err)
	}
	if hit == nil || hit.ID != "rec-1" {
		t.Fatalf("expected rec-1, got %+v", hit)
	}

	miss, err := repo.FindByFingerprint(ctx, "user-1", "0000")
	if err != nil {
		t.Fatal(err)
	}
	if miss != nil {
		t.Fatalf("expected no match, got %+v", miss)
	}
}

func TestDeleteUnknownIDReturnsFalse(t *testing.T) {
	repo, _ := New(t.TempDir())
	ctx := context.Background()

	if err := repo.Append(ctx, "user-1", testRecord("rec-1", "aa")); err != nil {
		t.Fatal(err)
	}

	found, err := repo.Delete(ctx, "user-1", "nope")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected delete of unknown id to report false")
	}

	records, _ := repo.List(ctx, "user-1")
	if len(records) != 1 {
		t.Fatalf("store should be unchanged, got %d records", len(records))
	}
}

func TestDeleteRemovesRecord(t *testing.T) {
	repo, _ := New(t.TempDir())
	ctx := context.Background()

	_ = repo.Append(ctx, "user-1", testRecord("rec-1", "aa"))
	_ = repo.Append(ctx, "user-1", testRecord("rec-2", "bb"))

	found, err := repo.Delete(ctx, "user-1", "rec-1")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected delete to find rec-1")
	}

	records, _ := repo.List(ctx, "user-1")
	if len(records) != 1 || records[0].ID != "rec-2" {
		t.Fatalf("expected only rec-2 to remain, got %+v", records)
	}
}

func TestLoadOldestSchemaSynthesizesMissingColumns(t *testing.T) {
	dir := t.TempDir()
	table := "id,image_path,category,subcategory,color\n" +
		"rec-1,rec-1/original.jpg,top,t-shirt,blue\n"
	if err := os.WriteFile(filepath.Join(dir, "user-1_closet.csv"), []byte(table), 0o644); err != nil {
		t.Fatal(err)
	}

	repo, _ := New(dir)
	records, err := repo.List(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("oldest schema must load without migration tooling: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	record := records[0]
	if record.SourceImagePath != "rec-1/original.jpg" {
		t.Fatalf("image_path alias not applied: %q", record.SourceImagePath)
	}
	if record.ContentFingerprint != "" || record.CombinedMaskPath != "" {
		t.Fatalf("missing columns should synthesize empty, got %+v", record)
	}
	if len(record.Cutouts) != 0 || len(record.ClassificationResults) != 0 {
		t.Fatalf("missing nested columns should synthesize empty mappings, got %+v", record)
	}
}

func TestLoadLegacyNestedEncodingsAndRewriteAsJSON(t *testing.T) {
	dir := t.TempDir()
	table := "id,source_image_path,mask_path,combined_mask_path,cutouts,classification_results,image_hash\n" +
		`rec-1,rec-1/original.jpg,rec-1/mask.png,,"rec-1/a.png;rec-1/b.png","{'1': {'pattern': 'striped'}}",cafe` + "\n"
	if err := os.WriteFile(filepath.Join(dir, "user-1_closet.csv"), []byte(table), 0o644); err != nil {
		t.Fatal(err)
	}

	repo, _ := New(dir)
	ctx := context.Background()
	records, err := repo.List(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	wantCutouts := map[string]string{"1": "rec-1/a.png", "2": "rec-1/b.png"}
	if !reflect.DeepEqual(records[0].Cutouts, wantCutouts) {
		t.Fatalf("expected %v, got %v", wantCutouts, records[0].Cutouts)
	}
	if records[0].ClassificationResults["1"][domain.CategoryPattern] != "striped" {
		t.Fatalf("literal classification not normalized: %+v", records[0].ClassificationResults)
	}

	// A mutation rewrites the table in the current encoding.
	if err := repo.Append(ctx, "user-1", testRecord("rec-2", "beef")); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "user-1_closet.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "a.png;") {
		t.Fatal("rewrite should re-encode legacy delimited cutouts as JSON")
	}

	reloaded, _ := repo.List(ctx, "user-1")
	if !reflect.DeepEqual(reloaded[0].Cutouts, wantCutouts) {
		t.Fatalf("round trip through rewrite changed cutouts: %v", reloaded[0].Cutouts)
	}
}

func TestNoAbsolutePathsSurviveSaveLoad(t *testing.T) {
	repo, _ := New(t.TempDir())
	ctx := context.Background()

	_ = repo.Append(ctx, "user-1", testRecord("rec-1", "aa"))
	records, _ := repo.List(ctx, "user-1")
	record := records[0]

	paths := []string{record.SourceImagePath, record.MaskPath, record.CombinedMaskPath}
	for _, p := range record.Cutouts {
		paths = append(paths, p)
	}
	for _, p := range paths {
		if filepath.IsAbs(p) {
			t.Fatalf("absolute path persisted: %q", p)
		}
	}
}

func TestUpdateUnknownRecord(t *testing.T) {
	repo, _ := New(t.TempDir())
	err := repo.Update(context.Background(), "user-1", testRecord("ghost", "aa"))
	if !domain.IsKind(err, domain.ErrItemNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
