package config

import "testing"

func TestLoadIncludesInferenceDefaults(t *testing.T) {
	t.Setenv("SEGMENT_INPUT_SIZE", "")
	t.Setenv("SEGMENT_CLASSES", "")
	t.Setenv("CLASSIFY_INPUT_SIZE", "")
	t.Setenv("CONFIDENCE_FLOOR", "")

	cfg := Load()
	if cfg.SegmentInputSize != 768 {
		t.Fatalf("expected default segmentation input 768, got %d", cfg.SegmentInputSize)
	}
	if cfg.SegmentClasses != 4 {
		t.Fatalf("expected default segmentation classes 4, got %d", cfg.SegmentClasses)
	}
	if cfg.ClassifyInputSize != 224 {
		t.Fatalf("expected default classification input 224, got %d", cfg.ClassifyInputSize)
	}
	if cfg.ConfidenceFloor != 0.5 {
		t.Fatalf("expected default confidence floor 0.5, got %f", cfg.ConfidenceFloor)
	}
}

func TestLoadParsesInferenceOverrides(t *testing.T) {
	t.Setenv("SEGMENT_INPUT_SIZE", "512")
	t.Setenv("CONFIDENCE_FLOOR", "0.35")
	t.Setenv("UPLOAD_RATE_RPS", "2.5")
	t.Setenv("MAX_UPLOAD_BYTES", "1048576")

	cfg := Load()
	if cfg.SegmentInputSize != 512 {
		t.Fatalf("expected segmentation input override 512, got %d", cfg.SegmentInputSize)
	}
	if cfg.ConfidenceFloor != 0.35 {
		t.Fatalf("expected confidence floor 0.35, got %f", cfg.ConfidenceFloor)
	}
	if cfg.UploadRateRPS != 2.5 {
		t.Fatalf("expected upload rate 2.5, got %f", cfg.UploadRateRPS)
	}
	if cfg.MaxUploadBytes != 1048576 {
		t.Fatalf("expected max upload bytes 1048576, got %d", cfg.MaxUploadBytes)
	}
}

func TestLoadFallsBackOnMalformedNumbers(t *testing.T) {
	t.Setenv("SEGMENT_CLASSES", "lots")
	t.Setenv("CONFIDENCE_FLOOR", "very confident")

	cfg := Load()
	if cfg.SegmentClasses != 4 {
		t.Fatalf("malformed int should fall back, got %d", cfg.SegmentClasses)
	}
	if cfg.ConfidenceFloor != 0.5 {
		t.Fatalf("malformed float should fall back, got %f", cfg.ConfidenceFloor)
	}
}
