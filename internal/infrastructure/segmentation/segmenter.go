// Package segmentation wraps the pretrained cloth segmentation model. Given
// one photo it writes, under a per-upload directory: a copy of the original,
// the raw class mask, a colored combined mask, and one alpha-masked cutout at
// original resolution per garment class present in the photo.
package segmentation

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/anshultibby/pocket-fashion/internal/core/domain"
	"github.com/anshultibby/pocket-fashion/internal/infrastructure/onnxenv"
)

type Config struct {
	ModelPath  string
	InputName  string
	OutputName string
	// InputSize is the square resolution the model expects.
	InputSize int
	// ClassCount includes the background class 0.
	ClassCount int
	NumThreads int
}

func (c Config) withDefaults() Config {
	if c.InputName == "" {
		c.InputName = "input"
	}
	if c.OutputName == "" {
		c.OutputName = "output"
	}
	if c.InputSize <= 0 {
		c.InputSize = 768
	}
	if c.ClassCount <= 0 {
		c.ClassCount = 4
	}
	return c
}

type ONNXSegmenter struct {
	cfg     Config
	session *ort.DynamicAdvancedSession
	logger  *slog.Logger
}

func NewONNXSegmenter(cfg Config, sharedLibraryPath string, logger *slog.Logger) (*ONNXSegmenter, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if err := onnxenv.Ensure(sharedLibraryPath); err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer options.Destroy()
	if cfg.NumThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			return nil, fmt.Errorf("set intra-op threads: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("create segmentation session: %w", err)
	}

	logger.Info("segmentation model loaded", "model_path", cfg.ModelPath, "input_size", cfg.InputSize)
	return &ONNXSegmenter{cfg: cfg, session: session, logger: logger}, nil
}

func (s *ONNXSegmenter) Close() error {
	if s.session != nil {
		return s.session.Destroy()
	}
	return nil
}

func (s *ONNXSegmenter) Segment(ctx context.Context, imagePath, outDir string) (*domain.Segmentation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := imaging.Open(imagePath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode upload: %w", err)
	}
	bounds := img.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}

	classIndex, err := s.infer(img)
	if err != nil {
		return nil, err
	}

	originalPath, err := copyOriginal(imagePath, outDir)
	if err != nil {
		return nil, err
	}

	size := s.cfg.InputSize
	maskPath := filepath.Join(outDir, "mask.png")
	if err := imaging.Save(classIndexImage(classIndex, size), maskPath); err != nil {
		return nil, fmt.Errorf("write class mask: %w", err)
	}

	combinedPath := filepath.Join(outDir, "combined_mask.png")
	combined := paletteImage(classIndex, size, Palette(s.cfg.ClassCount))
	combinedResized := imaging.Resize(combined, origW, origH, imaging.NearestNeighbor)
	if err := imaging.Save(combinedResized, combinedPath); err != nil {
		return nil, fmt.Errorf("write combined mask: %w", err)
	}

	cutouts := make(map[string]string)
	for _, cls := range presentClasses(classIndex, s.cfg.ClassCount) {
		alpha := classAlpha(classIndex, size, cls)
		alphaResized := imaging.Resize(alpha, origW, origH, imaging.CatmullRom)
		cutout := applyAlpha(img, alphaResized)

		key := strconv.Itoa(cls)
		cutoutPath := filepath.Join(outDir, "cutout_"+key+".png")
		if err := imaging.Save(cutout, cutoutPath); err != nil {
			return nil, fmt.Errorf("write cutout %s: %w", key, err)
		}
		cutouts[key] = cutoutPath
	}

	return &domain.Segmentation{
		OriginalCopyPath: originalPath,
		MaskPath:         maskPath,
		CombinedMaskPath: combinedPath,
		Cutouts:          cutouts,
	}, nil
}

// infer runs the model and argmaxes the per-pixel logits into class indices.
func (s *ONNXSegmenter) infer(img image.Image) ([]uint8, error) {
	size := s.cfg.InputSize
	resized := imaging.Resize(img, size, size, imaging.CatmullRom)

	inputTensor, err := ort.NewTensor(
		ort.NewShape(1, 3, int64(size), int64(size)),
		chwTensorData(resized),
	)
	if err != nil {
		return nil, fmt.Errorf("build input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := s.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("run segmentation model: %w", err)
	}
	defer outputs[0].Destroy()

	logits, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected segmentation output type %T", outputs[0])
	}
	data := logits.GetData()
	if len(data) < s.cfg.ClassCount*size*size {
		return nil, fmt.Errorf("segmentation output too small: %d values", len(data))
	}
	return argmaxClasses(data, s.cfg.ClassCount, size*size), nil
}

// copyOriginal places a copy of the upload inside the artifact dir so the
// record's subtree is self-contained. A reprocess reads the stored copy, in
// which case source and destination coincide and no copy is needed.
func copyOriginal(imagePath, outDir string) (string, error) {
	ext := strings.ToLower(filepath.Ext(imagePath))
	if ext == "" {
		ext = ".jpg"
	}
	dst := filepath.Join(outDir, "original"+ext)
	if same, err := sameFile(imagePath, dst); err == nil && same {
		return dst, nil
	}

	in, err := os.Open(imagePath)
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create original copy: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return "", fmt.Errorf("copy original: %w", err)
	}
	return dst, nil
}

func sameFile(a, b string) (bool, error) {
	infoA, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	infoB, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	return os.SameFile(infoA, infoB), nil
}
