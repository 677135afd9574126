// Package classification wraps the pretrained garment attribute model. Given
// one cutout it scores every label in the vocabulary table and returns the
// candidates grouped per category, ranked by descending confidence. Picking
// (or abstaining from) a final label is the ingestion pipeline's job, not
// this stage's.
package classification

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"sort"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/anshultibby/pocket-fashion/internal/core/domain"
	"github.com/anshultibby/pocket-fashion/internal/infrastructure/onnxenv"
	"github.com/anshultibby/pocket-fashion/internal/infrastructure/vocabulary"
)

type Config struct {
	ModelPath  string
	InputName  string
	OutputName string
	InputSize  int
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
		c.InputSize = 224
	}
	return c
}

type ONNXClassifier struct {
	cfg     Config
	session *ort.DynamicAdvancedSession
	vocab   *vocabulary.Table
	logger  *slog.Logger
}

func NewONNXClassifier(cfg Config, vocab *vocabulary.Table, sharedLibraryPath string, logger *slog.Logger) (*ONNXClassifier, error) {
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
		return nil, fmt.Errorf("create classification session: %w", err)
	}

	logger.Info("classification model loaded",
		"model_path", cfg.ModelPath,
		"labels", vocab.Size(),
	)
	return &ONNXClassifier{cfg: cfg, session: session, vocab: vocab, logger: logger}, nil
}

func (c *ONNXClassifier) Close() error {
	if c.session != nil {
		return c.session.Destroy()
	}
	return nil
}

func (c *ONNXClassifier) Classify(ctx context.Context, cutoutPath string) (domain.RankedLabels, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := imaging.Open(cutoutPath)
	if err != nil {
		return nil, fmt.Errorf("decode cutout: %w", err)
	}

	logits, err := c.infer(img)
	if err != nil {
		return nil, err
	}
	if len(logits) < c.vocab.Size() {
		return nil, fmt.Errorf("classification output has %d values, vocabulary needs %d", len(logits), c.vocab.Size())
	}
	return rankLabels(logits, c.vocab), nil
}

func (c *ONNXClassifier) infer(img image.Image) ([]float32, error) {
	size := c.cfg.InputSize
	flattened := flattenCutout(img, size)

	inputTensor, err := ort.NewTensor(
		ort.NewShape(1, 3, int64(size), int64(size)),
		flattened,
	)
	if err != nil {
		return nil, fmt.Errorf("build input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := c.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("run classification model: %w", err)
	}
	defer outputs[0].Destroy()

	tensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected classification output type %T", outputs[0])
	}
	logits := make([]float32, len(tensor.GetData()))
	copy(logits, tensor.GetData())
	return logits, nil
}

// flattenCutout composites the alpha-masked cutout over black (the background
// the model was trained against), resizes to model resolution, and lays the
// pixels out channel-first normalized to mean/std 0.5.
func flattenCutout(img image.Image, size int) []float32 {
	black := imaging.New(size, size, color.NRGBA{A: 255})
	resized := imaging.Fit(img, size, size, imaging.CatmullRom)
	flattened := imaging.OverlayCenter(black, resized, 1.0)

	plane := size * size
	data := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			offset := flattened.PixOffset(x, y)
			i := y*size + x
			data[i] = (float32(flattened.Pix[offset])/255.0 - 0.5) / 0.5
			data[plane+i] = (float32(flattened.Pix[offset+1])/255.0 - 0.5) / 0.5
			data[2*plane+i] = (float32(flattened.Pix[offset+2])/255.0 - 0.5) / 0.5
		}
	}
	return data
}

// rankLabels sigmoids every logit, groups candidates by the vocabulary's
// category for that index, and sorts each group by descending confidence
// (value ascending on ties, for stable output).
func rankLabels(logits []float32, vocab *vocabulary.Table) domain.RankedLabels {
	ranked := make(domain.RankedLabels)
	for i := 0; i < vocab.Size(); i++ {
		category, value := vocab.At(i)
		ranked[category] = append(ranked[category], domain.LabelScore{
			Value:      value,
			Confidence: sigmoid(float64(logits[i])),
		})
	}
	for category := range ranked {
		candidates := ranked[category]
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].Confidence != candidates[j].Confidence {
				return candidates[i].Confidence > candidates[j].Confidence
			}
			return candidates[i].Value < candidates[j].Value
		})
	}
	return ranked
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
