package segmentation

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// chwTensorData lays the image out channel-first, normalized to mean 0.5 and
// std 0.5 per channel, matching the segmentation model's training transform.
func chwTensorData(img *image.NRGBA) []float32 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	plane := w * h
	data := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			offset := img.PixOffset(x, y)
			i := y*w + x
			data[i] = normalize(img.Pix[offset])
			data[plane+i] = normalize(img.Pix[offset+1])
			data[2*plane+i] = normalize(img.Pix[offset+2])
		}
	}
	return data
}

func normalize(v uint8) float32 {
	return (float32(v)/255.0 - 0.5) / 0.5
}

// argmaxClasses reduces [classes][plane] logits to a class index per pixel.
func argmaxClasses(logits []float32, classes, plane int) []uint8 {
	index := make([]uint8, plane)
	for i := 0; i < plane; i++ {
		best := 0
		bestScore := logits[i]
		for c := 1; c < classes; c++ {
			score := logits[c*plane+i]
			if score > bestScore {
				bestScore = score
				best = c
			}
		}
		index[i] = uint8(best)
	}
	return index
}

// presentClasses lists the non-background classes that actually occur in the
// mask, ascending. Classes absent from the photo produce no cutout entry.
func presentClasses(classIndex []uint8, classes int) []int {
	seen := make([]bool, classes)
	for _, cls := range classIndex {
		seen[cls] = true
	}
	var present []int
	for cls := 1; cls < classes; cls++ {
		if seen[cls] {
			present = append(present, cls)
		}
	}
	return present
}

// Palette returns the segmentation visualization color map: class index bits
// spread across RGB channels, same scheme the original mask artifacts used.
func Palette(classes int) []color.NRGBA {
	palette := make([]color.NRGBA, classes)
	for j := 0; j < classes; j++ {
		var r, g, b uint8
		lab := j
		for i := 0; lab != 0; i++ {
			r |= uint8((lab >> 0 & 1) << (7 - i))
			g |= uint8((lab >> 1 & 1) << (7 - i))
			b |= uint8((lab >> 2 & 1) << (7 - i))
			lab >>= 3
		}
		palette[j] = color.NRGBA{R: r, G: g, B: b, A: 255}
	}
	return palette
}

// classIndexImage renders the raw class indices as a grayscale mask.
func classIndexImage(classIndex []uint8, size int) *image.Gray {
	mask := image.NewGray(image.Rect(0, 0, size, size))
	copy(mask.Pix, classIndex)
	return mask
}

// paletteImage colors every pixel by its class's palette entry.
func paletteImage(classIndex []uint8, size int, palette []color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for i, cls := range classIndex {
		c := palette[0]
		if int(cls) < len(palette) {
			c = palette[cls]
		}
		offset := i * 4
		img.Pix[offset] = c.R
		img.Pix[offset+1] = c.G
		img.Pix[offset+2] = c.B
		img.Pix[offset+3] = c.A
	}
	return img
}

// classAlpha builds the binary alpha mask for one class at model resolution.
func classAlpha(classIndex []uint8, size int, cls int) *image.Gray {
	mask := image.NewGray(image.Rect(0, 0, size, size))
	for i, c := range classIndex {
		if int(c) == cls {
			mask.Pix[i] = 255
		}
	}
	return mask
}

// applyAlpha composes the original-resolution image with a per-pixel alpha
// mask, producing the background-removed cutout.
func applyAlpha(img image.Image, alpha *image.NRGBA) *image.NRGBA {
	base := imaging.Clone(img)
	bounds := base.Bounds()
	out := image.NewNRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			offset := base.PixOffset(x, y)
			a := alpha.NRGBAAt(x, y).R
			dst := out.PixOffset(x, y)
			out.Pix[dst] = base.Pix[offset]
			out.Pix[dst+1] = base.Pix[offset+1]
			out.Pix[dst+2] = base.Pix[offset+2]
			out.Pix[dst+3] = a
		}
	}
	return out
}
