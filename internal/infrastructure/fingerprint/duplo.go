// Package fingerprint computes the perceptual content digest used to
// deduplicate uploads. The digest is coarse and resize-invariant so that
// re-uploads of the same photo collide even after lossy re-encoding; rare
// false-positive collisions are an accepted failure mode (the user sees the
// stale record instead of a fresh one).
package fingerprint

import (
	"context"
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/rivo/duplo"
)

type Duplo struct{}

func NewDuplo() *Duplo {
	return &Duplo{}
}

// Fingerprint decodes the image and renders its duplo dHash bits as hex.
func (d *Duplo) Fingerprint(_ context.Context, imagePath string) (string, error) {
	img, err := imaging.Open(imagePath)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	hash, _ := duplo.CreateHash(img)
	return fmt.Sprintf("%016x%016x", hash.DHash[0], hash.DHash[1]), nil
}
