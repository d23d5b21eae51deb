package compare

import (
	"context"
	"image"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/semaphore"

	"github.com/imgdedup/imgdedup/internal/config"
	"github.com/imgdedup/imgdedup/internal/decoder"
	"github.com/imgdedup/imgdedup/internal/types"
)

// verifySize is the edge length both images are normalized to before the
// pixel comparison. Differences in resolution must not affect the score.
const verifySize = 64

// PixelVerifier settles unverified edges by decoding both files and
// comparing actual pixel content. Decodes are expensive, so concurrent
// verifications are bounded by a weighted semaphore.
type PixelVerifier struct {
	dec       decoder.Decoder
	sem       *semaphore.Weighted
	threshold float64
}

// NewVerifier returns a verifier that confirms edges whose normalized mean
// pixel difference is below cfg.PixelThreshold, running at most
// cfg.VerifyThreads decodes at a time.
func NewVerifier(dec decoder.Decoder, cfg *config.Config) *PixelVerifier {
	return &PixelVerifier{
		dec:       dec,
		sem:       semaphore.NewWeighted(int64(cfg.VerifyThreads)),
		threshold: cfg.PixelThreshold,
	}
}

// Verify settles the edge in place. Confirmed and rejected edges are left
// untouched. A decode failure rejects the edge rather than failing the run:
// a pair that cannot be compared must never be treated as duplicates.
func (v *PixelVerifier) Verify(ctx context.Context, edge *types.SimilarityEdge) error {
	if edge.Verification != types.Unverified {
		return nil
	}
	if err := v.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer v.sem.Release(1)

	a, err := v.normalized(ctx, edge.A.Path)
	if err != nil {
		edge.Verification = types.PixelRejected
		return nil
	}
	b, err := v.normalized(ctx, edge.B.Path)
	if err != nil {
		edge.Verification = types.PixelRejected
		return nil
	}

	if meanDiff(a, b) < v.threshold {
		edge.Verification = types.PixelConfirmed
	} else {
		edge.Verification = types.PixelRejected
	}
	return nil
}

func (v *PixelVerifier) normalized(ctx context.Context, path string) (*image.NRGBA, error) {
	img, err := v.dec.Decode(ctx, path, types.FormatFromPath(path))
	if err != nil {
		return nil, err
	}
	return imaging.Grayscale(imaging.Resize(img, verifySize, verifySize, imaging.Lanczos)), nil
}

// meanDiff is the mean absolute grayscale difference, scaled to [0, 1].
func meanDiff(a, b *image.NRGBA) float64 {
	var total float64
	for y := 0; y < verifySize; y++ {
		for x := 0; x < verifySize; x++ {
			pa := float64(a.NRGBAAt(x, y).R)
			pb := float64(b.NRGBAAt(x, y).R)
			d := pa - pb
			if d < 0 {
				d = -d
			}
			total += d
		}
	}
	return total / (verifySize * verifySize * 255)
}
