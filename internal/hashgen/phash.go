package hashgen

import (
	"image"
	"math"
	"math/bits"
	"sort"

	"github.com/disintegration/imaging"
)

// Fingerprint geometry: the image is reduced to a grid×grid grayscale
// thumbnail, transformed with a 2-D DCT, and the top-left block×block
// low-frequency coefficients are binarized against their median.
const (
	grid  = 32
	block = 8
)

// cosTable[u][x] = cos((2x+1) * u * pi / (2*grid))
var cosTable [grid][grid]float64

func init() {
	for u := 0; u < grid; u++ {
		for x := 0; x < grid; x++ {
			cosTable[u][x] = math.Cos((2*float64(x) + 1) * float64(u) * math.Pi / (2 * grid))
		}
	}
}

// Fingerprint computes the 64-bit perceptual fingerprint of a decoded image.
// It is deterministic: identical pixel input always yields an identical
// fingerprint, and the result is deliberately stable under resizing,
// recompression, and minor edits.
func Fingerprint(img image.Image) uint64 {
	small := imaging.Grayscale(imaging.Resize(img, grid, grid, imaging.NearestNeighbor))

	var px [grid][grid]float64
	for y := 0; y < grid; y++ {
		for x := 0; x < grid; x++ {
			px[y][x] = float64(small.NRGBAAt(x, y).R)
		}
	}

	coeffs := dct2d(&px)

	// Median of the low-frequency block, excluding the DC coefficient so a
	// uniformly bright image does not bias every bit.
	flat := make([]float64, 0, block*block-1)
	for y := 0; y < block; y++ {
		for x := 0; x < block; x++ {
			if x == 0 && y == 0 {
				continue
			}
			flat = append(flat, coeffs[y][x])
		}
	}
	sort.Float64s(flat)
	median := flat[len(flat)/2]

	var hash uint64
	bit := 0
	for y := 0; y < block; y++ {
		for x := 0; x < block; x++ {
			if coeffs[y][x] > median {
				hash |= 1 << uint(bit)
			}
			bit++
		}
	}
	return hash
}

// Distance returns the Hamming distance between two fingerprints
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// dct2d applies a separable type-II DCT: rows first, then columns.
func dct2d(px *[grid][grid]float64) *[grid][grid]float64 {
	var rows, out [grid][grid]float64

	for y := 0; y < grid; y++ {
		for u := 0; u < grid; u++ {
			var sum float64
			for x := 0; x < grid; x++ {
				sum += px[y][x] * cosTable[u][x]
			}
			rows[y][u] = sum * alpha(u)
		}
	}

	for u := 0; u < grid; u++ {
		for v := 0; v < grid; v++ {
			var sum float64
			for y := 0; y < grid; y++ {
				sum += rows[y][u] * cosTable[v][y]
			}
			out[v][u] = sum * alpha(v)
		}
	}
	return &out
}

func alpha(u int) float64 {
	if u == 0 {
		return math.Sqrt(1.0 / grid)
	}
	return math.Sqrt(2.0 / grid)
}
