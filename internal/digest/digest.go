// Package digest computes the two fingerprints attached to every
// blinded artifact: an exact SHA-256 content digest and a perceptual
// difference hash (dHash) that survives benign re-encoding. Both are
// pure functions of the input bytes.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"io"
	"math/bits"
	"os"
	"strconv"

	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"

	"github.com/mesh-intelligence/blindkit/pkg/types"
)

// dHash grid: 9 columns by 8 rows gives 64 adjacent-difference bits.
const (
	hashCols = 9
	hashRows = 8
)

// DefaultThreshold is the Hamming distance up to which two perceptual
// digests count as near-duplicates.
const DefaultThreshold = 10

// Sum returns the hex SHA-256 of everything read from r.
func Sum(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hashing: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SumBytes returns the hex SHA-256 of b.
func SumBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// SumString returns the hex SHA-256 of s.
func SumString(s string) string {
	return SumBytes([]byte(s))
}

// SumFile returns the hex SHA-256 of the file at path.
func SumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	sum, err := Sum(f)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return sum, nil
}

// PerceptualFile computes the dHash of the image file at path.
// A file that cannot be decoded as JPEG, PNG, or TIFF fails with
// ErrUnsupportedFormat; the caller still has the exact digest.
func PerceptualFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	hash, err := Perceptual(f)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return hash, nil
}

// Perceptual computes the dHash of the image read from r: grayscale,
// downsample to a 9x8 grid, then one bit per adjacent-pixel pair set
// when the right pixel is brighter than the left, row-major. The result
// is a 16-hex-digit string.
func Perceptual(r io.Reader) (string, error) {
	src, _, err := image.Decode(r)
	if err != nil {
		if err == image.ErrFormat {
			return "", types.ErrUnsupportedFormat
		}
		return "", fmt.Errorf("decoding image: %w", err)
	}

	gray := image.NewGray(image.Rect(0, 0, hashCols, hashRows))
	draw.ApproxBiLinear.Scale(gray, gray.Bounds(), src, src.Bounds(), draw.Src, nil)

	var val uint64
	for y := 0; y < hashRows; y++ {
		for x := 0; x < hashCols-1; x++ {
			left := gray.GrayAt(x, y).Y
			right := gray.GrayAt(x+1, y).Y
			val <<= 1
			if right > left {
				val |= 1
			}
		}
	}
	return fmt.Sprintf("%016x", val), nil
}

// Comparator decides near-duplicate status for perceptual digests.
// Exact-digest equality is a separate, stricter check; the comparator
// exists for the "same image, benign resave" case.
type Comparator struct {
	Threshold int // maximum Hamming distance counted as near-duplicate
}

// NewComparator returns a Comparator with the default threshold.
func NewComparator() Comparator {
	return Comparator{Threshold: DefaultThreshold}
}

// Distance returns the Hamming distance between two perceptual digests.
func (c Comparator) Distance(a, b string) (int, error) {
	av, err := strconv.ParseUint(a, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("perceptual digest %q: %w", a, types.ErrValidation)
	}
	bv, err := strconv.ParseUint(b, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("perceptual digest %q: %w", b, types.ErrValidation)
	}
	return bits.OnesCount64(av ^ bv), nil
}

// NearDuplicate reports whether a and b are within the threshold.
func (c Comparator) NearDuplicate(a, b string) (bool, error) {
	d, err := c.Distance(a, b)
	if err != nil {
		return false, err
	}
	return d <= c.Threshold, nil
}
