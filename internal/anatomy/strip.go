package anatomy

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/tiff"

	"github.com/mesh-intelligence/blindkit/pkg/types"
)

// jpegQuality for re-encoded blinded copies. High enough that the
// perceptual digest of the copy stays within near-duplicate distance of
// the original.
const jpegQuality = 95

// stripCopy writes a blinded copy of src at dst by decoding and
// re-encoding the pixels. Everything outside the raster (EXIF
// timestamps, device tags, embedded paths, color profiles) is dropped,
// because only decoded pixels cross the re-encode boundary.
func stripCopy(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		if err == image.ErrFormat {
			return fmt.Errorf("%s: %w", src, types.ErrUnsupportedFormat)
		}
		return fmt.Errorf("decoding %s: %w", src, err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}

	switch strings.ToLower(filepath.Ext(dst)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: jpegQuality})
	case ".png":
		err = png.Encode(out, img)
	case ".tif", ".tiff":
		err = tiff.Encode(out, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("%s: %w", dst, types.ErrUnsupportedFormat)
	}
	if err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("encoding %s: %w", dst, err)
	}
	return out.Close()
}
