// Package decoder turns access paths into decoded pixel buffers. The core
// pipeline only consumes the Decoder contract and stays agnostic of how each
// format is decoded; HEIC is delegated to an external converter binary.
package decoder

import (
	"context"
	"fmt"
	"image"
	"os"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/imgdedup/imgdedup/internal/types"
)

// Decoder produces a decoded pixel buffer for an access path
type Decoder interface {
	Decode(ctx context.Context, path string, format types.ImageFormat) (image.Image, error)
}

// FileDecoder decodes images from the local filesystem
type FileDecoder struct {
	// heicConverter is the external converter binary, empty when none is
	// available on this system.
	heicConverter string
}

// New creates a FileDecoder, locating an external HEIC converter if one is
// installed
func New() *FileDecoder {
	return &FileDecoder{heicConverter: findHEICConverter()}
}

// Decode reads and decodes the image at path. Malformed or unreadable images
// yield a types.DecodeError; the caller skips the file and continues.
func (d *FileDecoder) Decode(ctx context.Context, path string, format types.ImageFormat) (image.Image, error) {
	if !format.Decodable() {
		return nil, &types.DecodeError{Path: path, Err: fmt.Errorf("format %s is not decodable", format)}
	}
	if format == types.FormatHEIC {
		return d.decodeHEIC(ctx, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &types.DecodeError{Path: path, Err: err}
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, &types.DecodeError{Path: path, Err: err}
	}
	return img, nil
}

// Dimensions reads only the image header to get pixel dimensions
func Dimensions(path string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, &types.DecodeError{Path: path, Err: err}
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, &types.DecodeError{Path: path, Err: err}
	}
	return cfg.Width, cfg.Height, nil
}
