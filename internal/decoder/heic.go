package decoder

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/imgdedup/imgdedup/internal/types"
)

// findHEICConverter locates an external HEIC decoding tool on PATH.
// heif-convert ships with libheif; sips is present on macOS.
func findHEICConverter() string {
	for _, candidate := range []string{"heif-convert", "sips"} {
		if path, err := exec.LookPath(candidate); err == nil {
			return path
		}
	}
	return ""
}

// decodeHEIC converts the file to a temporary PNG with the external
// converter and decodes that.
func (d *FileDecoder) decodeHEIC(ctx context.Context, path string) (image.Image, error) {
	if d.heicConverter == "" {
		return nil, &types.DecodeError{Path: path, Err: fmt.Errorf("no HEIC converter available (install libheif)")}
	}

	tmpDir, err := os.MkdirTemp("", "imgdedup-heic-")
	if err != nil {
		return nil, &types.DecodeError{Path: path, Err: err}
	}
	defer os.RemoveAll(tmpDir)

	out := filepath.Join(tmpDir, "converted.png")

	var cmd *exec.Cmd
	if filepath.Base(d.heicConverter) == "sips" {
		cmd = exec.CommandContext(ctx, d.heicConverter, "-s", "format", "png", path, "--out", out)
	} else {
		cmd = exec.CommandContext(ctx, d.heicConverter, path, out)
	}
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, &types.DecodeError{Path: path, Err: fmt.Errorf("heic conversion failed: %v: %s", err, output)}
	}

	f, err := os.Open(out)
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
