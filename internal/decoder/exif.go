package decoder

import (
	"os"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// CaptureTime extracts the capture timestamp from image metadata. Metadata
// is optional: any read or parse failure yields nil rather than an error.
func CaptureTime(path string) *time.Time {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return nil
	}

	// DateTime prefers DateTimeOriginal and falls back to the file's
	// modification tag.
	t, err := x.DateTime()
	if err != nil {
		return nil
	}
	return &t
}
