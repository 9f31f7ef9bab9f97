package publish

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/nerrad567/camerad/internal/camera"
)

const (
	rawDirPermissions  = 0750
	rawFilePermissions = 0640
)

// ErrBadFrame is returned for a record whose image does not match its size.
var ErrBadFrame = errors.New("publish: image does not match frame size")

// RawFrameWriter stores decimated luma planes as 8-bit greyscale PNG files.
type RawFrameWriter struct {
	dir string
}

// NewRawFrameWriter creates dir if needed.
func NewRawFrameWriter(dir string) (*RawFrameWriter, error) {
	if err := os.MkdirAll(dir, rawDirPermissions); err != nil {
		return nil, fmt.Errorf("creating raw frame directory: %w", err)
	}
	return &RawFrameWriter{dir: dir}, nil
}

// Dir returns the output directory.
func (w *RawFrameWriter) Dir() string {
	return w.dir
}

// Write encodes rec.Image to <dir>/<stream>_<frame_id>.png and returns the path.
// The file appears atomically.
func (w *RawFrameWriter) Write(rec *camera.FrameRecord) (string, error) {
	if rec.Width <= 0 || rec.Height <= 0 || len(rec.Image) < rec.Width*rec.Height {
		return "", fmt.Errorf("%w: %dx%d with %d bytes", ErrBadFrame, rec.Width, rec.Height, len(rec.Image))
	}
	img := &image.Gray{
		Pix:    rec.Image[:rec.Width*rec.Height],
		Stride: rec.Width,
		Rect:   image.Rect(0, 0, rec.Width, rec.Height),
	}

	path := filepath.Join(w.dir, fmt.Sprintf("%s_%010d.png", rec.Stream, rec.FrameID))
	tmp, err := os.CreateTemp(w.dir, ".raw-*")
	if err != nil {
		return "", fmt.Errorf("creating raw frame file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // Gone after a successful rename

	if err := png.Encode(tmp, img); err != nil {
		tmp.Close() //nolint:errcheck // Encode error takes precedence
		return "", fmt.Errorf("encoding raw frame: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing raw frame file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), rawFilePermissions); err != nil {
		return "", fmt.Errorf("setting raw frame permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("renaming raw frame file: %w", err)
	}
	return path, nil
}
