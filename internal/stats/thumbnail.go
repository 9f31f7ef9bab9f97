package stats

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// DefaultThumbnailQuality is the JPEG quality used when none is given.
const DefaultThumbnailQuality = 80

// Thumbnail box-filters a luma plane down by scale in each dimension and
// encodes it as a greyscale JPEG.
func Thumbnail(img []byte, width, height, scale, quality int) ([]byte, error) {
	if width <= 0 || height <= 0 || len(img) < width*height {
		return nil, fmt.Errorf("thumbnail: image %dx%d does not fit %d bytes", width, height, len(img))
	}
	if scale < 1 {
		scale = 1
	}
	if quality <= 0 {
		quality = DefaultThumbnailQuality
	}

	tw, th := width/scale, height/scale
	if tw == 0 || th == 0 {
		return nil, fmt.Errorf("thumbnail: scale %d too large for %dx%d", scale, width, height)
	}

	out := image.NewGray(image.Rect(0, 0, tw, th))
	area := uint32(scale * scale)
	for ty := 0; ty < th; ty++ {
		for tx := 0; tx < tw; tx++ {
			var sum uint32
			for dy := 0; dy < scale; dy++ {
				row := (ty*scale + dy) * width
				for dx := 0; dx < scale; dx++ {
					sum += uint32(img[row+tx*scale+dx])
				}
			}
			out.Pix[ty*out.Stride+tx] = uint8(sum / area)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("thumbnail: encoding: %w", err)
	}
	return buf.Bytes(), nil
}
