package stats

// Rect is an axis-aligned pixel rectangle.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Empty reports whether r covers no pixels.
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

// GreyFraction returns the median luma over rect, sampling every xSkip-th
// column and ySkip-th row, as a fraction of 256. The rectangle is clipped
// to the image. An empty sample returns 0.
//
// Parameters:
//   - img: Row-major 8-bit luma plane
//   - stride: Bytes per row
//   - rect: Region to sample
//   - xSkip, ySkip: Sampling steps (values below 1 are treated as 1)
func GreyFraction(img []byte, stride int, rect Rect, xSkip, ySkip int) float64 {
	if stride <= 0 || len(img) == 0 {
		return 0
	}
	xSkip = max(xSkip, 1)
	ySkip = max(ySkip, 1)

	rows := len(img) / stride
	x0, y0 := max(rect.X, 0), max(rect.Y, 0)
	x1, y1 := min(rect.X+rect.W, stride), min(rect.Y+rect.H, rows)

	var hist [256]uint32
	var total uint32
	for y := y0; y < y1; y += ySkip {
		row := img[y*stride : y*stride+stride]
		for x := x0; x < x1; x += xSkip {
			hist[row[x]]++
			total++
		}
	}
	if total == 0 {
		return 0
	}

	// Walk down from the bright end until more than half the samples are covered.
	var seen uint32
	med := 255
	for ; med >= 0; med-- {
		seen += hist[med]
		if seen > total/2 {
			break
		}
	}
	return float64(med) / 256.0
}
