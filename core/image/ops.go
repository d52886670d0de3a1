package image

import (
	"fmt"
	"math"
	"sort"
)

// binop applies f pixelwise to a and b. Placeholder (empty) operands
// propagate as placeholders so that analysis passes never fail on size.
func binop(a, b *Image, f func(x, y float32) float32) (*Image, error) {
	if a.IsEmpty() || b.IsEmpty() {
		return Empty(), nil
	}
	if a.Width != b.Width || a.Height != b.Height {
		return nil, fmt.Errorf("image size mismatch: %dx%d vs %dx%d", a.Width, a.Height, b.Width, b.Height)
	}
	out := New(a.Width, a.Height)
	for i := range a.Data {
		out.Data[i] = f(a.Data[i], b.Data[i])
	}
	return out, nil
}

func mapPixels(a *Image, f func(v float32) float32) *Image {
	out := New(a.Width, a.Height)
	for i, v := range a.Data {
		out.Data[i] = f(v)
	}
	return out
}

// Add returns a + b pixelwise.
func Add(a, b *Image) (*Image, error) {
	return binop(a, b, func(x, y float32) float32 { return x + y })
}

// Sub returns a - b pixelwise.
func Sub(a, b *Image) (*Image, error) {
	return binop(a, b, func(x, y float32) float32 { return x - y })
}

// Mul returns a * b pixelwise.
func Mul(a, b *Image) (*Image, error) {
	return binop(a, b, func(x, y float32) float32 { return x * y })
}

// Div returns a / b pixelwise. Division by a zero pixel yields zero rather
// than infinity, keeping results displayable.
func Div(a, b *Image) (*Image, error) {
	return binop(a, b, func(x, y float32) float32 {
		if y == 0 {
			return 0
		}
		return x / y
	})
}

// AddScalar returns a + v pixelwise.
func AddScalar(a *Image, v float64) *Image {
	return mapPixels(a, func(x float32) float32 { return x + float32(v) })
}

// MulScalar returns a * v pixelwise.
func MulScalar(a *Image, v float64) *Image {
	return mapPixels(a, func(x float32) float32 { return x * float32(v) })
}

// SubFromScalar returns v - a pixelwise.
func SubFromScalar(v float64, a *Image) *Image {
	return mapPixels(a, func(x float32) float32 { return float32(v) - x })
}

// DivIntoScalar returns v / a pixelwise, zero where a is zero.
func DivIntoScalar(v float64, a *Image) *Image {
	return mapPixels(a, func(x float32) float32 {
		if x == 0 {
			return 0
		}
		return float32(v) / x
	})
}

// sameSize filters out placeholders and checks remaining images agree on
// size. Returns the reference width/height, or ok=false when only
// placeholders were supplied.
func sameSize(images []*Image) (w, h int, ok bool, err error) {
	for _, img := range images {
		if img.IsEmpty() {
			continue
		}
		if !ok {
			w, h, ok = img.Width, img.Height, true
			continue
		}
		if img.Width != w || img.Height != h {
			return 0, 0, false, fmt.Errorf("image size mismatch: %dx%d vs %dx%d", img.Width, img.Height, w, h)
		}
	}
	return w, h, ok, nil
}

// Average returns the pixelwise mean of the images.
func Average(images []*Image) (*Image, error) {
	return fold(images, func(values []float32) float32 {
		var sum float32
		for _, v := range values {
			sum += v
		}
		return sum / float32(len(values))
	})
}

// Min returns the pixelwise minimum of the images.
func Min(images []*Image) (*Image, error) {
	return fold(images, func(values []float32) float32 {
		m := values[0]
		for _, v := range values[1:] {
			if v < m {
				m = v
			}
		}
		return m
	})
}

// Max returns the pixelwise maximum of the images.
func Max(images []*Image) (*Image, error) {
	return fold(images, func(values []float32) float32 {
		m := values[0]
		for _, v := range values[1:] {
			if v > m {
				m = v
			}
		}
		return m
	})
}

// Median returns the pixelwise median of the images.
func Median(images []*Image) (*Image, error) {
	return fold(images, func(values []float32) float32 {
		sorted := make([]float32, len(values))
		copy(sorted, values)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		mid := len(sorted) / 2
		if len(sorted)%2 == 1 {
			return sorted[mid]
		}
		return (sorted[mid-1] + sorted[mid]) / 2
	})
}

func fold(images []*Image, f func(values []float32) float32) (*Image, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("no images to combine")
	}
	w, h, ok, err := sameSize(images)
	if err != nil {
		return nil, err
	}
	if !ok {
		return Empty(), nil
	}
	concrete := make([]*Image, 0, len(images))
	for _, img := range images {
		if !img.IsEmpty() {
			concrete = append(concrete, img)
		}
	}
	out := New(w, h)
	values := make([]float32, len(concrete))
	for i := range out.Data {
		for j, img := range concrete {
			values[j] = img.Data[i]
		}
		out.Data[i] = f(values)
	}
	return out, nil
}

// Invert returns MaxValue - v for each pixel.
func Invert(a *Image) *Image {
	return mapPixels(a, func(v float32) float32 { return MaxValue - v })
}

// Crop extracts the rectangle at (left, top) with the given size. The
// rectangle must lie within the image.
func Crop(a *Image, left, top, width, height int) (*Image, error) {
	if a.IsEmpty() {
		return Empty(), nil
	}
	if left < 0 || top < 0 || width <= 0 || height <= 0 || left+width > a.Width || top+height > a.Height {
		return nil, fmt.Errorf("crop rectangle %d,%d %dx%d out of bounds for %dx%d image", left, top, width, height, a.Width, a.Height)
	}
	out := New(width, height)
	for y := 0; y < height; y++ {
		src := (top+y)*a.Width + left
		copy(out.Data[y*width:(y+1)*width], a.Data[src:src+width])
	}
	return out, nil
}

// LinearStretch rescales pixel values so that lo maps to 0 and hi maps to
// MaxValue, clipping outside the range.
func LinearStretch(a *Image, lo, hi float64) *Image {
	if hi <= lo {
		return a.Copy()
	}
	scale := MaxValue / (hi - lo)
	return mapPixels(a, func(v float32) float32 {
		x := (float64(v) - lo) * scale
		return float32(math.Min(MaxValue, math.Max(0, x)))
	})
}

// AdjustContrast clips pixel values to [min, max] then stretches the
// remaining range to full scale.
func AdjustContrast(a *Image, min, max float64) *Image {
	return LinearStretch(a, min, max)
}

// Clahe performs contrast-limited adaptive histogram equalization with
// square tiles of tileSize pixels, a histogram of bins buckets and the given
// clip limit. Callers must validate tileSize*tileSize/bins >= 1 before
// invoking.
func Clahe(a *Image, tileSize, bins int, clip float64) (*Image, error) {
	if a.IsEmpty() {
		return Empty(), nil
	}
	if tileSize <= 0 || bins <= 0 {
		return nil, fmt.Errorf("invalid clahe parameters: tile size %d, bins %d", tileSize, bins)
	}
	out := New(a.Width, a.Height)
	hist := make([]float64, bins)
	cdf := make([]float64, bins)
	for ty := 0; ty < a.Height; ty += tileSize {
		for tx := 0; tx < a.Width; tx += tileSize {
			th := minInt(tileSize, a.Height-ty)
			tw := minInt(tileSize, a.Width-tx)
			equalizeTile(a, out, tx, ty, tw, th, bins, clip, hist, cdf)
		}
	}
	return out, nil
}

func equalizeTile(src, dst *Image, tx, ty, tw, th, bins int, clip float64, hist, cdf []float64) {
	for i := range hist {
		hist[i] = 0
	}
	n := float64(tw * th)
	for y := ty; y < ty+th; y++ {
		for x := tx; x < tx+tw; x++ {
			hist[binOf(src.At(x, y), bins)]++
		}
	}
	// Clip histogram and redistribute the excess uniformly.
	limit := clip * n / float64(bins)
	var excess float64
	for i, v := range hist {
		if v > limit {
			excess += v - limit
			hist[i] = limit
		}
	}
	share := excess / float64(bins)
	var cum float64
	for i := range hist {
		cum += hist[i] + share
		cdf[i] = cum
	}
	total := cdf[len(cdf)-1]
	for y := ty; y < ty+th; y++ {
		for x := tx; x < tx+tw; x++ {
			b := binOf(src.At(x, y), bins)
			dst.Set(x, y, float32(cdf[b]/total*MaxValue))
		}
	}
}

func binOf(v float32, bins int) int {
	b := int(float64(v) / MaxValue * float64(bins))
	if b >= bins {
		b = bins - 1
	}
	if b < 0 {
		b = 0
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
