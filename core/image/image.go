package image

import (
	"fmt"
	"math"
)

// MaxValue is the full-scale pixel value. Pixel data is stored as float32 in
// the [0, MaxValue] range, matching 16-bit captures promoted to float.
const MaxValue = 65535.0

// Image is a single-channel image with row-major float32 pixel data.
type Image struct {
	Width  int
	Height int
	Data   []float32
}

// New creates a zero-filled image of the given size.
func New(width, height int) *Image {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Image{
		Width:  width,
		Height: height,
		Data:   make([]float32, width*height),
	}
}

// Empty returns a zero-sized placeholder image. Placeholders flow through
// arithmetic without error so that static analyses can walk full expression
// trees without real pixel data.
func Empty() *Image {
	return &Image{}
}

// FromRows builds an image from a nested numeric array, outer slice being
// rows. All rows must have the same length.
func FromRows(rows [][]float64) (*Image, error) {
	height := len(rows)
	if height == 0 {
		return Empty(), nil
	}
	width := len(rows[0])
	img := New(width, height)
	for y, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has %d values, expected %d", y, len(row), width)
		}
		for x, v := range row {
			img.Data[y*width+x] = float32(v)
		}
	}
	return img, nil
}

// IsEmpty reports whether the image has no pixels.
func (i *Image) IsEmpty() bool {
	return i.Width == 0 || i.Height == 0
}

// At returns the pixel at (x, y).
func (i *Image) At(x, y int) float32 {
	return i.Data[y*i.Width+x]
}

// Set writes the pixel at (x, y).
func (i *Image) Set(x, y int, v float32) {
	i.Data[y*i.Width+x] = v
}

// Copy returns a deep copy of the image.
func (i *Image) Copy() *Image {
	out := &Image{Width: i.Width, Height: i.Height, Data: make([]float32, len(i.Data))}
	copy(out.Data, i.Data)
	return out
}

// Rows returns the pixel data as a nested float64 array, outer slice being
// rows. This is the interchange form used across the foreign runtime
// boundary.
func (i *Image) Rows() [][]float64 {
	rows := make([][]float64, i.Height)
	for y := 0; y < i.Height; y++ {
		row := make([]float64, i.Width)
		for x := 0; x < i.Width; x++ {
			row[x] = float64(i.Data[y*i.Width+x])
		}
		rows[y] = row
	}
	return rows
}

func (i *Image) String() string {
	return fmt.Sprintf("image(%dx%d)", i.Width, i.Height)
}

// MinMax returns the smallest and largest pixel values.
func (i *Image) MinMax() (float32, float32) {
	if len(i.Data) == 0 {
		return 0, 0
	}
	lo := float32(math.Inf(1))
	hi := float32(math.Inf(-1))
	for _, v := range i.Data {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
