package dyplo

import (
	"fmt"
	"math"
)

// PixelFormat defines memory layout of a single pixel.
type PixelFormat int

// Supported pixel formats.
const (
	Gray8 PixelFormat = iota
	RGB888
	RGB32
	ARGB32
)

// BytesPerPixel returns the size of single pixel in bytes.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case Gray8:
		return 1
	case RGB888:
		return 3
	case RGB32, ARGB32:
		return 4
	}
	return 0
}

func (f PixelFormat) String() string {
	switch f {
	case Gray8:
		return "gray8"
	case RGB888:
		return "rgb888"
	case RGB32:
		return "rgb32"
	case ARGB32:
		return "argb32"
	}
	return "unknown"
}

// ParsePixelFormat returns pixel format for its string name.
func ParsePixelFormat(s string) (PixelFormat, error) {
	for _, f := range []PixelFormat{Gray8, RGB888, RGB32, ARGB32} {
		if f.String() == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown pixel format %q", ErrInvalidImage, s)
}

type (
	// Shape describes how raw bytes are interpreted as image. It's
	// captured at send time and reused to interpret the received block.
	Shape struct {
		Width  int
		Height int
		Stride int // bytes per row
		Format PixelFormat
	}

	// Image is a raw image buffer with its shape.
	Image struct {
		Pix []byte
		Shape
	}

	// View is a zero-copy read-only interpretation of a received block.
	// It's valid only during the consumer callback; after that Bytes
	// returns nil. Use Clone to keep the data.
	View struct {
		lease *Lease
		shape Shape
	}

	// Result is passed to the consumer. Exactly one of View and Err is
	// meaningful.
	Result struct {
		View View
		Err  error
	}

	// ResultFunc consumes processed images. It must not retain the view
	// after return.
	ResultFunc func(Result)
)

// NewShape returns shape with tightly packed rows.
func NewShape(width, height int, format PixelFormat) Shape {
	return Shape{
		Width:  width,
		Height: height,
		Stride: width * format.BytesPerPixel(),
		Format: format,
	}
}

// Size returns the payload size in bytes.
func (s Shape) Size() int {
	return s.Stride * s.Height
}

// Validate checks that shape describes non-empty image.
func (s Shape) Validate() error {
	bpp := s.Format.BytesPerPixel()
	switch {
	case bpp == 0:
		return fmt.Errorf("%w: unknown pixel format %d", ErrInvalidImage, s.Format)
	case s.Width <= 0 || s.Height <= 0:
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidImage, s.Width, s.Height)
	case s.Width > math.MaxInt/bpp || s.Stride > math.MaxInt/s.Height:
		return fmt.Errorf("%w: shape %v overflows", ErrInvalidImage, s)
	case s.Stride < s.Width*bpp:
		return fmt.Errorf("%w: stride %d is less than row size %d", ErrInvalidImage, s.Stride, s.Width*bpp)
	}
	return nil
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%d/%d %v", s.Width, s.Height, s.Stride, s.Format)
}

// NewImage allocates zeroed image of provided shape.
func NewImage(s Shape) Image {
	return Image{
		Pix:   make([]byte, s.Size()),
		Shape: s,
	}
}

// Validate checks that buffer holds the whole image.
func (img Image) Validate() error {
	if err := img.Shape.Validate(); err != nil {
		return err
	}
	if len(img.Pix) < img.Size() {
		return fmt.Errorf("%w: buffer has %d bytes, shape %v requires %d", ErrInvalidImage, len(img.Pix), img.Shape, img.Size())
	}
	return nil
}

// Fill sets every byte of the image to v.
func (img Image) Fill(v byte) {
	for i := range img.Pix {
		img.Pix[i] = v
	}
}

// Bytes returns raw image data. Nil is returned when view is no longer
// valid.
func (v View) Bytes() []byte {
	if v.lease == nil {
		return nil
	}
	b := v.lease.Bytes()
	if len(b) < v.shape.Size() {
		return nil
	}
	return b[:v.shape.Size()]
}

// Row returns bytes of the row y without stride padding.
func (v View) Row(y int) []byte {
	b := v.Bytes()
	if b == nil || y < 0 || y >= v.shape.Height {
		return nil
	}
	off := y * v.shape.Stride
	return b[off : off+v.shape.Width*v.shape.Format.BytesPerPixel()]
}

// Shape returns the shape of the view.
func (v View) Shape() Shape {
	return v.shape
}

// Valid returns true while the underlying block is leased to software.
func (v View) Valid() bool {
	return v.Bytes() != nil
}

// Clone copies view data into new image.
func (v View) Clone() Image {
	img := NewImage(v.shape)
	copy(img.Pix, v.Bytes())
	return img
}
