package dyplo_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/topic-embedded-products/dyplo"
)

func TestShape(t *testing.T) {
	tests := []struct {
		shape dyplo.Shape
		size  int
		valid bool
	}{
		{shape: dyplo.NewShape(4, 4, dyplo.Gray8), size: 16, valid: true},
		{shape: dyplo.NewShape(4, 4, dyplo.RGB888), size: 48, valid: true},
		{shape: dyplo.NewShape(2, 3, dyplo.RGB32), size: 24, valid: true},
		{shape: dyplo.Shape{Width: 3, Height: 2, Stride: 4, Format: dyplo.Gray8}, size: 8, valid: true},
		{shape: dyplo.Shape{Width: 3, Height: 2, Stride: 2, Format: dyplo.Gray8}, size: 4},
		{shape: dyplo.NewShape(0, 4, dyplo.Gray8), size: 0},
		{shape: dyplo.Shape{Width: 1, Height: 1, Stride: 1, Format: dyplo.PixelFormat(42)}, size: 1},
		{shape: dyplo.Shape{Width: 1, Height: 4, Stride: 1<<62 + 2, Format: dyplo.Gray8}, size: 8},
		{shape: dyplo.Shape{Width: math.MaxInt/2 + 1, Height: 1, Stride: 1, Format: dyplo.RGB32}, size: 1},
	}
	for _, test := range tests {
		t.Run(test.shape.String(), func(t *testing.T) {
			assert.Equal(t, test.size, test.shape.Size())
			err := test.shape.Validate()
			if test.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, dyplo.ErrInvalidImage))
			}
		})
	}
}

func TestParsePixelFormat(t *testing.T) {
	for _, f := range []dyplo.PixelFormat{dyplo.Gray8, dyplo.RGB888, dyplo.RGB32, dyplo.ARGB32} {
		parsed, err := dyplo.ParsePixelFormat(f.String())
		assert.NoError(t, err)
		assert.Equal(t, f, parsed)
	}
	_, err := dyplo.ParsePixelFormat("yuv422")
	assert.True(t, errors.Is(err, dyplo.ErrInvalidImage))
}

func TestImageValidate(t *testing.T) {
	img := dyplo.NewImage(dyplo.NewShape(3, 3, dyplo.Gray8))
	assert.NoError(t, img.Validate())
	img.Pix = img.Pix[:8]
	assert.True(t, errors.Is(img.Validate(), dyplo.ErrInvalidImage))
}

func TestEmptyView(t *testing.T) {
	var v dyplo.View
	assert.False(t, v.Valid())
	assert.Nil(t, v.Bytes())
	assert.Nil(t, v.Row(0))
}
