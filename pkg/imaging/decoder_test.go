package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "imgharvest/pkg/errors"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodeFormats(t *testing.T) {
	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, image.NewGray(image.Rect(0, 0, 120, 90)), nil))

	var gf bytes.Buffer
	require.NoError(t, gif.Encode(&gf, image.NewPaletted(image.Rect(0, 0, 10, 20), color.Palette{color.Black, color.White}), nil))

	tests := []struct {
		name   string
		data   []byte
		format string
		w, h   int
	}{
		{"png", encodePNG(t, 100, 100), "png", 100, 100},
		{"jpeg", jpg.Bytes(), "jpeg", 120, 90},
		{"gif", gf.Bytes(), "gif", 10, 20},
	}

	d := NewDecoder()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := d.Decode(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.format, img.Format)
			assert.Equal(t, tt.w, img.Width)
			assert.Equal(t, tt.h, img.Height)
			assert.NotNil(t, img.Pixels)
		})
	}
}

func TestDecodeGarbage(t *testing.T) {
	_, err := NewDecoder().Decode(bytes.Repeat([]byte("<html>"), 2000))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeDecode))

	truncated := encodePNG(t, 200, 200)
	_, err = NewDecoder().Decode(truncated[:len(truncated)/2])
	assert.True(t, errs.Is(err, errs.ErrorTypeDecode))
}

func TestCheckDimensions(t *testing.T) {
	assert.NoError(t, CheckDimensions(Image{Width: 100, Height: 100}, 100))

	err := CheckDimensions(Image{Width: 80, Height: 120}, 100)
	assert.True(t, errs.Is(err, errs.ErrorTypeDimensionTooSmall))

	err = CheckDimensions(Image{Width: 300, Height: 99}, 100)
	assert.True(t, errs.Is(err, errs.ErrorTypeDimensionTooSmall))
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "jpg", Extension("jpeg"))
	assert.Equal(t, "png", Extension("png"))
	assert.Equal(t, "webp", Extension("webp"))
	assert.Equal(t, "tif", Extension("tiff"))
	assert.Equal(t, "", Extension("svg"))
}
