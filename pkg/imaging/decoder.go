// Package imaging decodes downloaded payloads and checks that they are real
// raster images of a usable size.
package imaging

import (
	"bytes"
	"fmt"
	"image"

	// Registered decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	errs "imgharvest/pkg/errors"
)

// Image is a decoded payload
type Image struct {
	Width  int
	Height int
	// Format is the registered decoder name: jpeg, png, gif, webp, bmp or tiff
	Format string
	Pixels image.Image
}

// Decoder turns raw bytes into an Image
type Decoder interface {
	Decode(data []byte) (Image, error)
}

// StdDecoder decodes every format registered with the image package
type StdDecoder struct{}

// NewDecoder returns the default decoder
func NewDecoder() StdDecoder {
	return StdDecoder{}
}

// Decode fully decodes data. Anything that is not a complete image of a
// known format is a decode error.
func (StdDecoder) Decode(data []byte) (Image, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Image{}, errs.New(errs.ErrorTypeDecode, "not a decodable image", err)
	}

	b := img.Bounds()
	return Image{
		Width:  b.Dx(),
		Height: b.Dy(),
		Format: format,
		Pixels: img,
	}, nil
}

// CheckDimensions rejects images smaller than min on either axis
func CheckDimensions(img Image, min int) error {
	if img.Width < min || img.Height < min {
		return &errs.Error{
			Type:    errs.ErrorTypeDimensionTooSmall,
			Message: fmt.Sprintf("%dx%d is below the %dpx minimum", img.Width, img.Height, min),
		}
	}
	return nil
}

// Extension maps a decoder format name to a file extension
func Extension(format string) string {
	switch format {
	case "jpeg":
		return "jpg"
	case "png", "gif", "webp", "bmp":
		return format
	case "tiff":
		return "tif"
	default:
		return ""
	}
}
