// Package imaging decodes uploaded images and re-encodes them as JPEG for
// the description service.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoder

	"github.com/nfnt/resize"
)

// DefaultQuality is the JPEG quality used for uploads.
const DefaultQuality = 90

// Decode decodes JPEG or PNG data.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// EncodeJPEG encodes img as JPEG. If maxWidth is positive and smaller than
// the image width, the image is first downscaled to maxWidth keeping its
// aspect ratio.
func EncodeJPEG(img image.Image, maxWidth, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	bounds := img.Bounds()
	if maxWidth > 0 && bounds.Dx() > maxWidth {
		aspectRatio := float64(bounds.Dy()) / float64(bounds.Dx())
		newHeight := uint(float64(maxWidth) * aspectRatio)
		if newHeight == 0 {
			newHeight = 1
		}
		img = resize.Resize(uint(maxWidth), newHeight, img, resize.Lanczos3)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode to jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
