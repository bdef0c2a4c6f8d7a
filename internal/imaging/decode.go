package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/Brownie44l1/vision-api/internal/model"
)

// DefaultMaxPixels bounds both the decoded image and any intermediate resize.
const DefaultMaxPixels = 1 << 25

// Decode turns encoded image bytes into RGB pixel data and reports the detected format.
// Alpha is dropped without compositing, the way an RGB conversion does. Images with more
// than maxPixels pixels are rejected from their header, before any pixel is decoded;
// maxPixels <= 0 means DefaultMaxPixels.
func Decode(data []byte, maxPixels int) (*image.RGBA, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty payload", model.ErrInvalidImage)
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	header, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", model.ErrInvalidImage, err)
	}
	if exceedsPixels(header.Width, header.Height, maxPixels) {
		return nil, format, fmt.Errorf("%w: %dx%d image exceeds %d pixels",
			model.ErrInvalidImage, header.Width, header.Height, maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", model.ErrInvalidImage, err)
	}

	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, format, fmt.Errorf("%w: image has no pixels", model.ErrInvalidImage)
	}

	return toRGB(img), format, nil
}

func toRGB(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	rgb := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		draw.Draw(rgb, rgb.Bounds(), img, bounds.Min, draw.Src)
		return rgb
	}

	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			rgb.SetRGBA(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return rgb
}

func exceedsPixels(width, height, maxPixels int) bool {
	if width <= 0 || height <= 0 {
		return false
	}
	return width > maxPixels/height
}
