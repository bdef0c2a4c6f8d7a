//go:build gocv
// +build gocv

package imaging

import (
	"image"

	"github.com/nfnt/resize"
	"gocv.io/x/gocv"
)

// resizeImage uses OpenCV when built with the gocv tag. It falls back to the pure Go
// resizer if the image cannot be converted to a Mat.
func resizeImage(img image.Image, width, height int, filter Filter) image.Image {
	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return fallbackResize(img, width, height, filter)
	}
	defer src.Close()
	if src.Empty() {
		return fallbackResize(img, width, height, filter)
	}

	interp := gocv.InterpolationLinear
	if filter == Bicubic {
		interp = gocv.InterpolationCubic
	}

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Resize(src, &dst, image.Pt(width, height), 0, 0, interp)

	out, err := dst.ToImage()
	if err != nil {
		return fallbackResize(img, width, height, filter)
	}
	return out
}

func fallbackResize(img image.Image, width, height int, filter Filter) image.Image {
	interp := resize.Bilinear
	if filter == Bicubic {
		interp = resize.Bicubic
	}
	return resize.Resize(uint(width), uint(height), img, interp)
}
