//go:build !gocv
// +build !gocv

package imaging

import (
	"image"

	"github.com/nfnt/resize"
)

func resizeImage(img image.Image, width, height int, filter Filter) image.Image {
	interp := resize.Bilinear
	if filter == Bicubic {
		interp = resize.Bicubic
	}
	return resize.Resize(uint(width), uint(height), img, interp)
}
