package imaging

import (
	"fmt"
	"image"
	"math"

	"github.com/Brownie44l1/vision-api/internal/model"
)

// Filter selects the interpolation used when resizing.
type Filter int

const (
	Bilinear Filter = iota
	Bicubic
)

// Tensor is one image in channel-first float layout (C×H×W), normalized per channel.
type Tensor struct {
	Channels int
	Height   int
	Width    int
	Data     []float32
}

// Shape returns the tensor shape with a leading batch dimension of one.
func (t *Tensor) Shape() []int64 {
	return []int64{1, int64(t.Channels), int64(t.Height), int64(t.Width)}
}

// Preprocessor describes how a decoded image becomes a model input.
//
// With ShortSide > 0 the image is resized so its shorter side equals ShortSide,
// keeping the aspect ratio, then center-cropped to Width×Height. With ShortSide == 0
// it is resized straight to Width×Height. MaxPixels caps the decoded image and the
// resized intermediate; zero means DefaultMaxPixels.
type Preprocessor struct {
	ShortSide int
	Width     int
	Height    int
	Filter    Filter
	Mean      [3]float32
	Std       [3]float32
	MaxPixels int
}

// ImageNet is the classifier preprocessing: resize to 256, center-crop 224, ImageNet statistics.
var ImageNet = Preprocessor{
	ShortSide: 256,
	Width:     224,
	Height:    224,
	Filter:    Bilinear,
	Mean:      [3]float32{0.485, 0.456, 0.406},
	Std:       [3]float32{0.229, 0.224, 0.225},
}

// DecodeAndNormalize decodes data and converts it into a normalized tensor.
func (p Preprocessor) DecodeAndNormalize(data []byte) (*Tensor, string, error) {
	img, format, err := Decode(data, p.MaxPixels)
	if err != nil {
		return nil, format, err
	}
	tensor, err := p.Normalize(img)
	return tensor, format, err
}

// Validate reports a preprocessor that cannot produce a tensor for any image.
func (p Preprocessor) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("output size %dx%d must be positive", p.Width, p.Height)
	}
	if p.ShortSide < 0 {
		return fmt.Errorf("short side %d must not be negative", p.ShortSide)
	}
	for i, s := range p.Std {
		if s == 0 || math.IsNaN(float64(s)) {
			return fmt.Errorf("std[%d] must be non-zero", i)
		}
	}
	return nil
}

// Normalize resizes, crops and normalizes img. The output shape is always 3×Height×Width.
// A misconfigured preprocessor is a server fault, not a property of img.
func (p Preprocessor) Normalize(img image.Image) (*Tensor, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: preprocessor: %v", model.ErrInferenceFailure, err)
	}
	maxPixels := p.MaxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("%w: image has no pixels", model.ErrInvalidImage)
	}

	var prepared image.Image
	if p.ShortSide > 0 {
		w, h := shortSideSize(bounds.Dx(), bounds.Dy(), p.ShortSide)
		if exceedsPixels(w, h, maxPixels) {
			return nil, fmt.Errorf("%w: %dx%d image would resize to %dx%d, over %d pixels",
				model.ErrInvalidImage, bounds.Dx(), bounds.Dy(), w, h, maxPixels)
		}
		prepared = centerCrop(resizeImage(img, w, h, p.Filter), p.Width, p.Height)
	} else {
		prepared = resizeImage(img, p.Width, p.Height, p.Filter)
	}

	return p.toTensor(prepared), nil
}

func (p Preprocessor) toTensor(img image.Image) *Tensor {
	bounds := img.Bounds()
	width, height := p.Width, p.Height
	plane := width * height

	data := make([]float32, 3*plane)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			pixelIndex := y*width + x
			data[pixelIndex] = (float32(r>>8)/255.0 - p.Mean[0]) / p.Std[0]
			data[plane+pixelIndex] = (float32(g>>8)/255.0 - p.Mean[1]) / p.Std[1]
			data[2*plane+pixelIndex] = (float32(b>>8)/255.0 - p.Mean[2]) / p.Std[2]
		}
	}

	return &Tensor{Channels: 3, Height: height, Width: width, Data: data}
}

// Bounds returns the smallest and largest value a normalized channel can take.
func (p Preprocessor) Bounds(channel int) (float32, float32) {
	return (0 - p.Mean[channel]) / p.Std[channel], (1 - p.Mean[channel]) / p.Std[channel]
}

// shortSideSize scales (w, h) so the shorter side equals target.
func shortSideSize(w, h, target int) (int, int) {
	if w <= h {
		return target, int(float64(target) * float64(h) / float64(w))
	}
	return int(float64(target) * float64(w) / float64(h)), target
}

// centerCrop cuts a width×height window from the middle of img. Images smaller than the
// window are padded with black on the missing side.
func centerCrop(img image.Image, width, height int) image.Image {
	bounds := img.Bounds()
	top := int(math.Round(float64(bounds.Dy()-height) / 2.0))
	left := int(math.Round(float64(bounds.Dx()-width) / 2.0))

	out := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		sy := bounds.Min.Y + top + y
		if sy < bounds.Min.Y || sy >= bounds.Max.Y {
			continue
		}
		for x := 0; x < width; x++ {
			sx := bounds.Min.X + left + x
			if sx < bounds.Min.X || sx >= bounds.Max.X {
				continue
			}
			out.Set(x, y, img.At(sx, sy))
		}
	}
	return out
}
