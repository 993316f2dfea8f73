// Package imagecheck validates and normalizes submitted photos before any
// classifier runs. All rejections here are deterministic and cheap, and they
// short-circuit before any remote call is attempted.
package imagecheck

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoder

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/gymcheck/gymcheck-go/internal/errors"
)

// upscaleJPEGQuality is the encode quality used when a below-floor image is
// proportionally resized.
const upscaleJPEGQuality = 85

// Config holds the preconditioning bounds. Zero values are not defaulted
// here; callers pass settings from conf.
type Config struct {
	MinSidePx       int     // gym path: shorter side floor, upscale below this
	MinBytes        int     // gym path: payload floor, triggers re-encode below this
	MaxBytes        int     // meal path: payload ceiling
	RatioBound      float64 // symmetric band around 1 for the screenshot heuristic
	BrightnessFloor float64 // minimum mean brightness on a 0-255 scale
}

// Checked is a validated, possibly re-encoded image ready for classification.
type Checked struct {
	Data       []byte  // original or re-encoded bytes
	Width      int     // pixel width after any resize
	Height     int     // pixel height after any resize
	Brightness float64 // mean of the R, G and B channel means, 0-255
	Upscaled   bool    // true when the gym path resized the image
}

var acceptedMIMEs = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// CheckGym validates a gym presence photo. Images below the dimension floor
// are upscaled rather than rejected so low-end cameras still verify.
func CheckGym(data []byte, declaredMIME string, cfg Config) (*Checked, error) {
	img, err := decode(data, declaredMIME)
	if err != nil {
		return nil, err
	}

	if err := screenshotHeuristic(img, cfg.RatioBound); err != nil {
		return nil, err
	}

	brightness := meanBrightness(img)
	if brightness < cfg.BrightnessFloor {
		return nil, errors.Newf("image too dark: mean brightness %.1f below floor %.1f", brightness, cfg.BrightnessFloor).
			Component("imagecheck").
			Category(errors.CategoryTooDark).
			Context("brightness", brightness).
			Build()
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if minSide(width, height) >= cfg.MinSidePx && len(data) >= cfg.MinBytes {
		return &Checked{Data: data, Width: width, Height: height, Brightness: brightness}, nil
	}

	// Below the floor: proportionally resize so the shorter side meets the
	// minimum, re-encode, and recompute brightness on the resized pixels.
	resized, dst, err := upscale(img, cfg.MinSidePx)
	if err != nil {
		return nil, err
	}

	return &Checked{
		Data:       resized,
		Width:      dst.Bounds().Dx(),
		Height:     dst.Bounds().Dy(),
		Brightness: meanBrightness(dst),
		Upscaled:   true,
	}, nil
}

// CheckMeal validates a meal photo. The meal path enforces a payload ceiling
// instead of a dimension floor; detection models downscale internally.
func CheckMeal(data []byte, declaredMIME string, cfg Config) (*Checked, error) {
	if cfg.MaxBytes > 0 && len(data) > cfg.MaxBytes {
		return nil, errors.Newf("image payload %d bytes exceeds ceiling %d", len(data), cfg.MaxBytes).
			Component("imagecheck").
			Category(errors.CategoryTooLarge).
			Context("size", len(data)).
			Build()
	}

	img, err := decode(data, declaredMIME)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	return &Checked{
		Data:       data,
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		Brightness: meanBrightness(img),
	}, nil
}

func decode(data []byte, declaredMIME string) (image.Image, error) {
	if declaredMIME != "" && !acceptedMIMEs[declaredMIME] {
		return nil, errors.Newf("unsupported image format %q", declaredMIME).
			Component("imagecheck").
			Category(errors.CategoryUnsupportedFormat).
			Context("mime", declaredMIME).
			Build()
	}
	if len(data) == 0 {
		return nil, errors.Newf("empty image payload").
			Component("imagecheck").
			Category(errors.CategoryInvalidFile).
			Build()
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to decode image: %w", err)).
			Component("imagecheck").
			Category(errors.CategoryInvalidFile).
			Context("size", len(data)).
			Build()
	}
	return img, nil
}

// screenshotHeuristic rejects width/height ratios outside a symmetric band
// around 1. Screenshots and UI captures tend to sit at more extreme ratios
// than camera photos. This is a heuristic, not a detector, and legitimate
// panoramas will trip it.
func screenshotHeuristic(img image.Image, ratioBound float64) error {
	if ratioBound <= 1 {
		return nil
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if height == 0 {
		return errors.Newf("image has zero height").
			Component("imagecheck").
			Category(errors.CategoryInvalidFile).
			Build()
	}

	ratio := float64(width) / float64(height)
	if ratio > ratioBound || ratio < 1/ratioBound {
		return errors.Newf("aspect ratio %.2f outside band [%.2f, %.2f], screenshot suspected", ratio, 1/ratioBound, ratioBound).
			Component("imagecheck").
			Category(errors.CategoryScreenshotSuspected).
			Context("ratio", ratio).
			Build()
	}
	return nil
}

// meanBrightness returns the mean of the three channel means on a 0-255
// scale. Large images are sampled on a stride to keep this cheap.
func meanBrightness(img image.Image) float64 {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return 0
	}

	// Cap the work at roughly 100k sampled pixels.
	step := 1
	if pixels := width * height; pixels > 100_000 {
		for step*step < pixels/100_000 {
			step++
		}
	}

	var rSum, gSum, bSum, count uint64
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			r, g, b, _ := img.At(x, y).RGBA()
			rSum += uint64(r >> 8)
			gSum += uint64(g >> 8)
			bSum += uint64(b >> 8)
			count++
		}
	}
	if count == 0 {
		return 0
	}

	rMean := float64(rSum) / float64(count)
	gMean := float64(gSum) / float64(count)
	bMean := float64(bSum) / float64(count)
	return (rMean + gMean + bMean) / 3
}

// upscale resizes img proportionally so its shorter side equals floor and
// re-encodes it as JPEG.
func upscale(img image.Image, floor int) ([]byte, *image.RGBA, error) {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW == 0 || srcH == 0 {
		return nil, nil, errors.Newf("cannot upscale degenerate image %dx%d", srcW, srcH).
			Component("imagecheck").
			Category(errors.CategoryInvalidFile).
			Build()
	}

	scale := float64(floor) / float64(min(srcW, srcH))
	if scale < 1 {
		scale = 1
	}
	width := int(float64(srcW)*scale + 0.5)
	height := int(float64(srcH)*scale + 0.5)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: upscaleJPEGQuality}); err != nil {
		return nil, nil, errors.New(fmt.Errorf("failed to encode resized image: %w", err)).
			Component("imagecheck").
			Category(errors.CategoryFileIO).
			Build()
	}
	return buf.Bytes(), dst, nil
}

func minSide(w, h int) int {
	return min(w, h)
}
