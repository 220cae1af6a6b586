package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"github.com/disintegration/imaging"
)

// RawImage is an encoded upload plus its declared MIME type. The buffer is
// never mutated; every pipeline run produces a new buffer.
type RawImage struct {
	Data        []byte
	ContentType string
}

// ProcessedImage is an OCR-ready buffer. ContentType is image/png unless the
// input passed through untouched.
type ProcessedImage struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

// sharpenSigma bounds the unsharp-mask gain. Anything stronger visibly
// damages thin thermal-printer glyph strokes.
const sharpenSigma = 0.8

// Process runs the configured transform sequence over a raw image. Identical
// input bytes and configuration always yield identical output bytes. The
// configuration is validated up front; an undecodable buffer returns
// ErrInvalidImage.
func Process(img RawImage, cfg Config) (ProcessedImage, error) {
	if err := cfg.Validate(); err != nil {
		return ProcessedImage{}, err
	}

	decoded, err := decodeInput(img.Data, img.ContentType)
	if err != nil {
		return ProcessedImage{}, err
	}

	if cfg.isNoop() && passthroughFormat(img.Data, img.ContentType) {
		bounds := decoded.Bounds()
		out := make([]byte, len(img.Data))
		copy(out, img.Data)
		return ProcessedImage{
			Data:        out,
			ContentType: img.ContentType,
			Width:       bounds.Dx(),
			Height:      bounds.Dy(),
		}, nil
	}

	var current image.Image = decoded
	if cfg.Grayscale {
		current = imaging.Grayscale(current)
	}
	if cfg.Resize.ThresholdPx > 0 {
		current = downscale(current, cfg.Resize)
	}
	if cfg.Contrast == ContrastLinearStretch {
		current = stretchContrast(current)
	}
	if cfg.Denoise {
		current = medianFilter(current)
	}
	if cfg.Sharpen {
		current = imaging.Sharpen(current, sharpenSigma)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, current); err != nil {
		return ProcessedImage{}, fmt.Errorf("encoding PNG: %w", err)
	}
	bounds := current.Bounds()
	return ProcessedImage{
		Data:        buf.Bytes(),
		ContentType: "image/png",
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
	}, nil
}

// downscale shrinks images whose longer edge exceeds the threshold. Lanczos
// keeps glyph edges crisp; below the threshold the image passes through
// unchanged and upscaling never happens.
func downscale(img image.Image, cfg ResizeConfig) image.Image {
	bounds := img.Bounds()
	longer := bounds.Dx()
	if bounds.Dy() > longer {
		longer = bounds.Dy()
	}
	if longer <= cfg.ThresholdPx {
		return img
	}
	width := int(float64(bounds.Dx()) * cfg.ScaleFactor)
	height := int(float64(bounds.Dy()) * cfg.ScaleFactor)
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return imaging.Resize(img, width, height, imaging.Lanczos)
}

// stretchContrast remaps the intensity histogram linearly to the full [0,255]
// range. The pipeline runs this at most once: contrast is a single stage
// selected by ContrastMode, not a pair of independently toggled steps.
func stretchContrast(img image.Image) image.Image {
	src := imaging.Clone(img)

	lo, hi := uint8(255), uint8(0)
	for i := 0; i < len(src.Pix); i += 4 {
		// Grayscale ran first, so the red channel is the intensity.
		v := src.Pix[i]
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi <= lo {
		return src
	}

	scale := 255.0 / float64(hi-lo)
	return imaging.AdjustFunc(src, func(c color.NRGBA) color.NRGBA {
		f := math.Round(float64(c.R-lo) * scale)
		if f > 255 {
			f = 255
		}
		v := uint8(f)
		return color.NRGBA{R: v, G: v, B: v, A: c.A}
	})
}

// medianFilter applies a conservative 3x3 median over the intensity channel.
// The imaging package offers gaussian blur only, which smears strokes worse
// than a median does, so this is done directly on the pixel buffer.
func medianFilter(img image.Image) image.Image {
	src := imaging.Clone(img)
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	dst := imaging.Clone(src)

	var window [9]uint8
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			n := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					window[n] = src.Pix[(ny*w+nx)*4]
					n++
				}
			}
			m := medianOf(window[:n])
			off := (y*w + x) * 4
			dst.Pix[off] = m
			dst.Pix[off+1] = m
			dst.Pix[off+2] = m
		}
	}
	return dst
}

// medianOf returns the median of a small window via insertion sort.
func medianOf(vals []uint8) uint8 {
	for i := 1; i < len(vals); i++ {
		for j := i; j > 0 && vals[j] < vals[j-1]; j-- {
			vals[j], vals[j-1] = vals[j-1], vals[j]
		}
	}
	return vals[len(vals)/2]
}
