package preprocess

import (
	"errors"
	"fmt"
)

// ErrConfigInvalid indicates a preprocessing configuration that cannot be
// executed. It is returned before any image work begins.
var ErrConfigInvalid = errors.New("invalid preprocess config")

// Preset is a named, fully resolved preprocessing configuration.
type Preset int

const (
	// PresetRaw performs no operations at all.
	PresetRaw Preset = iota
	// PresetMinimal converts to grayscale and conditionally downscales.
	// This is the default: receipts photographed on phones OCR better with
	// less manipulation, not more.
	PresetMinimal
	// PresetStandard adds a single linear contrast stretch to minimal.
	PresetStandard
	// PresetAggressive enables every supported operation. Explicit opt-in
	// only; on typical thermal or inkjet receipts this tends to reduce OCR
	// accuracy rather than improve it.
	PresetAggressive
)

// ContrastMode selects the contrast adjustment method. Contrast is a single
// pipeline stage parameterized by method, so it can never run twice under
// different names.
type ContrastMode int

const (
	// ContrastNone leaves intensity values untouched.
	ContrastNone ContrastMode = iota
	// ContrastLinearStretch remaps the intensity histogram to the full
	// [0,255] range in one pass.
	ContrastLinearStretch
	// ContrastAdaptive is reserved for true adaptive histogram
	// equalization. Not implemented; Validate rejects it.
	ContrastAdaptive
)

// ResizeConfig bounds image dimensions before OCR. Downscale only; upscaling
// is never performed.
type ResizeConfig struct {
	// ThresholdPx is the longer-edge size above which the image is scaled
	// down. Zero disables resizing.
	ThresholdPx int
	// ScaleFactor is applied when the threshold is exceeded. Must be in
	// (0, 1].
	ScaleFactor float64
}

// Config is a fully determined set of preprocessing flags. It is resolved
// once, before the pipeline runs; no stage may override another stage's
// settings.
type Config struct {
	Grayscale bool
	Resize    ResizeConfig
	Contrast  ContrastMode
	Denoise   bool
	Sharpen   bool
	Deskew    bool
}

const (
	defaultResizeThresholdPx = 2000
	defaultResizeScaleFactor = 0.5
)

func defaultResize() ResizeConfig {
	return ResizeConfig{ThresholdPx: defaultResizeThresholdPx, ScaleFactor: defaultResizeScaleFactor}
}

// ParsePreset maps a preset name to its Preset value. Unknown names are an
// error, never an alias for another preset.
func ParsePreset(name string) (Preset, error) {
	switch name {
	case "raw":
		return PresetRaw, nil
	case "minimal":
		return PresetMinimal, nil
	case "standard":
		return PresetStandard, nil
	case "aggressive":
		return PresetAggressive, nil
	default:
		return 0, fmt.Errorf("%w: unknown preset %q", ErrConfigInvalid, name)
	}
}

// String returns the preset name.
func (p Preset) String() string {
	switch p {
	case PresetRaw:
		return "raw"
	case PresetMinimal:
		return "minimal"
	case PresetStandard:
		return "standard"
	case PresetAggressive:
		return "aggressive"
	default:
		return fmt.Sprintf("preset(%d)", int(p))
	}
}

// Config resolves the preset to its flag set. The mapping is total and
// exhaustive: every preset has its own explicit branch and an out-of-range
// value errors instead of falling through to some other preset's flags.
func (p Preset) Config() (Config, error) {
	switch p {
	case PresetRaw:
		return Config{}, nil
	case PresetMinimal:
		return Config{
			Grayscale: true,
			Resize:    defaultResize(),
		}, nil
	case PresetStandard:
		return Config{
			Grayscale: true,
			Resize:    defaultResize(),
			Contrast:  ContrastLinearStretch,
		}, nil
	case PresetAggressive:
		// Deskew stays off: it is unsupported (see Validate) and enabling
		// it here would make the preset unusable.
		return Config{
			Grayscale: true,
			Resize:    defaultResize(),
			Contrast:  ContrastLinearStretch,
			Denoise:   true,
			Sharpen:   true,
		}, nil
	default:
		return Config{}, fmt.Errorf("%w: unknown preset %d", ErrConfigInvalid, int(p))
	}
}

// Validate reports whether the configuration is executable. It fails fast so
// misconfiguration never wastes an OCR invocation.
func (c Config) Validate() error {
	if c.Resize.ThresholdPx < 0 {
		return fmt.Errorf("%w: resize threshold %d is negative", ErrConfigInvalid, c.Resize.ThresholdPx)
	}
	if c.Resize.ThresholdPx > 0 && (c.Resize.ScaleFactor <= 0 || c.Resize.ScaleFactor > 1) {
		return fmt.Errorf("%w: resize scale factor %v outside (0,1]", ErrConfigInvalid, c.Resize.ScaleFactor)
	}
	switch c.Contrast {
	case ContrastNone, ContrastLinearStretch:
	case ContrastAdaptive:
		return fmt.Errorf("%w: adaptive contrast equalization is not implemented", ErrConfigInvalid)
	default:
		return fmt.Errorf("%w: unknown contrast mode %d", ErrConfigInvalid, int(c.Contrast))
	}
	if c.Deskew {
		return fmt.Errorf("%w: deskew is not supported", ErrConfigInvalid)
	}
	if !c.Grayscale && (c.Contrast != ContrastNone || c.Denoise || c.Sharpen) {
		return fmt.Errorf("%w: grayscale must be enabled when any other transform runs", ErrConfigInvalid)
	}
	return nil
}

// isNoop reports whether the configuration performs no transforms.
func (c Config) isNoop() bool {
	return !c.Grayscale && c.Resize.ThresholdPx == 0 && c.Contrast == ContrastNone &&
		!c.Denoise && !c.Sharpen && !c.Deskew
}
