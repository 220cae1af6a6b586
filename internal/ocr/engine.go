package ocr

import (
	"context"
	"errors"
	"fmt"
)

// ErrEngine indicates a recognition engine failure: initialization, crash, or
// timeout. Callers may retry once with an alternate page segmentation mode.
var ErrEngine = errors.New("ocr engine failure")

// PageSegMode describes the assumed text layout on the page.
type PageSegMode int

const (
	// PSMSingleColumn assumes a single column of variable-width text. The
	// default for receipts.
	PSMSingleColumn PageSegMode = iota
	// PSMUniformBlock assumes one uniform block of text.
	PSMUniformBlock
	// PSMRawLine treats the image as one raw text line.
	PSMRawLine
	// PSMAuto lets the engine segment the page itself.
	PSMAuto
)

// ParsePageSegMode maps a mode name to its value.
func ParsePageSegMode(name string) (PageSegMode, error) {
	switch name {
	case "single-column":
		return PSMSingleColumn, nil
	case "uniform-block":
		return PSMUniformBlock, nil
	case "raw-line":
		return PSMRawLine, nil
	case "auto":
		return PSMAuto, nil
	default:
		return 0, fmt.Errorf("unknown page segmentation mode %q", name)
	}
}

func (m PageSegMode) String() string {
	switch m {
	case PSMSingleColumn:
		return "single-column"
	case PSMUniformBlock:
		return "uniform-block"
	case PSMRawLine:
		return "raw-line"
	case PSMAuto:
		return "auto"
	default:
		return fmt.Sprintf("psm(%d)", int(m))
	}
}

// EngineMode selects the recognition model family.
type EngineMode int

const (
	// EngineModeDefault leaves the engine's own default in place.
	EngineModeDefault EngineMode = iota
	// EngineModeLegacy uses the classic recognizer only.
	EngineModeLegacy
	// EngineModeNeural uses the neural (LSTM) recognizer only.
	EngineModeNeural
	// EngineModeCombined runs both recognizers.
	EngineModeCombined
)

func (m EngineMode) String() string {
	switch m {
	case EngineModeDefault:
		return "default"
	case EngineModeLegacy:
		return "legacy"
	case EngineModeNeural:
		return "neural"
	case EngineModeCombined:
		return "combined"
	default:
		return fmt.Sprintf("oem(%d)", int(m))
	}
}

// Request is a single recognition invocation: an encoded image buffer plus
// the engine knobs used to produce the result.
type Request struct {
	// Image is the encoded (preprocessed) image payload.
	Image []byte
	// ContentType declares the image encoding, e.g. image/png.
	ContentType string
	// Language is a trained-data hint such as "eng".
	Language    string
	PageSegMode PageSegMode
	EngineMode  EngineMode
}

// Token is a single recognized word with its confidence in [0,1].
type Token struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Line is an ordered sequence of tokens sharing a baseline. Confidence is
// probability-like in [0,1] regardless of which engine produced it.
type Line struct {
	Text       string  `json:"text"`
	Tokens     []Token `json:"tokens"`
	Confidence float64 `json:"confidence"`
}

// Result is normalized recognition output. Confidence is the engine's overall
// estimate scaled to [0,1]; different backends report on different scales and
// the adapter boundary is where that difference ends.
type Result struct {
	Lines       []Line      `json:"lines"`
	Confidence  float64     `json:"confidence"`
	PageSegMode PageSegMode `json:"-"`
	EngineMode  EngineMode  `json:"-"`
}

// Text returns the recognized lines joined with newlines.
func (r Result) Text() string {
	out := ""
	for i, ln := range r.Lines {
		if i > 0 {
			out += "\n"
		}
		out += ln.Text
	}
	return out
}

// Engine is the recognition provider contract. Implementations perform no
// internal retries; retry and mode-selection policy belongs to the caller. A
// context deadline aborts the invocation with ErrEngine wrapping the context
// error.
type Engine interface {
	// Name identifies the provider.
	Name() string
	// Recognize runs OCR over one image.
	Recognize(ctx context.Context, req Request) (Result, error)
	// Close releases engine resources.
	Close() error
}

// clampConfidence forces a value into [0,1].
func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
