package ocr

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract is an Engine backed by the gosseract client. A fresh client is
// created per invocation; pooling of concurrent invocations happens in Pool.
type Tesseract struct {
	language      string
	clientFactory func() *gosseract.Client
}

// NewTesseract constructs a Tesseract-backed engine. language defaults to
// "eng".
func NewTesseract(language string) *Tesseract {
	if language == "" {
		language = "eng"
	}
	return &Tesseract{
		language:      language,
		clientFactory: gosseract.NewClient,
	}
}

func (t *Tesseract) Name() string { return "tesseract" }

// Close releases engine resources. Clients are per-invocation, so there is
// nothing held between calls.
func (t *Tesseract) Close() error { return nil }

// Recognize runs Tesseract over the request image. The gosseract calls are
// not interruptible, so the work runs in a goroutine and a context deadline
// abandons it; the goroutine finishes and cleans up on its own.
func (t *Tesseract) Recognize(ctx context.Context, req Request) (Result, error) {
	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		res, err := t.recognize(req)
		done <- outcome{res: res, err: err}
	}()

	select {
	case <-ctx.Done():
		return Result{}, fmt.Errorf("%w: %v", ErrEngine, ctx.Err())
	case out := <-done:
		if out.err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrEngine, out.err)
		}
		return out.res, nil
	}
}

func (t *Tesseract) recognize(req Request) (Result, error) {
	c := t.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(req.Image); err != nil {
		return Result{}, fmt.Errorf("set image: %w", err)
	}
	lang := req.Language
	if lang == "" {
		lang = t.language
	}
	if err := c.SetLanguage(lang); err != nil {
		return Result{}, fmt.Errorf("set language: %w", err)
	}
	if err := c.SetPageSegMode(gosseractPSM(req.PageSegMode)); err != nil {
		return Result{}, fmt.Errorf("set page segmentation mode: %w", err)
	}
	if req.EngineMode != EngineModeDefault {
		// gosseract exposes no init-time OEM knob; the runtime variable is
		// honored by most builds and harmlessly rejected by the rest.
		_ = c.SetVariable("tessedit_ocr_engine_mode", strconv.Itoa(gosseractOEM(req.EngineMode)))
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return Result{}, fmt.Errorf("get text lines: %w", err)
	}
	if len(boxes) == 0 {
		// Some images recognize to nothing; fall back to plain text so a
		// non-empty result is not lost, with zero confidence.
		text, err := c.Text()
		if err != nil {
			return Result{}, fmt.Errorf("recognize text: %w", err)
		}
		return resultFromText(text, 0, req), nil
	}

	lines := make([]Line, 0, len(boxes))
	var sum float64
	for _, b := range boxes {
		conf := clampConfidence(b.Confidence / 100.0)
		sum += conf
		text := strings.TrimSpace(b.Word)
		tokens := make([]Token, 0)
		for _, word := range strings.Fields(text) {
			tokens = append(tokens, Token{Text: word, Confidence: conf})
		}
		lines = append(lines, Line{Text: text, Tokens: tokens, Confidence: conf})
	}

	return Result{
		Lines:       lines,
		Confidence:  sum / float64(len(boxes)),
		PageSegMode: req.PageSegMode,
		EngineMode:  req.EngineMode,
	}, nil
}

// resultFromText splits plain engine output into lines carrying a uniform
// confidence.
func resultFromText(text string, confidence float64, req Request) Result {
	var lines []Line
	for _, raw := range strings.Split(text, "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		tokens := make([]Token, 0)
		for _, word := range strings.Fields(raw) {
			tokens = append(tokens, Token{Text: word, Confidence: confidence})
		}
		lines = append(lines, Line{Text: raw, Tokens: tokens, Confidence: confidence})
	}
	return Result{
		Lines:       lines,
		Confidence:  confidence,
		PageSegMode: req.PageSegMode,
		EngineMode:  req.EngineMode,
	}
}

func gosseractPSM(mode PageSegMode) gosseract.PageSegMode {
	switch mode {
	case PSMUniformBlock:
		return gosseract.PSM_SINGLE_BLOCK
	case PSMRawLine:
		return gosseract.PSM_RAW_LINE
	case PSMAuto:
		return gosseract.PSM_AUTO
	default:
		return gosseract.PSM_SINGLE_COLUMN
	}
}

// gosseractOEM maps EngineMode onto Tesseract's OEM enumeration.
func gosseractOEM(mode EngineMode) int {
	switch mode {
	case EngineModeLegacy:
		return 0
	case EngineModeNeural:
		return 1
	case EngineModeCombined:
		return 2
	default:
		return 3
	}
}
