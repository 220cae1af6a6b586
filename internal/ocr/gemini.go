package ocr

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// geminiTranscribePrompt asks for a verbatim transcription so the downstream
// parser sees the same line-oriented text a local OCR engine would produce.
const geminiTranscribePrompt = `Transcribe ALL text visible in this receipt image, exactly as printed.

Rules:
- One output line per printed line, top to bottom.
- Preserve spacing between item names and prices where possible.
- Do not summarize, translate, or reorder anything.
- Do not add commentary, labels, or markdown. Output the raw text only.`

// geminiConfidenceCeiling caps the heuristic confidence assigned to Gemini
// output. The API reports no token-level confidence, so the adapter derives a
// probability-like value from the shape of the transcription and never claims
// more certainty than this.
const geminiConfidenceCeiling = 0.85

// Gemini is an Engine backed by the Gemini vision API. It ignores
// PageSegMode and EngineMode; the model segments the page itself.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini constructs a Gemini-backed engine.
func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  client.GenerativeModel(modelName),
	}, nil
}

func (g *Gemini) Name() string { return "gemini" }

// Close closes the underlying API client.
func (g *Gemini) Close() error { return g.client.Close() }

// Recognize transcribes the receipt image. The caller-supplied context
// bounds the API call.
func (g *Gemini) Recognize(ctx context.Context, req Request) (Result, error) {
	format := "png"
	if strings.Contains(req.ContentType, "jpeg") {
		format = "jpeg"
	}
	parts := []genai.Part{
		genai.ImageData(format, req.Image),
		genai.Text(geminiTranscribePrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return Result{}, fmt.Errorf("%w: generating transcription: %v", ErrEngine, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return Result{}, fmt.Errorf("%w: empty response from gemini", ErrEngine)
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	res := resultFromText(stripCodeFences(text.String()), 0, req)
	conf := transcriptionConfidence(res.Lines)
	res.Confidence = conf
	for i := range res.Lines {
		res.Lines[i].Confidence = conf
		for j := range res.Lines[i].Tokens {
			res.Lines[i].Tokens[j].Confidence = conf
		}
	}
	return res, nil
}

// stripCodeFences removes markdown fences some models wrap output in.
func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```text")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// transcriptionConfidence estimates a probability-like confidence for a
// transcription with no engine-reported score: the fraction of lines that
// contain printable letters or digits, capped at the documented ceiling.
func transcriptionConfidence(lines []Line) float64 {
	if len(lines) == 0 {
		return 0
	}
	readable := 0
	for _, ln := range lines {
		if strings.ContainsFunc(ln.Text, func(r rune) bool {
			return unicode.IsLetter(r) || unicode.IsDigit(r)
		}) {
			readable++
		}
	}
	return geminiConfidenceCeiling * float64(readable) / float64(len(lines))
}
