package parse

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/mwynn/tillscan/internal/ocr"
)

// ErrConfigInvalid indicates parser or policy configuration that fails
// validation. Returned at construction time, before any OCR spend.
var ErrConfigInvalid = errors.New("invalid parse config")

// maxNameLength bounds candidate item names after trimming.
const maxNameLength = 200

// Weights compose the per-item confidence from its sub-signals. They are
// configuration so callers can retune without code changes.
type Weights struct {
	// OCR weighs the engine's line-level confidence.
	OCR float64
	// Pattern weighs the price pattern-match strength.
	Pattern float64
	// Name weighs the name plausibility score.
	Name float64
}

// Config tunes the parser.
type Config struct {
	Weights Weights
	// MerchantScanLines is how many leading lines are searched for a
	// merchant name.
	MerchantScanLines int
}

// DefaultConfig returns the stock parser tuning.
func DefaultConfig() Config {
	return Config{
		Weights:           Weights{OCR: 0.5, Pattern: 0.3, Name: 0.2},
		MerchantScanLines: 5,
	}
}

// Validate fails fast on unusable tuning.
func (c Config) Validate() error {
	w := c.Weights
	if w.OCR < 0 || w.Pattern < 0 || w.Name < 0 {
		return fmt.Errorf("%w: negative confidence weight", ErrConfigInvalid)
	}
	if w.OCR+w.Pattern+w.Name <= 0 {
		return fmt.Errorf("%w: confidence weights sum to zero", ErrConfigInvalid)
	}
	if c.MerchantScanLines < 1 {
		return fmt.Errorf("%w: merchant scan lines must be at least 1, got %d", ErrConfigInvalid, c.MerchantScanLines)
	}
	return nil
}

// Parser converts recognized text lines into a ReceiptDocument.
type Parser struct {
	cfg Config
}

// NewParser validates the configuration and returns a parser.
func NewParser(cfg Config) (*Parser, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Parser{cfg: cfg}, nil
}

// Parse runs a single forward pass over the OCR lines. It never fails on
// content: unparseable text degrades to an empty or partial document with low
// confidence. Document-level confidence is left to the acceptance policy.
func (p *Parser) Parse(res ocr.Result) ReceiptDocument {
	doc := ReceiptDocument{Items: []CandidateItem{}}

	for i, line := range res.Lines {
		text := strings.TrimSpace(line.Text)
		if text == "" {
			continue
		}
		doc.LinesTotal++

		p.scanDate(&doc, text)

		if p.scanMerchant(&doc, doc.LinesTotal, text) {
			doc.LinesClassified++
			continue
		}

		switch classifyLine(text) {
		case kindSubtotal:
			doc.LinesClassified++
			setAmountFromLine(&doc.Subtotal, text)
			continue
		case kindTax:
			doc.LinesClassified++
			setAmountFromLine(&doc.Tax, text)
			continue
		case kindTotal:
			doc.LinesClassified++
			setAmountFromLine(&doc.Total, text)
			continue
		case kindTender, kindBarcode:
			doc.LinesClassified++
			continue
		}

		if item, ok := p.itemFromLine(text, i, line.Confidence); ok {
			doc.LinesClassified++
			doc.Items = append(doc.Items, item)
		}
	}

	p.reconcileTotals(&doc)
	return doc
}

// scanDate keeps the most specific date found anywhere in the document.
func (p *Parser) scanDate(doc *ReceiptDocument, text string) {
	date, format, conf, ok := findDate(text)
	if !ok || conf <= doc.DateConfidence {
		return
	}
	doc.PurchaseDate = date
	doc.DateFormat = format
	doc.DateConfidence = conf
}

// scanMerchant takes the first leading line that has letters and is neither a
// price, a date, nor a known metadata keyword. lineNo is one-based over
// non-empty lines.
func (p *Parser) scanMerchant(doc *ReceiptDocument, lineNo int, text string) bool {
	if doc.MerchantName != "" || lineNo > p.cfg.MerchantScanLines {
		return false
	}
	if !strings.ContainsFunc(text, unicode.IsLetter) {
		return false
	}
	if len(findPrices(text)) > 0 {
		return false
	}
	if _, _, _, isDate := findDate(text); isDate {
		return false
	}
	if classifyLine(text) != kindUnknown {
		return false
	}
	doc.MerchantName = trimName(text)
	if lineNo == 1 {
		doc.MerchantConfidence = 0.8
	} else {
		doc.MerchantConfidence = 0.6
	}
	return true
}

// setAmountFromLine stores the rightmost price on a metadata line, keeping an
// existing value unless the new match is stronger. Receipts place the
// authoritative amount rightmost.
func setAmountFromLine(dst **Amount, text string) {
	prices := findPrices(text)
	if len(prices) == 0 {
		return
	}
	last := prices[len(prices)-1]
	if *dst != nil && (*dst).Confidence >= last.confidence {
		return
	}
	*dst = &Amount{Cents: last.cents, Confidence: last.confidence}
}

// itemFromLine builds a candidate item when the line carries at least one
// price and a non-empty name after quantity and price tokens are stripped.
func (p *Parser) itemFromLine(text string, sourceIndex int, lineConfidence float64) (CandidateItem, bool) {
	qty, rest := extractQuantity(text)
	prices := findPrices(rest)
	if len(prices) == 0 {
		return CandidateItem{}, false
	}

	name := trimName(stripSpans(rest, prices))
	if name == "" {
		return CandidateItem{}, false
	}

	last := prices[len(prices)-1]
	item := CandidateItem{
		Name:            name,
		Quantity:        qty,
		LineTotal:       &Amount{Cents: last.cents, Confidence: last.confidence},
		SourceLineIndex: sourceIndex,
	}
	if len(prices) > 1 {
		first := prices[0]
		item.UnitPrice = &Amount{Cents: first.cents, Confidence: first.confidence}
	}

	w := p.cfg.Weights
	item.Confidence = clamp01((w.OCR*lineConfidence + w.Pattern*last.confidence + w.Name*namePlausibility(name)) /
		(w.OCR + w.Pattern + w.Name))
	return item, true
}

// reconcileTotals checks subtotal + tax against total within an absolute
// tolerance of one cent per item. Best effort: a mismatch sets a soft flag
// and a warning, never an error.
func (p *Parser) reconcileTotals(doc *ReceiptDocument) {
	if doc.Subtotal == nil || doc.Tax == nil || doc.Total == nil {
		return
	}
	tolerance := int64(len(doc.Items))
	if tolerance < 1 {
		tolerance = 1
	}
	diff := doc.Subtotal.Cents + doc.Tax.Cents - doc.Total.Cents
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		doc.TotalsMismatch = true
		doc.Warnings = append(doc.Warnings, fmt.Sprintf(
			"subtotal %d + tax %d does not reconcile with total %d (off by %d cents)",
			doc.Subtotal.Cents, doc.Tax.Cents, doc.Total.Cents, diff))
	}
}

// stripSpans removes the matched price spans from the line.
func stripSpans(text string, prices []priceMatch) string {
	var b strings.Builder
	prev := 0
	for _, m := range prices {
		if m.start > prev {
			b.WriteString(text[prev:m.start])
		}
		b.WriteString(" ")
		prev = m.end
	}
	if prev < len(text) {
		b.WriteString(text[prev:])
	}
	return b.String()
}

// trimName cleans residual separators left behind by token stripping and
// bounds the length.
func trimName(text string) string {
	name := strings.TrimFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || r == '-' || r == ':' || r == '*' || r == '.' || r == ','
	})
	name = strings.Join(strings.Fields(name), " ")
	runes := []rune(name)
	if len(runes) > maxNameLength {
		name = string(runes[:maxNameLength])
	}
	return name
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
