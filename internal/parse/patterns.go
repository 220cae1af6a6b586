package parse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Pattern-strength confidences. An exact two-decimal price is a much stronger
// signal than a symbol-prefixed integer.
const (
	priceConfStrong = 1.0
	priceConfWeak   = 0.6

	dateConfISO     = 0.95
	dateConfNumeric = 0.6
)

var (
	// priceCandidateRe over-matches on purpose; findPrices validates the
	// surrounding characters because re2 has no lookaround.
	priceCandidateRe = regexp.MustCompile(`[$€£]?\s?\d{1,6}(?:[.,]\d{1,2})?`)

	quantityRe = regexp.MustCompile(`^\s*(\d{1,3})\s*[xX]\s+`)

	isoDateRe     = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	numericDateRe = regexp.MustCompile(`\b\d{1,2}[/.]\d{1,2}[/.]\d{2,4}\b`)

	fractionRe = regexp.MustCompile(`[.,](\d{1,2})$`)
)

// numericDateLayouts are tried in order; month-day-year wins ties with
// day-month-year, matching the receipts this runs against.
var numericDateLayouts = []struct {
	layout string
	name   string
}{
	{"1/2/2006", "month-day-year"},
	{"1/2/06", "month-day-year"},
	{"2/1/2006", "day-month-year"},
	{"2/1/06", "day-month-year"},
	{"1.2.2006", "month-day-year"},
	{"2.1.2006", "day-month-year"},
}

// priceMatch is one currency amount found on a line.
type priceMatch struct {
	cents      int64
	confidence float64
	start, end int
}

// findPrices returns every currency amount on the line in order of
// appearance. A match needs either exactly two fraction digits or an explicit
// currency symbol; bare integers are not prices.
func findPrices(line string) []priceMatch {
	var out []priceMatch
	for _, loc := range priceCandidateRe.FindAllStringIndex(line, -1) {
		start, end := loc[0], loc[1]
		token := line[start:end]
		// The candidate may begin with its optional whitespace; the boundary
		// check belongs in front of the symbol or first digit.
		numStart := start + (len(token) - len(strings.TrimLeft(token, " \t")))
		if numStart > 0 && isPriceBoundaryRune(rune(line[numStart-1])) {
			continue
		}
		if end < len(line) && unicode.IsDigit(rune(line[end])) {
			continue
		}
		m, ok := parsePriceToken(token)
		if !ok {
			continue
		}
		m.start, m.end = start, end
		out = append(out, m)
	}
	return out
}

// isPriceBoundaryRune rejects candidates glued onto a longer number, such as
// the tail of a phone number or barcode.
func isPriceBoundaryRune(r rune) bool {
	return unicode.IsDigit(r) || r == '.' || r == ',' || r == '-'
}

// parsePriceToken converts a candidate token to cents with a
// pattern-strength confidence.
func parsePriceToken(token string) (priceMatch, bool) {
	trimmed := strings.TrimSpace(token)
	hasSymbol := false
	if len(trimmed) > 0 {
		switch []rune(trimmed)[0] {
		case '$', '€', '£':
			hasSymbol = true
			trimmed = strings.TrimSpace(string([]rune(trimmed)[1:]))
		}
	}
	if trimmed == "" {
		return priceMatch{}, false
	}

	whole := trimmed
	var fraction string
	if m := fractionRe.FindStringSubmatch(trimmed); m != nil {
		fraction = m[1]
		whole = trimmed[:len(trimmed)-len(m[0])]
	}

	switch {
	case len(fraction) == 2:
		// Exact two-decimal amount, with or without a symbol.
	case hasSymbol:
		// Symbol-prefixed without two decimals is accepted at reduced
		// confidence.
	default:
		return priceMatch{}, false
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return priceMatch{}, false
	}
	cents := units * 100
	if fraction != "" {
		f, err := strconv.ParseInt(fraction, 10, 64)
		if err != nil {
			return priceMatch{}, false
		}
		if len(fraction) == 1 {
			f *= 10
		}
		cents += f
	}

	conf := priceConfWeak
	if len(fraction) == 2 {
		conf = priceConfStrong
	}
	return priceMatch{cents: cents, confidence: conf}, true
}

// extractQuantity strips a leading "<n> x" token. Absence defaults to 1 with
// no confidence penalty; one is the common case, not a guess.
func extractQuantity(line string) (int, string) {
	m := quantityRe.FindStringSubmatch(line)
	if m == nil {
		return 1, line
	}
	qty, err := strconv.Atoi(m[1])
	if err != nil || qty < 1 {
		return 1, line
	}
	return qty, strings.TrimSpace(line[len(m[0]):])
}

// findDate looks for a date token. ISO dates outrank ambiguous numeric ones.
func findDate(line string) (date string, format string, confidence float64, ok bool) {
	if m := isoDateRe.FindString(line); m != "" {
		if d, err := time.Parse("2006-01-02", m); err == nil {
			return d.Format("2006-01-02"), "iso", dateConfISO, true
		}
	}
	if m := numericDateRe.FindString(line); m != "" {
		// Normalize the separator so one layout list covers both.
		norm := strings.ReplaceAll(m, ".", "/")
		for _, l := range numericDateLayouts {
			layout := strings.ReplaceAll(l.layout, ".", "/")
			if d, err := time.Parse(layout, norm); err == nil {
				return d.Format("2006-01-02"), l.name, dateConfNumeric, true
			}
		}
	}
	return "", "", 0, false
}

// lineKind classifies a receipt line.
type lineKind int

const (
	kindUnknown lineKind = iota
	kindSubtotal
	kindTax
	kindTotal
	kindTender
	kindBarcode
)

// keywordRoutes map normalized keywords to the metadata line kind. Order
// matters: "subtotal" and "grand total" must be checked before plain
// "total".
var keywordRoutes = []struct {
	keyword string
	kind    lineKind
}{
	{"subtotal", kindSubtotal},
	{"sub total", kindSubtotal},
	{"grand total", kindTotal},
	{"amount due", kindTotal},
	{"balance due", kindTotal},
	{"total", kindTotal},
	{"sales tax", kindTax},
	{"tax", kindTax},
	{"vat", kindTax},
	{"hst", kindTax},
	{"gst", kindTax},
	{"tender", kindTender},
	{"cash", kindTender},
	{"change", kindTender},
	{"credit", kindTender},
	{"debit", kindTender},
	{"visa", kindTender},
	{"mastercard", kindTender},
	{"amex", kindTender},
	{"payment", kindTender},
}

// classifyLine routes known non-item lines. Keywords match regardless of case
// and surrounding punctuation.
func classifyLine(line string) lineKind {
	norm := normalizeKeywords(line)
	if norm == "" {
		return kindUnknown
	}
	if !strings.ContainsFunc(norm, unicode.IsLetter) {
		return kindBarcode
	}
	for _, route := range keywordRoutes {
		if route.kind == kindTax || route.kind == kindTender {
			// Short keywords only count as whole words; "taxi" is an item.
			if containsWord(norm, route.keyword) {
				return route.kind
			}
			continue
		}
		if strings.Contains(norm, route.keyword) {
			return route.kind
		}
	}
	return kindUnknown
}

// normalizeKeywords lowercases and strips punctuation so "SUB-TOTAL:" matches
// "subtotal".
func normalizeKeywords(line string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(line) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || r == '\t':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func containsWord(norm, word string) bool {
	for _, f := range strings.Fields(norm) {
		if f == word {
			return true
		}
	}
	return false
}

// namePlausibility scores how much a string looks like an item description.
// Pure function: repeated scoring of the same name yields the same score.
func namePlausibility(name string) float64 {
	trimmed := strings.TrimSpace(name)
	if len([]rune(trimmed)) < 2 {
		return 0.2
	}
	if !strings.ContainsFunc(trimmed, unicode.IsLetter) {
		return 0.3
	}
	return 1.0
}
