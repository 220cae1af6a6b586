package parse

import "fmt"

// PolicyConfig tunes the acceptance policy. Defaults follow the shipped
// review UI: an incorrect price is more harmful downstream than an incorrect
// name, so the price threshold is stricter.
type PolicyConfig struct {
	// EngineWeight, CoverageWeight, and ItemWeight compose the document
	// confidence from the engine confidence, the classified-line fraction,
	// and the mean per-item confidence.
	EngineWeight   float64
	CoverageWeight float64
	ItemWeight     float64

	// MinItemConfidence gates an item into the default-visible set.
	MinItemConfidence float64
	// MinPriceConfidence additionally gates on the price field's own
	// pattern confidence.
	MinPriceConfidence float64

	// ReconcilePenalty is subtracted from the document confidence when the
	// totals fail to reconcile.
	ReconcilePenalty float64
}

// DefaultPolicyConfig returns the stock policy tuning.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		EngineWeight:       0.4,
		CoverageWeight:     0.3,
		ItemWeight:         0.3,
		MinItemConfidence:  0.6,
		MinPriceConfidence: 0.7,
		ReconcilePenalty:   0.15,
	}
}

// Validate fails fast on out-of-range tuning.
func (c PolicyConfig) Validate() error {
	if c.EngineWeight < 0 || c.CoverageWeight < 0 || c.ItemWeight < 0 {
		return fmt.Errorf("%w: negative policy weight", ErrConfigInvalid)
	}
	if c.EngineWeight+c.CoverageWeight+c.ItemWeight <= 0 {
		return fmt.Errorf("%w: policy weights sum to zero", ErrConfigInvalid)
	}
	for name, v := range map[string]float64{
		"min item confidence":  c.MinItemConfidence,
		"min price confidence": c.MinPriceConfidence,
		"reconcile penalty":    c.ReconcilePenalty,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s %v outside [0,1]", ErrConfigInvalid, name, v)
		}
	}
	return nil
}

// Policy combines OCR-level and parser-level signals into per-item acceptance
// decisions and the document-level confidence.
type Policy struct {
	cfg PolicyConfig
}

// NewPolicy validates the configuration and returns a policy.
func NewPolicy(cfg PolicyConfig) (*Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Policy{cfg: cfg}, nil
}

// Apply computes the document confidence and marks each item's Accepted flag.
// Items below threshold stay in the document; filtering happens at
// presentation.
func (p *Policy) Apply(engineConfidence float64, doc *ReceiptDocument) {
	for i := range doc.Items {
		doc.Items[i].Accepted = p.accept(doc.Items[i])
	}

	coverage := 0.0
	if doc.LinesTotal > 0 {
		coverage = float64(doc.LinesClassified) / float64(doc.LinesTotal)
	}
	meanItem := 0.0
	if len(doc.Items) > 0 {
		var sum float64
		for _, it := range doc.Items {
			sum += it.Confidence
		}
		meanItem = sum / float64(len(doc.Items))
	}

	c := p.cfg
	conf := (c.EngineWeight*engineConfidence + c.CoverageWeight*coverage + c.ItemWeight*meanItem) /
		(c.EngineWeight + c.CoverageWeight + c.ItemWeight)
	if doc.TotalsMismatch {
		conf -= c.ReconcilePenalty
	}
	doc.Confidence = clamp01(conf)
}

// accept requires both the composed item confidence and the price field's own
// confidence to clear their thresholds.
func (p *Policy) accept(item CandidateItem) bool {
	if item.Confidence < p.cfg.MinItemConfidence {
		return false
	}
	price := item.LineTotal
	if price == nil {
		price = item.UnitPrice
	}
	return price != nil && price.Confidence >= p.cfg.MinPriceConfidence
}

// VisibleItems returns the default-visible subset. The hidden remainder is
// still reachable on the document behind a show-low-confidence toggle.
func (p *Policy) VisibleItems(doc ReceiptDocument) []CandidateItem {
	visible := make([]CandidateItem, 0, len(doc.Items))
	for _, it := range doc.Items {
		if it.Accepted {
			visible = append(visible, it)
		}
	}
	return visible
}
