package parse

// Amount is a currency amount in integer cents with the confidence of its
// extraction. Confidence is always serialized so a reviewing UI can render an
// indicator for every field.
type Amount struct {
	Cents      int64   `json:"cents"`
	Confidence float64 `json:"confidence"`
}

// CandidateItem is an unconfirmed machine-extracted line item pending human
// review. Items below the acceptance thresholds are still constructed and
// kept; Accepted only controls default visibility.
type CandidateItem struct {
	// Name is the item description, trimmed, 1-200 characters.
	Name string `json:"name"`
	// Quantity defaults to 1 when no explicit quantity token was found.
	Quantity int `json:"quantity"`
	// UnitPrice is set only when the line carried a separate per-unit price.
	UnitPrice *Amount `json:"unit_price"`
	// LineTotal is the rightmost price on the line.
	LineTotal *Amount `json:"line_total"`
	// SourceLineIndex points back into the OCR line sequence the item came
	// from. A lookup key, not ownership.
	SourceLineIndex int `json:"source_line_index"`
	// Confidence is the composed item confidence in [0,1].
	Confidence float64 `json:"confidence"`
	// Accepted marks the item for the default-visible review set.
	Accepted bool `json:"accepted"`
}

// ReceiptDocument is the parser's output: receipt metadata plus the ordered
// candidate items. Zero items with near-zero confidence is a valid document,
// not an error; it signals the caller to retry with different preprocessing
// or segmentation.
type ReceiptDocument struct {
	MerchantName       string  `json:"merchant_name,omitempty"`
	MerchantConfidence float64 `json:"merchant_confidence"`

	// PurchaseDate is ISO 8601 (YYYY-MM-DD) when a date was found.
	PurchaseDate   string  `json:"purchase_date,omitempty"`
	DateConfidence float64 `json:"date_confidence"`
	// DateFormat names the pattern that matched (iso, month-day-year,
	// day-month-year).
	DateFormat string `json:"date_format,omitempty"`

	Subtotal *Amount `json:"subtotal"`
	Tax      *Amount `json:"tax"`
	Total    *Amount `json:"total"`

	Items []CandidateItem `json:"items"`

	// LinesTotal counts non-empty OCR lines; LinesClassified counts lines
	// recognized as items or known metadata. Their ratio feeds the document
	// confidence.
	LinesTotal      int `json:"lines_total"`
	LinesClassified int `json:"lines_classified"`

	// TotalsMismatch is set when subtotal + tax failed to reconcile with
	// total within tolerance. Soft signal only.
	TotalsMismatch bool `json:"totals_mismatch"`

	// Confidence is the document-level overall confidence in [0,1].
	Confidence float64 `json:"confidence"`

	Warnings []string `json:"warnings,omitempty"`
}
