package receipt

import (
	"time"

	"github.com/mwynn/tillscan/internal/parse"
)

// Receipt is a processed upload staged for human review: the original file
// reference plus the extracted candidate document and the settings that
// produced it.
type Receipt struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`

	// Preset and PageSegMode record how this document was produced, so a
	// reviewer can re-run the receipt with different settings.
	Preset      string `json:"preset"`
	PageSegMode string `json:"page_seg_mode"`

	Document parse.ReceiptDocument `json:"document"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
