package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mwynn/tillscan/internal/ocr"
	"github.com/mwynn/tillscan/internal/parse"
	"github.com/mwynn/tillscan/internal/preprocess"
)

// IDGenerator generates unique IDs for receipts
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates IDs using UnixNano timestamp
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Options selects how a single receipt is processed. Zero values fall back to
// the documented defaults: minimal preprocessing, single-column segmentation,
// 0.6 item / 0.7 price thresholds.
type Options struct {
	Preset      preprocess.Preset
	PageSegMode ocr.PageSegMode
	EngineMode  ocr.EngineMode
	Language    string

	// MinItemConfidence and MinPriceConfidence override the acceptance
	// thresholds when non-zero.
	MinItemConfidence  float64
	MinPriceConfidence float64
}

// DefaultOptions returns the documented processing defaults.
func DefaultOptions() Options {
	return Options{
		Preset:      preprocess.PresetMinimal,
		PageSegMode: ocr.PSMSingleColumn,
	}
}

// lowConfidenceRetry is the engine confidence below which a second pass with
// automatic page segmentation is attempted.
const lowConfidenceRetry = 0.2

// ocrTimeout bounds a single engine invocation so a stuck engine surfaces as
// a timeout error instead of hanging the pipeline.
const ocrTimeout = 30 * time.Second

// Service runs the receipt pipeline: preprocess, recognize, parse, apply
// policy, stage for review. Pipeline runs share no mutable state, so
// independent receipts may be processed concurrently.
type Service struct {
	db          DB
	engine      ocr.Engine
	storage     Storage
	parserCfg   parse.Config
	policyCfg   parse.PolicyConfig
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a Service with default parser/policy tuning, ID
// generator, and time source.
func NewService(db DB, engine ocr.Engine, storage Storage) *Service {
	return &Service{
		db:          db,
		engine:      engine,
		storage:     storage,
		parserCfg:   parse.DefaultConfig(),
		policyCfg:   parse.DefaultPolicyConfig(),
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a Service with custom dependencies for testing.
func NewServiceWithDeps(db DB, engine ocr.Engine, storage Storage, parserCfg parse.Config, policyCfg parse.PolicyConfig, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		engine:      engine,
		storage:     storage,
		parserCfg:   parserCfg,
		policyCfg:   policyCfg,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filepath.Base(filename), ext)

	reg := regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	base = reg.ReplaceAllString(base, "")

	reg = regexp.MustCompile(`\s+`)
	base = reg.ReplaceAllString(base, " ")

	base = strings.TrimSpace(base)

	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}

	if base == "" {
		base = "receipt"
	}

	return base + ext
}

// ProcessReceipt runs the full pipeline over one upload and stages the result
// for review. Configuration problems fail before any image work; engine
// failures get one retry with automatic page segmentation; parser ambiguity
// never fails, it degrades to a low-confidence document.
func (s *Service) ProcessReceipt(ctx context.Context, filename string, data []byte, contentType string, opts Options) (*Receipt, error) {
	preCfg, err := opts.Preset.Config()
	if err != nil {
		return nil, err
	}
	parser, err := parse.NewParser(s.parserCfg)
	if err != nil {
		return nil, err
	}
	policy, err := parse.NewPolicy(s.resolvePolicy(opts))
	if err != nil {
		return nil, err
	}

	processed, err := preprocess.Process(preprocess.RawImage{Data: data, ContentType: contentType}, preCfg)
	if err != nil {
		return nil, fmt.Errorf("preprocessing image: %w", err)
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedKey, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	res, err := s.recognize(ctx, processed, opts)
	if err != nil {
		slog.Error("Failed to recognize receipt",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		s.storage.Delete(savedKey)
		return nil, fmt.Errorf("recognizing receipt: %w", err)
	}

	doc := parser.Parse(res)
	policy.Apply(res.Confidence, &doc)

	receipt := &Receipt{
		ID:          id,
		Filename:    savedKey,
		ContentType: contentType,
		Preset:      opts.Preset.String(),
		PageSegMode: res.PageSegMode.String(),
		Document:    doc,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.SaveReceipt(receipt); err != nil {
		s.storage.Delete(savedKey)
		return nil, fmt.Errorf("saving receipt to database: %w", err)
	}

	return receipt, nil
}

// resolvePolicy overlays per-request threshold overrides on the service
// policy tuning.
func (s *Service) resolvePolicy(opts Options) parse.PolicyConfig {
	cfg := s.policyCfg
	if opts.MinItemConfidence > 0 {
		cfg.MinItemConfidence = opts.MinItemConfidence
	}
	if opts.MinPriceConfidence > 0 {
		cfg.MinPriceConfidence = opts.MinPriceConfidence
	}
	return cfg
}

// recognize invokes the engine with the requested page segmentation mode and
// retries once with automatic segmentation when the engine fails or reports
// near-zero confidence. The higher-confidence result wins.
func (s *Service) recognize(ctx context.Context, img preprocess.ProcessedImage, opts Options) (ocr.Result, error) {
	req := ocr.Request{
		Image:       img.Data,
		ContentType: img.ContentType,
		Language:    opts.Language,
		PageSegMode: opts.PageSegMode,
		EngineMode:  opts.EngineMode,
	}

	first, firstErr := s.recognizeOnce(ctx, req)
	if firstErr == nil && first.Confidence >= lowConfidenceRetry {
		return first, nil
	}
	if req.PageSegMode == ocr.PSMAuto {
		return first, firstErr
	}

	req.PageSegMode = ocr.PSMAuto
	second, secondErr := s.recognizeOnce(ctx, req)
	switch {
	case firstErr != nil && secondErr != nil:
		return ocr.Result{}, firstErr
	case firstErr != nil:
		return second, nil
	case secondErr != nil:
		return first, nil
	case second.Confidence > first.Confidence:
		return second, nil
	default:
		return first, nil
	}
}

func (s *Service) recognizeOnce(ctx context.Context, req ocr.Request) (ocr.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, ocrTimeout)
	defer cancel()
	res, err := s.engine.Recognize(ctx, req)
	if err != nil {
		if !errors.Is(err, ocr.ErrEngine) {
			err = fmt.Errorf("%w: %v", ocr.ErrEngine, err)
		}
		return ocr.Result{}, err
	}
	return res, nil
}

// GetReceipt retrieves a receipt by ID.
func (s *Service) GetReceipt(id string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return receipt, nil
}

// ListReceipts returns all receipts pending review.
func (s *Service) ListReceipts() ([]*Receipt, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	return receipts, nil
}

// DeleteReceipt removes a receipt and its stored upload.
func (s *Service) DeleteReceipt(id string) error {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return fmt.Errorf("getting receipt for deletion: %w", err)
	}

	if err := s.storage.Delete(receipt.Filename); err != nil {
		slog.Warn("Failed to delete file", "filename", receipt.Filename, "error", err)
	}

	if err := s.db.DeleteReceipt(id); err != nil {
		return fmt.Errorf("deleting receipt from database: %w", err)
	}
	return nil
}

// GetReceiptFile retrieves the original upload for a receipt.
func (s *Service) GetReceiptFile(id string) ([]byte, string, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt: %w", err)
	}

	data, err := s.storage.Get(receipt.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}

	return data, receipt.ContentType, nil
}
