// Package scanner runs the end-to-end scan: extraction, retrieval, strict
// validation and outcome assembly.
package scanner

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"card-scan-workers/internal/cardmatch"
	apperrors "card-scan-workers/internal/common/errors"
	"card-scan-workers/internal/common/logger"
	"card-scan-workers/internal/common/metrics"
	"card-scan-workers/internal/common/observability"
	"card-scan-workers/internal/models"
	"card-scan-workers/internal/vision"
)

const (
	outcomeMatched   = "matched"
	outcomeNotFound  = "not_found"
	outcomeOCRFailed = "ocr_failed"

	defaultBatchConcurrency = 4
)

// Service is stateless across scans apart from the retriever's query cache.
type Service struct {
	extractor        vision.Extractor
	retriever        *cardmatch.Retriever
	obs              *observability.Observability
	batchConcurrency int
	logger           logger.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithObservability records every scan on o.
func WithObservability(o *observability.Observability) Option {
	return func(s *Service) { s.obs = o }
}

// WithBatchConcurrency bounds the number of images scanned at once.
func WithBatchConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchConcurrency = n
		}
	}
}

func NewService(extractor vision.Extractor, retriever *cardmatch.Retriever, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		extractor:        extractor,
		retriever:        retriever,
		batchConcurrency: defaultBatchConcurrency,
		logger:           log.WithFields(map[string]interface{}{"component": "scanner"}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Thresholds returns the acceptance rules in effect.
func (s *Service) Thresholds() cardmatch.Thresholds {
	return s.retriever.Thresholds()
}

// Scan extracts the card fields from img and identifies the card. Extraction
// failures produce an ocr_failed outcome without retrieval. The only error
// returned is the context error when ctx ends first.
func (s *Service) Scan(ctx context.Context, img vision.Image) (models.ScanOutcome, error) {
	start := time.Now()
	scanID := uuid.NewString()

	if s.extractor == nil {
		return s.finish(ctx, start, "", cardmatch.OCRFailed(models.RawExtraction{}, "no extractor configured"), scanID), nil
	}

	extraction, err := s.extractor.Extract(ctx, img)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.ScanOutcome{}, ctxErr
		}
		s.logger.Warn("extraction failed", map[string]interface{}{
			"scanId": scanID,
			"error":  err.Error(),
		})
		return s.finish(ctx, start, "", cardmatch.OCRFailed(models.RawExtraction{}, failureDetail(err)), scanID), nil
	}

	return s.identify(ctx, start, scanID, extraction)
}

// Identify runs retrieval and validation on an extraction produced elsewhere.
func (s *Service) Identify(ctx context.Context, extraction models.RawExtraction) (models.ScanOutcome, error) {
	return s.identify(ctx, time.Now(), uuid.NewString(), extraction)
}

func (s *Service) identify(ctx context.Context, start time.Time, scanID string, extraction models.RawExtraction) (models.ScanOutcome, error) {
	res, err := s.retriever.Retrieve(ctx, extraction)
	if err != nil {
		return models.ScanOutcome{}, err
	}
	outcome := cardmatch.Assemble(res, extraction.Trimmed(), s.retriever.Thresholds())
	return s.finish(ctx, start, res.Level, outcome, scanID), nil
}

// ScanBatch scans every image independently, at most batchConcurrency at a
// time, and returns the outcomes in input order. It fails only when ctx ends.
func (s *Service) ScanBatch(ctx context.Context, images []vision.Image) ([]models.ScanOutcome, error) {
	outcomes := make([]models.ScanOutcome, len(images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchConcurrency)
	for i, img := range images {
		g.Go(func() error {
			outcome, err := s.Scan(gctx, img)
			if err != nil {
				return err
			}
			outcomes[i] = outcome
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (s *Service) finish(ctx context.Context, start time.Time, level models.QueryLevel, outcome models.ScanOutcome, scanID string) models.ScanOutcome {
	outcome.ScanID = scanID

	label := outcomeMatched
	switch {
	case outcome.Error == models.ScanErrorOCRFailed:
		label = outcomeOCRFailed
	case !outcome.Matched():
		label = outcomeNotFound
	}

	elapsed := time.Since(start)
	metrics.ScansTotal.WithLabelValues(label).Inc()
	s.obs.RecordScan(ctx, label, string(level), elapsed)

	fields := map[string]interface{}{
		"scanId":   scanID,
		"outcome":  label,
		"level":    string(level),
		"duration": elapsed.String(),
	}
	if outcome.Matched() {
		fields["cardId"] = outcome.Candidates[0].CardID
		fields["confidence"] = outcome.Candidates[0].Confidence
	} else if outcome.Debug != nil {
		fields["reason"] = outcome.Debug.Reason
	}
	s.logger.Info("scan completed", fields)
	return outcome
}

func failureDetail(err error) string {
	var stdErr *apperrors.StandardError
	if errors.As(err, &stdErr) && stdErr.Details != "" {
		return stdErr.Details
	}
	return err.Error()
}
