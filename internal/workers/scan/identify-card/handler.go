// internal/workers/scan/identify-card/handler.go
package identifycard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "card-scan-workers/internal/common/errors"
	"card-scan-workers/internal/common/logger"
	"card-scan-workers/internal/common/metrics"
	"card-scan-workers/internal/common/validation"
	"card-scan-workers/internal/models"
)

const (
	TaskType = "identify-card"

	commandTimeout = 10 * time.Second
)

var schema = validation.MustCompile(inputSchema)

// Identifier is the part of scanner.Service this worker needs.
type Identifier interface {
	Identify(ctx context.Context, extraction models.RawExtraction) (models.ScanOutcome, error)
}

type Handler struct {
	config       *Config
	identifier   Identifier
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, identifier Identifier, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		identifier:   identifier,
		errorHandler: apperrors.NewErrorHandler(log),
		logger:       log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	input, err := decodeInput(job.Variables)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, input)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

func decodeInput(variables string) (*Input, error) {
	if result := schema.ValidateJSON(variables); !result.Valid {
		return nil, apperrors.NewInvalidExtractionError(result.Error())
	}
	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, apperrors.NewInvalidExtractionError(fmt.Sprintf("parse input: %v", err))
	}
	return &input, nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, apperrors.NewInvalidExtractionError("input cannot be nil")
	}

	outcome, err := h.identifier.Identify(ctx, input.Extraction.Trimmed())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.NewScanTimeoutError(TaskType, err)
		}
		return nil, err
	}
	if input.ScanID != "" {
		outcome.ScanID = input.ScanID
	}

	out := &Output{
		ScanID:  outcome.ScanID,
		Matched: outcome.Matched(),
		Outcome: outcome,
	}
	switch {
	case out.Matched:
		out.CardID = outcome.Candidates[0].CardID
		out.Confidence = outcome.Candidates[0].Confidence
		out.Score = outcome.Candidates[0].Score
	case outcome.Debug != nil:
		out.Reason = outcome.Debug.Reason
	}
	return out, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	code := string(apperrors.ErrCodeInternal)
	if stdErr, ok := apperrors.AsStandardError(err); ok {
		code = string(stdErr.Code)
	}
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, code).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, err)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
