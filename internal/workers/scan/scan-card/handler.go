// internal/workers/scan/scan-card/handler.go
package scancard

import (
	"context"
	"encoding/base64"
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
	"card-scan-workers/internal/vision"
)

const (
	TaskType = "scan-card"

	commandTimeout = 10 * time.Second
)

var schema = validation.MustCompile(inputSchema)

// Scanner is the part of scanner.Service this worker needs.
type Scanner interface {
	Scan(ctx context.Context, img vision.Image) (models.ScanOutcome, error)
}

type Handler struct {
	config       *Config
	scanner      Scanner
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, scanner Scanner, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		scanner:      scanner,
		errorHandler: apperrors.NewErrorHandler(log),
		logger:       log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := decodeInput(job.Variables)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	output, err := h.execute(ctx, input)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

func decodeInput(variables string) (*Input, error) {
	if result := schema.ValidateJSON(variables); !result.Valid {
		return nil, apperrors.NewInvalidInputError(result.Error())
	}
	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("parse input: %v", err))
	}
	return &input, nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, apperrors.NewInvalidInputError("input cannot be nil")
	}

	data, err := base64.StdEncoding.DecodeString(input.Image)
	if err != nil {
		return nil, apperrors.NewInvalidImageError(fmt.Sprintf("image is not valid base64: %v", err))
	}
	if len(data) == 0 {
		return nil, apperrors.NewInvalidImageError("image is empty")
	}
	if h.config.MaxImageBytes > 0 && len(data) > h.config.MaxImageBytes {
		return nil, apperrors.NewInvalidImageError(
			fmt.Sprintf("image is %d bytes, limit is %d", len(data), h.config.MaxImageBytes))
	}

	outcome, err := h.scanner.Scan(ctx, vision.Image{Data: data, MIMEType: input.MimeType})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.NewScanTimeoutError(TaskType, err)
		}
		return nil, err
	}
	if input.ScanID != "" {
		outcome.ScanID = input.ScanID
	}

	return buildOutput(outcome), nil
}

func buildOutput(outcome models.ScanOutcome) *Output {
	out := &Output{
		ScanID:  outcome.ScanID,
		Matched: outcome.Matched(),
		Error:   outcome.Error,
		Outcome: outcome,
	}
	if out.Matched {
		out.CardID = outcome.Candidates[0].CardID
		out.Confidence = outcome.Candidates[0].Confidence
	}
	return out
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
	h.logger.Info("job completed", map[string]interface{}{
		"jobKey":  job.Key,
		"scanId":  output.ScanID,
		"matched": output.Matched,
	})
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

// Execute runs the scan without a job client, for tests and the CLI.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
