package identifycard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"card-scan-workers/internal/cardmatch"
	"card-scan-workers/internal/catalog"
	apperrors "card-scan-workers/internal/common/errors"
	"card-scan-workers/internal/common/logger"
	"card-scan-workers/internal/models"
	"card-scan-workers/internal/scanner"
)

func createTestConfig() *Config {
	return &Config{Timeout: 5 * time.Second}
}

func createTestHandler(t *testing.T) *Handler {
	t.Helper()
	log := logger.NewTestLogger(t)
	searcher := catalog.NewFileSearcher([]models.CandidateRecord{
		{CardID: "base1-58", Name: "Pikachu", SetName: "Base Set", SetCode: "base1", CardNumber: "58", Rarity: "Common"},
		{CardID: "base2-58", Name: "Dodrio", SetName: "Jungle", SetCode: "base2", CardNumber: "58", Rarity: "Uncommon"},
		{CardID: "base1-4", Name: "Charizard", SetName: "Base Set", SetCode: "base1", CardNumber: "4", Rarity: "Rare Holo"},
	}, log)
	retriever := cardmatch.NewRetriever(searcher, nil, cardmatch.Options{}, log)
	return NewHandler(createTestConfig(), scanner.NewService(nil, retriever, log), log)
}

func TestExecute_Matched(t *testing.T) {
	h := createTestHandler(t)

	out, err := h.Execute(context.Background(), &Input{
		ScanID: "wf-7",
		Extraction: models.RawExtraction{
			Name: " Pikachuu ", CardNumber: "58", SetName: "Base Set", SetCode: "base1", Rarity: "Common",
		},
	})
	require.NoError(t, err)
	assert.True(t, out.Matched)
	assert.Equal(t, "wf-7", out.ScanID)
	assert.Equal(t, "base1-58", out.CardID)
	assert.Equal(t, models.ConfidenceVerified, out.Confidence)
	assert.Equal(t, 98, out.Score)
	assert.Empty(t, out.Reason)
}

func TestExecute_NotFound(t *testing.T) {
	h := createTestHandler(t)

	out, err := h.Execute(context.Background(), &Input{
		Extraction: models.RawExtraction{Name: "Mewtwo", CardNumber: "99"},
	})
	require.NoError(t, err)
	assert.False(t, out.Matched)
	assert.NotEmpty(t, out.ScanID)
	assert.Equal(t, string(cardmatch.ReasonNoCandidates), out.Reason)
	assert.Equal(t, models.ScanErrorNotFound, out.Outcome.Error)
	assert.Empty(t, out.Outcome.Candidates)
}

func TestExecute_NumberMismatchFallsThrough(t *testing.T) {
	h := createTestHandler(t)

	// Number 4 only finds Charizard, which scores far below the threshold.
	out, err := h.Execute(context.Background(), &Input{
		Extraction: models.RawExtraction{Name: "Blastoise", CardNumber: "4"},
	})
	require.NoError(t, err)
	assert.False(t, out.Matched)
	assert.Equal(t, string(cardmatch.ReasonBelowThreshold), out.Reason)
	require.NotNil(t, out.Outcome.Debug)
	assert.Len(t, out.Outcome.Debug.Levels, 3)
}

func TestExecute_Errors(t *testing.T) {
	h := createTestHandler(t)

	_, err := h.Execute(context.Background(), nil)
	stdErr, ok := apperrors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeInvalidExtraction, stdErr.Code)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.Execute(ctx, &Input{Extraction: models.RawExtraction{Name: "Mew", CardNumber: "8"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecute_JobDeadline(t *testing.T) {
	h := createTestHandler(t)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, err := h.Execute(ctx, &Input{Extraction: models.RawExtraction{Name: "Pikachu", CardNumber: "58"}})

	stdErr, ok := apperrors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeScanTimeout, stdErr.Code)
	assert.True(t, stdErr.Retryable)
	assert.Equal(t, TaskType, stdErr.Metadata["taskType"])
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDecodeInput(t *testing.T) {
	input, err := decodeInput(`{"scanId": "s", "extraction": {"name": "Mew", "card_number": "8", "set_name": ""}}`)
	require.NoError(t, err)
	assert.Equal(t, "Mew", input.Extraction.Name)
	assert.Equal(t, "8", input.Extraction.CardNumber)

	for _, vars := range []string{`{}`, `{"extraction": {"name": null}}`, `{"extraction": "Mew"}`} {
		_, err := decodeInput(vars)
		stdErr, ok := apperrors.AsStandardError(err)
		require.True(t, ok, vars)
		assert.Equal(t, apperrors.ErrCodeInvalidExtraction, stdErr.Code, vars)
	}
}
