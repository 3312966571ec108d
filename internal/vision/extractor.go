// Package vision reads card fields from a photo with an OpenAI-compatible
// vision model.
package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	apperrors "card-scan-workers/internal/common/errors"
	"card-scan-workers/internal/common/logger"
	"card-scan-workers/internal/models"
)

// ErrExtractionFailed matches, via errors.Is, every error that means the
// model produced nothing usable.
var ErrExtractionFailed = apperrors.NewOCRFailedError("")

const (
	systemPrompt = "You extract structured data from Pokemon TCG cards."
	userPrompt   = "You are an expert on Pokemon TCG cards. Read the exact data of the card in the image. " +
		"Answer ONLY with JSON using the keys: name, card_number, set_name, set_code, rarity, language. " +
		"If a field is not visible, use an empty string."
)

// Image is one photographed card.
type Image struct {
	Data     []byte
	MIMEType string
}

// Extractor turns an image into raw card fields.
type Extractor interface {
	Extract(ctx context.Context, img Image) (models.RawExtraction, error)
}

// Config configures the OpenAI extractor.
type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Detail    string
	Timeout   time.Duration
}

type OpenAIExtractor struct {
	client    *openai.Client
	model     string
	maxTokens int
	detail    openai.ImageURLDetail
	timeout   time.Duration
	hasKey    bool
	logger    logger.Logger
}

func NewOpenAIExtractor(cfg Config, log logger.Logger) *OpenAIExtractor {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 400
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	detail := openai.ImageURLDetail(cfg.Detail)
	if detail == "" {
		detail = openai.ImageURLDetailHigh
	}

	return &OpenAIExtractor{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		detail:    detail,
		timeout:   cfg.Timeout,
		hasKey:    cfg.APIKey != "",
		logger:    log.WithFields(map[string]interface{}{"component": "vision", "model": cfg.Model}),
	}
}

func (e *OpenAIExtractor) Extract(ctx context.Context, img Image) (models.RawExtraction, error) {
	if len(img.Data) == 0 {
		return models.RawExtraction{}, apperrors.NewInvalidImageError("image is empty")
	}
	if !e.hasKey {
		return models.RawExtraction{}, apperrors.NewOCRFailedError("vision API key not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateChatCompletion(ctx, e.request(img))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return models.RawExtraction{}, apperrors.NewExtractionTimeoutError(err)
		}
		if errors.Is(err, context.Canceled) {
			return models.RawExtraction{}, err
		}
		failed := apperrors.NewOCRFailedError(fmt.Sprintf("vision request failed: %v", err))
		failed.Cause = err
		failed.Retryable = true
		return models.RawExtraction{}, failed
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return models.RawExtraction{}, apperrors.NewOCRFailedError("vision model returned no content")
	}

	extraction, err := parseExtraction(resp.Choices[0].Message.Content)
	if err != nil {
		return models.RawExtraction{}, apperrors.NewOCRFailedError(err.Error())
	}

	e.logger.Debug("card fields extracted", map[string]interface{}{
		"name":       extraction.Name,
		"cardNumber": extraction.CardNumber,
		"setName":    extraction.SetName,
		"tokens":     resp.Usage.TotalTokens,
	})
	return extraction, nil
}

func (e *OpenAIExtractor) request(img Image) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: userPrompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    DataURL(img),
							Detail: e.detail,
						},
					},
				},
			},
		},
	}
}

// DataURL encodes img as a base64 data URL. The MIME type is sniffed when
// not set.
func DataURL(img Image) string {
	mime := img.MIMEType
	if mime == "" {
		mime = http.DetectContentType(img.Data)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// parseExtraction decodes the model's JSON answer. Missing or null keys become
// empty strings and an answer with every field empty is a failure.
func parseExtraction(content string) (models.RawExtraction, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		return models.RawExtraction{}, fmt.Errorf("vision answer is not JSON: %w", err)
	}

	str := func(key string) string {
		if v, ok := fields[key].(string); ok {
			return v
		}
		if v, ok := fields[key].(float64); ok {
			return fmt.Sprintf("%g", v)
		}
		return ""
	}

	extraction := models.RawExtraction{
		Name:       str("name"),
		CardNumber: str("card_number"),
		SetName:    str("set_name"),
		SetCode:    str("set_code"),
		Rarity:     str("rarity"),
		Language:   str("language"),
	}.Trimmed()

	if extraction.IsEmpty() {
		return models.RawExtraction{}, errors.New("vision answer has no card fields")
	}
	return extraction, nil
}
