package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "card-scan-workers/internal/common/errors"
	commonhttp "card-scan-workers/internal/common/http"
	"card-scan-workers/internal/common/logger"
	"card-scan-workers/internal/models"
)

// TCGConfig configures the Pokémon TCG API backend.
type TCGConfig struct {
	BaseURL   string
	APIKey    string
	PageSize  int
	Timeout   time.Duration
	RateLimit float64
	Burst     int
}

type tcgResponse struct {
	Data []tcgCard `json:"data"`
}

type tcgCard struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number string `json:"number"`
	Rarity string `json:"rarity"`
	Set    struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"set"`
	Images struct {
		Small string `json:"small"`
	} `json:"images"`
	Cardmarket *struct {
		Prices struct {
			AverageSellPrice *float64 `json:"averageSellPrice"`
		} `json:"prices"`
	} `json:"cardmarket"`
}

// TCGSearcher queries the public Pokémon TCG API (v2 /cards endpoint).
type TCGSearcher struct {
	baseURL  string
	apiKey   string
	pageSize int
	client   *commonhttp.Client
	logger   logger.Logger
}

func NewTCGSearcher(cfg TCGConfig, log logger.Logger) *TCGSearcher {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &TCGSearcher{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		pageSize: cfg.PageSize,
		client: commonhttp.NewClient(cfg.Timeout,
			commonhttp.WithRateLimit(cfg.RateLimit, cfg.Burst),
			commonhttp.WithUserAgent("card-scan-workers"),
		),
		logger: log.WithFields(map[string]interface{}{"backend": "tcg"}),
	}
}

func (s *TCGSearcher) Search(ctx context.Context, q models.CatalogQuery) ([]models.CandidateRecord, error) {
	expr := tcgQuery(q)
	if expr == "" {
		return nil, nil
	}

	pageSize := s.pageSize
	if q.Limit > 0 && q.Limit < pageSize {
		pageSize = q.Limit
	}

	params := url.Values{}
	params.Set("q", expr)
	params.Set("pageSize", strconv.Itoa(pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/cards?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if s.apiKey != "" {
		req.Header.Set("X-Api-Key", s.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	res, err := s.client.DoWithContext(ctx, req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, apperrors.NewCatalogQueryFailedError("tcg",
			fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(snippet))))
	}

	var parsed tcgResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, apperrors.NewCatalogQueryFailedError("tcg", fmt.Errorf("decode response: %w", err))
	}

	records := make([]models.CandidateRecord, 0, len(parsed.Data))
	for _, c := range parsed.Data {
		records = append(records, c.record())
	}

	s.logger.Debug("tcg search completed", map[string]interface{}{
		"level":   string(q.Level),
		"query":   expr,
		"results": len(records),
	})
	return records, nil
}

func (c tcgCard) record() models.CandidateRecord {
	rec := models.CandidateRecord{
		CardID:     c.ID,
		Name:       c.Name,
		SetName:    c.Set.Name,
		SetCode:    c.Set.ID,
		CardNumber: c.Number,
		Rarity:     c.Rarity,
		ImageURL:   c.Images.Small,
	}
	if c.Cardmarket != nil && c.Cardmarket.Prices.AverageSellPrice != nil {
		rec.Price = &models.Price{Amount: *c.Cardmarket.Prices.AverageSellPrice, Currency: "EUR"}
	}
	return rec
}

// tcgQuery renders the API's Lucene-like search expression, for example
// name:"Pikachu" number:"58" set.name:"Base Set".
func tcgQuery(q models.CatalogQuery) string {
	var parts []string
	add := func(field, value string) {
		value = strings.TrimSpace(strings.ReplaceAll(value, `"`, ""))
		if value != "" {
			parts = append(parts, fmt.Sprintf(`%s:"%s"`, field, value))
		}
	}
	add("name", q.Name)
	add("number", q.CardNumber)
	add("set.name", q.SetName)
	return strings.Join(parts, " ")
}
