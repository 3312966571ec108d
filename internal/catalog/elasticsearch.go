package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	apperrors "card-scan-workers/internal/common/errors"
	"card-scan-workers/internal/common/logger"
	"card-scan-workers/internal/models"
)

const esDefaultSize = 100

// esCard is the document shape of the catalog index.
type esCard struct {
	CardID     string   `json:"card_id"`
	Name       string   `json:"name"`
	SetName    string   `json:"set_name"`
	SetCode    string   `json:"set_code"`
	CardNumber string   `json:"card_number"`
	Rarity     string   `json:"rarity"`
	ImageURL   string   `json:"image_url"`
	PriceEUR   *float64 `json:"price_eur"`
}

type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string `json:"_id"`
			Source esCard `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// ElasticsearchSearcher queries a card index with a fuzzy name match and
// exact card number filter.
type ElasticsearchSearcher struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewElasticsearchSearcher(client *elasticsearch.Client, index string, log logger.Logger) *ElasticsearchSearcher {
	return &ElasticsearchSearcher{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"index": index}),
	}
}

func (s *ElasticsearchSearcher) Search(ctx context.Context, q models.CatalogQuery) ([]models.CandidateRecord, error) {
	body, err := json.Marshal(buildCardQuery(q))
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	size := limitOr(q.Limit, esDefaultSize)
	req := esapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(body),
		Size:  &size,
	}

	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		if res.StatusCode == http.StatusNotFound {
			return nil, apperrors.NewIndexNotFoundError(s.index)
		}
		return nil, apperrors.NewCatalogQueryFailedError("elasticsearch", fmt.Errorf("search error: %s", res.Status()))
	}

	var parsed esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, apperrors.NewCatalogQueryFailedError("elasticsearch", fmt.Errorf("decode response: %w", err))
	}

	records := make([]models.CandidateRecord, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		card := hit.Source
		if card.CardID == "" {
			card.CardID = hit.ID
		}
		records = append(records, card.record())
	}

	s.logger.Debug("elasticsearch search completed", map[string]interface{}{
		"level": string(q.Level),
		"hits":  len(records),
	})
	return records, nil
}

func (c esCard) record() models.CandidateRecord {
	rec := models.CandidateRecord{
		CardID:     c.CardID,
		Name:       c.Name,
		SetName:    c.SetName,
		SetCode:    c.SetCode,
		CardNumber: c.CardNumber,
		Rarity:     c.Rarity,
		ImageURL:   c.ImageURL,
	}
	if c.PriceEUR != nil {
		rec.Price = &models.Price{Amount: *c.PriceEUR, Currency: "EUR"}
	}
	return rec
}

// buildCardQuery translates the non-empty query fields into a bool query.
// Name is a fuzzy match, number is an exact keyword filter and the set name
// is a phrase match.
func buildCardQuery(q models.CatalogQuery) map[string]interface{} {
	must := []interface{}{}
	filter := []interface{}{}

	if q.Name != "" {
		must = append(must, map[string]interface{}{
			"match": map[string]interface{}{
				"name": map[string]interface{}{
					"query":     q.Name,
					"fuzziness": "AUTO",
					"operator":  "and",
				},
			},
		})
	}
	if q.SetName != "" {
		must = append(must, map[string]interface{}{
			"match_phrase": map[string]interface{}{"set_name": q.SetName},
		})
	}
	if q.CardNumber != "" {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"card_number": q.CardNumber},
		})
	}
	if len(must) == 0 {
		must = append(must, map[string]interface{}{"match_all": map[string]interface{}{}})
	}

	boolQuery := map[string]interface{}{"must": must}
	if len(filter) > 0 {
		boolQuery["filter"] = filter
	}
	return map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
	}
}
