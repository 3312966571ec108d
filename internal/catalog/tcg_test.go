package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "card-scan-workers/internal/common/errors"
	"card-scan-workers/internal/common/logger"
	"card-scan-workers/internal/models"
)

const tcgFixture = `{
  "data": [
    {
      "id": "base1-58",
      "name": "Pikachu",
      "number": "58",
      "rarity": "Common",
      "set": {"id": "base1", "name": "Base Set"},
      "images": {"small": "https://images.pokemontcg.io/base1/58.png"},
      "cardmarket": {"prices": {"averageSellPrice": 4.75}}
    },
    {
      "id": "basep-1",
      "name": "Pikachu",
      "number": "1",
      "set": {"id": "basep", "name": "Wizards Black Star Promos"},
      "images": {"small": "https://images.pokemontcg.io/basep/1.png"}
    }
  ],
  "page": 1,
  "pageSize": 20,
  "count": 2,
  "totalCount": 2
}`

func TestTCGSearcher_Search(t *testing.T) {
	var gotQuery, gotPageSize, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/cards", r.URL.Path)
		gotQuery = r.URL.Query().Get("q")
		gotPageSize = r.URL.Query().Get("pageSize")
		gotKey = r.Header.Get("X-Api-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(tcgFixture))
	}))
	defer srv.Close()

	s := NewTCGSearcher(TCGConfig{BaseURL: srv.URL + "/v2/", APIKey: "secret", PageSize: 20}, logger.NewTestLogger(t))
	records, err := s.Search(context.Background(), models.CatalogQuery{
		Level: models.QueryLevelFull, Name: `Pika"chu`, CardNumber: "58", SetName: "Base Set", Limit: 250,
	})
	require.NoError(t, err)

	assert.Equal(t, `name:"Pikachu" number:"58" set.name:"Base Set"`, gotQuery)
	assert.Equal(t, "20", gotPageSize)
	assert.Equal(t, "secret", gotKey)

	require.Len(t, records, 2)
	assert.Equal(t, models.CandidateRecord{
		CardID:     "base1-58",
		Name:       "Pikachu",
		SetName:    "Base Set",
		SetCode:    "base1",
		CardNumber: "58",
		Rarity:     "Common",
		ImageURL:   "https://images.pokemontcg.io/base1/58.png",
		Price:      &models.Price{Amount: 4.75, Currency: "EUR"},
	}, records[0])
	assert.Nil(t, records[1].Price)
	assert.Empty(t, records[1].Rarity)
}

func TestTCGSearcher_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": "rate limit"}`))
	}))
	defer srv.Close()

	s := NewTCGSearcher(TCGConfig{BaseURL: srv.URL}, logger.NewTestLogger(t))
	_, err := s.Search(context.Background(), models.CatalogQuery{CardNumber: "58"})
	stdErr, ok := apperrors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeCatalogQueryFailed, stdErr.Code)
	assert.Contains(t, stdErr.Details, "status 429")
}

func TestTCGSearcher_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	s := NewTCGSearcher(TCGConfig{BaseURL: srv.URL}, logger.NewTestLogger(t))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Search(ctx, models.CatalogQuery{CardNumber: "58"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTCGSearcher_EmptyQuery(t *testing.T) {
	s := NewTCGSearcher(TCGConfig{BaseURL: "http://127.0.0.1:1"}, logger.NewTestLogger(t))
	records, err := s.Search(context.Background(), models.CatalogQuery{})
	require.NoError(t, err)
	assert.Empty(t, records)
}
