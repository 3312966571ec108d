package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"card-scan-workers/internal/cardmatch"
	"card-scan-workers/internal/common/logger"
	"card-scan-workers/internal/models"
)

// fileNameFloor is the name similarity a file catalog entry needs to be
// returned for a name query. It stands in for the fuzzy name match of the
// search backends.
const fileNameFloor = 75

// FileSearcher serves a catalog loaded from a JSON array of candidate
// records. It is read-only after construction and safe for concurrent use.
type FileSearcher struct {
	cards  []models.CandidateRecord
	logger logger.Logger
}

// LoadFileSearcher reads the catalog at path.
func LoadFileSearcher(path string, log logger.Logger) (*FileSearcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	var cards []models.CandidateRecord
	if err := json.Unmarshal(data, &cards); err != nil {
		return nil, fmt.Errorf("parse catalog file %s: %w", path, err)
	}
	return NewFileSearcher(cards, log), nil
}

func NewFileSearcher(cards []models.CandidateRecord, log logger.Logger) *FileSearcher {
	return &FileSearcher{
		cards:  append([]models.CandidateRecord(nil), cards...),
		logger: log.WithFields(map[string]interface{}{"backend": "file"}),
	}
}

// Len returns the number of loaded cards.
func (s *FileSearcher) Len() int {
	return len(s.cards)
}

func (s *FileSearcher) Search(ctx context.Context, q models.CatalogQuery) ([]models.CandidateRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	limit := limitOr(q.Limit, len(s.cards))
	var out []models.CandidateRecord
	for _, c := range s.cards {
		if q.CardNumber != "" && cardmatch.NormalizeNumber(q.CardNumber) != cardmatch.NormalizeNumber(c.CardNumber) {
			continue
		}
		if q.SetName != "" && cardmatch.Normalize(q.SetName) != cardmatch.Normalize(c.SetName) {
			continue
		}
		if q.Name != "" && cardmatch.Similarity(q.Name, c.Name) < fileNameFloor {
			continue
		}
		out = append(out, c)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
