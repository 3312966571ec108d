package cardmatch

import (
	"math"
	"sort"
	"strings"

	"card-scan-workers/internal/models"
)

// Sub-score caps. They sum to 100.
const (
	MaxNameScore    = 40
	MaxNumberScore  = 30
	MaxSetNameScore = 15
	MaxSetCodeScore = 10
	MaxRarityScore  = 5
)

// ScoredCandidate is a catalog record with its per-field score breakdown
// against one extraction.
type ScoredCandidate struct {
	models.CandidateRecord
	NameScore    int `json:"name_score"`
	NumberScore  int `json:"number_score"`
	SetNameScore int `json:"set_name_score"`
	SetCodeScore int `json:"set_code_score"`
	RarityScore  int `json:"rarity_score"`
	TotalScore   int `json:"total_score"`
}

// Score compares one candidate against an extraction. It is pure and
// ignores the candidate price.
func Score(extraction models.RawExtraction, candidate models.CandidateRecord) ScoredCandidate {
	sc := ScoredCandidate{CandidateRecord: candidate}

	if strings.TrimSpace(extraction.Name) != "" {
		sc.NameScore = weighted(MaxNameScore, Similarity(extraction.Name, candidate.Name))
	}
	if NumbersEqual(extraction.CardNumber, candidate.CardNumber) {
		sc.NumberScore = MaxNumberScore
	}
	if strings.TrimSpace(extraction.SetName) != "" && strings.TrimSpace(candidate.SetName) != "" {
		sc.SetNameScore = weighted(MaxSetNameScore, Similarity(extraction.SetName, candidate.SetName))
	}
	if fieldsEqual(extraction.SetCode, candidate.SetCode) {
		sc.SetCodeScore = MaxSetCodeScore
	}
	if fieldsEqual(extraction.Rarity, candidate.Rarity) {
		sc.RarityScore = MaxRarityScore
	}

	sc.TotalScore = sc.NameScore + sc.NumberScore + sc.SetNameScore + sc.SetCodeScore + sc.RarityScore
	return sc
}

// NormalizeNumber removes all whitespace and case-folds a card number.
// Leading zeros are significant and kept.
func NormalizeNumber(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

// NumbersEqual reports whether the extracted number is present and literally
// equal to the candidate number after NormalizeNumber.
func NumbersEqual(extracted, candidate string) bool {
	e := NormalizeNumber(extracted)
	return e != "" && e == NormalizeNumber(candidate)
}

func fieldsEqual(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	return na != "" && na == nb
}

func weighted(maxScore, similarity int) int {
	v := int(math.Round(float64(maxScore*similarity) / 100))
	if v < 0 {
		return 0
	}
	if v > maxScore {
		return maxScore
	}
	return v
}

// Rank scores every record, keeps the best score per card id and orders the
// result by total score descending, then card id ascending. Records without
// a card id are dropped since they cannot be told apart.
func Rank(extraction models.RawExtraction, records []models.CandidateRecord) []ScoredCandidate {
	byID := make(map[string]int, len(records))
	ranked := make([]ScoredCandidate, 0, len(records))
	for _, rec := range records {
		if strings.TrimSpace(rec.CardID) == "" {
			continue
		}
		sc := Score(extraction, rec)
		if i, seen := byID[rec.CardID]; seen {
			if sc.TotalScore > ranked[i].TotalScore {
				ranked[i] = sc
			}
			continue
		}
		byID[rec.CardID] = len(ranked)
		ranked = append(ranked, sc)
	}
	if len(ranked) == 0 {
		return nil
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].TotalScore != ranked[j].TotalScore {
			return ranked[i].TotalScore > ranked[j].TotalScore
		}
		return ranked[i].CardID < ranked[j].CardID
	})
	return ranked
}
