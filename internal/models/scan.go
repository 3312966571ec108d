// internal/models/scan.go
package models

// Confidence buckets for accepted matches.
const (
	ConfidenceVerified    = "verified"
	ConfidenceNeedsReview = "needs_review"
)

// Outcome error codes surfaced to callers.
const (
	ScanErrorNotFound  = "not_found"
	ScanErrorOCRFailed = "ocr_failed"
)

// MatchedCard is the accepted catalog entry returned to the caller.
type MatchedCard struct {
	CardID     string     `json:"card_id"`
	Name       string     `json:"name"`
	SetName    string     `json:"set_name"`
	SetCode    string     `json:"set_code"`
	CardNumber string     `json:"card_number"`
	Rarity     string     `json:"rarity"`
	ImageURL   string     `json:"image_url,omitempty"`
	Price      *Price     `json:"price,omitempty"`
	Confidence string     `json:"confidence"`
	Score      int        `json:"score"`
	Level      QueryLevel `json:"level"`
}

// CandidateSummary is the debug view of one scored candidate.
type CandidateSummary struct {
	CardID     string `json:"card_id"`
	Name       string `json:"name"`
	CardNumber string `json:"card_number"`
	SetName    string `json:"set_name"`
	Score      int    `json:"score"`
}

// LevelReport summarises what happened at one query level.
type LevelReport struct {
	Level       QueryLevel         `json:"level"`
	Reason      string             `json:"reason"`
	Skipped     bool               `json:"skipped,omitempty"`
	Considered  int                `json:"considered"`
	BestScore   int                `json:"best_score"`
	Detail      string             `json:"detail"`
	SearchError string             `json:"search_error,omitempty"`
	Top         []CandidateSummary `json:"top,omitempty"`
}

// DebugReport explains a rejected scan.
type DebugReport struct {
	Reason string        `json:"reason"`
	Levels []LevelReport `json:"levels"`
	Fields []string      `json:"fields"`
	Hints  []string      `json:"hints"`
	Text   string        `json:"text"`
}

// ScanOutcome is the single result of one scan. Candidates holds exactly one
// card when the scan was accepted and is empty otherwise.
type ScanOutcome struct {
	ScanID     string        `json:"scan_id,omitempty"`
	Candidates []MatchedCard `json:"candidates"`
	Raw        RawExtraction `json:"raw"`
	Error      string        `json:"error,omitempty"`
	Debug      *DebugReport  `json:"debug,omitempty"`
}

// Matched reports whether the scan produced an accepted card.
func (o ScanOutcome) Matched() bool {
	return len(o.Candidates) == 1 && o.Error == ""
}
