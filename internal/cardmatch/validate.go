package cardmatch

import (
	"fmt"
	"strings"

	"card-scan-workers/internal/models"
)

// Reason identifies the validation rule that rejected a level.
type Reason string

const (
	ReasonNoCandidates      Reason = "no_candidates"
	ReasonBelowThreshold    Reason = "below_threshold"
	ReasonNumberMismatch    Reason = "number_mismatch"
	ReasonNameSimilarityLow Reason = "name_similarity_low"
	ReasonAmbiguous         Reason = "ambiguous"
)

// Disabled switches off the MinScore, NameSimilarityFloor or AmbiguityGap
// rule when used as its threshold.
const Disabled = -1

// Thresholds holds the acceptance rules and the confidence bucket boundary.
// A zero field takes its value from DefaultThresholds; use Disabled to turn a
// rule off.
type Thresholds struct {
	MinScore            int `json:"min_score"`
	VerifiedScore       int `json:"verified_score"`
	NameSimilarityFloor int `json:"name_similarity_floor"`
	AmbiguityGap        int `json:"ambiguity_gap"`
	DebugTopN           int `json:"debug_top_n"`
}

// DefaultThresholds returns the strict production rules.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinScore:            70,
		VerifiedScore:       80,
		NameSimilarityFloor: 85,
		AmbiguityGap:        15,
		DebugTopN:           5,
	}
}

// withDefaults fills zero fields from DefaultThresholds. Negative rule
// thresholds are kept and never reject.
func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	if t.MinScore == 0 {
		t.MinScore = d.MinScore
	}
	if t.VerifiedScore <= 0 {
		t.VerifiedScore = d.VerifiedScore
	}
	if t.NameSimilarityFloor == 0 {
		t.NameSimilarityFloor = d.NameSimilarityFloor
	}
	if t.AmbiguityGap == 0 {
		t.AmbiguityGap = d.AmbiguityGap
	}
	if t.DebugTopN <= 0 {
		t.DebugTopN = d.DebugTopN
	}
	return t
}

// Verdict is the validation outcome for one query level. When Accepted is
// true Candidate holds the single winner; otherwise Reason names the failed
// rule and Considered the top scored candidates.
type Verdict struct {
	Accepted   bool
	Candidate  ScoredCandidate
	TotalScore int

	Reason     Reason
	Considered []ScoredCandidate
	Detail     string
}

// BestScore is the highest total seen, or zero without candidates.
func (v Verdict) BestScore() int {
	if v.Accepted {
		return v.TotalScore
	}
	if len(v.Considered) == 0 {
		return 0
	}
	return v.Considered[0].TotalScore
}

func accept(best ScoredCandidate) Verdict {
	return Verdict{Accepted: true, Candidate: best, TotalScore: best.TotalScore}
}

func reject(reason Reason, scored []ScoredCandidate, topN int, detail string) Verdict {
	if len(scored) > topN {
		scored = scored[:topN]
	}
	considered := make([]ScoredCandidate, len(scored))
	copy(considered, scored)
	return Verdict{Reason: reason, Considered: considered, Detail: detail}
}

// Validate applies the acceptance rules, in order, to candidates already
// ranked by descending total score:
//
//  1. no candidates
//  2. best total below MinScore
//  3. extracted number present but not matched by the best candidate
//  4. name similarity below NameSimilarityFloor
//  5. runner-up within AmbiguityGap of the best
//
// The first failing rule rejects the level.
func Validate(scored []ScoredCandidate, extraction models.RawExtraction, th Thresholds) Verdict {
	th = th.withDefaults()

	if len(scored) == 0 {
		return reject(ReasonNoCandidates, nil, th.DebugTopN, "catalog returned no candidates")
	}

	best := scored[0]
	if best.TotalScore < th.MinScore {
		return reject(ReasonBelowThreshold, scored, th.DebugTopN,
			fmt.Sprintf("best score %d below %d (%s)", best.TotalScore, th.MinScore, best.CardID))
	}

	if strings.TrimSpace(extraction.CardNumber) != "" && best.NumberScore != MaxNumberScore {
		return reject(ReasonNumberMismatch, scored, th.DebugTopN,
			fmt.Sprintf("number %q does not match %q (%s)", extraction.CardNumber, best.CardNumber, best.CardID))
	}

	if sim := Similarity(extraction.Name, best.Name); sim < th.NameSimilarityFloor {
		return reject(ReasonNameSimilarityLow, scored, th.DebugTopN,
			fmt.Sprintf("name %q vs %q similarity %d below %d", extraction.Name, best.Name, sim, th.NameSimilarityFloor))
	}

	if len(scored) > 1 {
		if gap := best.TotalScore - scored[1].TotalScore; gap < th.AmbiguityGap {
			return reject(ReasonAmbiguous, scored, th.DebugTopN,
				fmt.Sprintf("%s and %s separated by %d, need %d", best.CardID, scored[1].CardID, gap, th.AmbiguityGap))
		}
	}

	return accept(best)
}
