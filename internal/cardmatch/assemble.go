package cardmatch

import (
	"fmt"
	"strings"

	"card-scan-workers/internal/models"
)

const notDetected = "not detected"

var photoHints = []string{
	"Make sure the card name and number are clearly visible",
	"Check that the card exists in the catalog",
	"Retake the photo sharper and in better light",
	"Avoid glare and blur on the printed text",
}

// Bucket maps an accepted score to its confidence label.
func Bucket(score int, th Thresholds) string {
	if score >= th.withDefaults().VerifiedScore {
		return models.ConfidenceVerified
	}
	return models.ConfidenceNeedsReview
}

// Assemble turns a retrieval result into the caller-facing outcome.
func Assemble(res Result, extraction models.RawExtraction, th Thresholds) models.ScanOutcome {
	th = th.withDefaults()
	if res.Verdict.Accepted {
		c := res.Verdict.Candidate
		return models.ScanOutcome{
			Candidates: []models.MatchedCard{{
				CardID:     c.CardID,
				Name:       c.Name,
				SetName:    c.SetName,
				SetCode:    c.SetCode,
				CardNumber: c.CardNumber,
				Rarity:     c.Rarity,
				ImageURL:   c.ImageURL,
				Price:      c.Price,
				Confidence: Bucket(res.Verdict.TotalScore, th),
				Score:      res.Verdict.TotalScore,
				Level:      res.Level,
			}},
			Raw: extraction,
		}
	}

	return models.ScanOutcome{
		Candidates: []models.MatchedCard{},
		Raw:        extraction,
		Error:      models.ScanErrorNotFound,
		Debug:      notFoundReport(res, extraction, th),
	}
}

// OCRFailed is the outcome for a scan whose extraction failed upstream.
func OCRFailed(extraction models.RawExtraction, cause string) models.ScanOutcome {
	report := &models.DebugReport{
		Reason: models.ScanErrorOCRFailed,
		Levels: []models.LevelReport{},
		Fields: extractedFields(extraction),
		Hints:  append([]string(nil), photoHints...),
	}
	report.Text = strings.Join([]string{
		"Text extraction failed: " + cause,
		fieldsBlock(report.Fields),
		hintsBlock(report.Hints),
	}, "\n\n")

	return models.ScanOutcome{
		Candidates: []models.MatchedCard{},
		Raw:        extraction,
		Error:      models.ScanErrorOCRFailed,
		Debug:      report,
	}
}

func notFoundReport(res Result, extraction models.RawExtraction, th Thresholds) *models.DebugReport {
	report := &models.DebugReport{
		Reason: string(res.Verdict.Reason),
		Levels: make([]models.LevelReport, 0, len(res.Trace)),
		Fields: extractedFields(extraction),
		Hints:  append([]string(nil), photoHints...),
	}

	lines := make([]string, 0, len(res.Trace))
	for _, lt := range res.Trace {
		report.Levels = append(report.Levels, levelReport(lt))
		lines = append(lines, "  - "+LevelSummary(lt))
	}
	if len(lines) == 0 {
		lines = append(lines, "  - "+res.Verdict.Detail)
	}

	report.Text = strings.Join([]string{
		fieldsBlock(report.Fields),
		fmt.Sprintf("No match with score >= %d (final reason: %s).\nLevels tried:\n%s",
			max(th.withDefaults().MinScore, 0), res.Verdict.Reason, strings.Join(lines, "\n")),
		hintsBlock(report.Hints),
	}, "\n\n")
	return report
}

func levelReport(lt LevelTrace) models.LevelReport {
	lr := models.LevelReport{
		Level:       lt.Level,
		Reason:      string(lt.Verdict.Reason),
		Skipped:     lt.Skipped,
		Considered:  len(lt.Verdict.Considered),
		BestScore:   lt.Verdict.BestScore(),
		Detail:      lt.Verdict.Detail,
		SearchError: lt.SearchError,
	}
	if lt.Verdict.Accepted {
		lr.Reason = "accepted"
		lr.Considered = 1
	}
	for _, sc := range lt.Verdict.Considered {
		lr.Top = append(lr.Top, models.CandidateSummary{
			CardID:     sc.CardID,
			Name:       sc.Name,
			CardNumber: sc.CardNumber,
			SetName:    sc.SetName,
			Score:      sc.TotalScore,
		})
	}
	return lr
}

func extractedFields(e models.RawExtraction) []string {
	show := func(label, v string) string {
		if strings.TrimSpace(v) == "" {
			return label + ": " + notDetected
		}
		return fmt.Sprintf("%s: '%s'", label, v)
	}
	return []string{
		show("Name", e.Name),
		show("Number", e.CardNumber),
		show("Set", e.SetName),
		show("Set code", e.SetCode),
		show("Rarity", e.Rarity),
	}
}

func fieldsBlock(fields []string) string {
	return "Extracted fields:\n  - " + strings.Join(fields, "\n  - ")
}

func hintsBlock(hints []string) string {
	var b strings.Builder
	b.WriteString("Suggestions:")
	for i, h := range hints {
		fmt.Fprintf(&b, "\n  %d. %s", i+1, h)
	}
	return b.String()
}
