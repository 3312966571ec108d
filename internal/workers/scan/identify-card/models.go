// internal/workers/scan/identify-card/models.go
package identifycard

import "card-scan-workers/internal/models"

// Input carries an extraction produced by an earlier workflow step.
type Input struct {
	ScanID     string               `json:"scanId"`
	Extraction models.RawExtraction `json:"extraction"`
}

type Output struct {
	ScanID     string             `json:"scanId"`
	Matched    bool               `json:"matched"`
	CardID     string             `json:"cardId,omitempty"`
	Confidence string             `json:"confidence,omitempty"`
	Score      int                `json:"score,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	Outcome    models.ScanOutcome `json:"outcome"`
}

const inputSchema = `{
  "type": "object",
  "required": ["extraction"],
  "properties": {
    "scanId": {"type": "string", "maxLength": 64},
    "extraction": {
      "type": "object",
      "properties": {
        "name":        {"type": "string", "maxLength": 200},
        "card_number": {"type": "string", "maxLength": 32},
        "set_name":    {"type": "string", "maxLength": 200},
        "set_code":    {"type": "string", "maxLength": 32},
        "rarity":      {"type": "string", "maxLength": 64},
        "language":    {"type": "string", "maxLength": 32}
      }
    }
  }
}`
