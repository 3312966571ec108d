// internal/workers/scan/scan-card/models.go
package scancard

import "card-scan-workers/internal/models"

type Input struct {
	ScanID   string `json:"scanId"`
	Image    string `json:"image"`
	MimeType string `json:"mimeType"`
}

type Output struct {
	ScanID     string             `json:"scanId"`
	Matched    bool               `json:"matched"`
	CardID     string             `json:"cardId,omitempty"`
	Confidence string             `json:"confidence,omitempty"`
	Error      string             `json:"scanError,omitempty"`
	Outcome    models.ScanOutcome `json:"outcome"`
}

const inputSchema = `{
  "type": "object",
  "required": ["image"],
  "properties": {
    "scanId":   {"type": "string", "maxLength": 64},
    "image":    {"type": "string", "minLength": 1},
    "mimeType": {"type": "string", "pattern": "^image/[a-z0-9.+-]+$"}
  }
}`
