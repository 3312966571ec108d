// internal/models/card.go
package models

import "strings"

// RawExtraction holds the text fields read from one card photo. Fields are
// empty strings when the extractor could not read them, never absent.
type RawExtraction struct {
	Name       string `json:"name"`
	CardNumber string `json:"card_number"`
	SetName    string `json:"set_name"`
	SetCode    string `json:"set_code"`
	Rarity     string `json:"rarity"`
	Language   string `json:"language"`
}

// Trimmed returns a copy with surrounding whitespace removed from every field.
func (e RawExtraction) Trimmed() RawExtraction {
	return RawExtraction{
		Name:       strings.TrimSpace(e.Name),
		CardNumber: strings.TrimSpace(e.CardNumber),
		SetName:    strings.TrimSpace(e.SetName),
		SetCode:    strings.TrimSpace(e.SetCode),
		Rarity:     strings.TrimSpace(e.Rarity),
		Language:   strings.TrimSpace(e.Language),
	}
}

// IsEmpty reports whether no identifying field was extracted.
func (e RawExtraction) IsEmpty() bool {
	t := e.Trimmed()
	return t.Name == "" && t.CardNumber == "" && t.SetName == "" && t.SetCode == "" && t.Rarity == ""
}

// Price is a currency-tagged market price.
type Price struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// CandidateRecord is one catalog entry returned by a catalog search.
type CandidateRecord struct {
	CardID     string `json:"card_id"`
	Name       string `json:"name"`
	SetName    string `json:"set_name"`
	SetCode    string `json:"set_code"`
	CardNumber string `json:"card_number"`
	Rarity     string `json:"rarity"`
	ImageURL   string `json:"image_url,omitempty"`
	Price      *Price `json:"price,omitempty"`
}
