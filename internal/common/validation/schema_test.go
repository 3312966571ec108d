package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `{
  "type": "object",
  "required": ["extraction"],
  "properties": {
    "scanId": {"type": "string"},
    "extraction": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": {"type": "string"},
        "card_number": {"type": "string", "maxLength": 16}
      }
    }
  }
}`

func TestSchema_Valid(t *testing.T) {
	s := MustCompile(testSchema)

	result := s.ValidateJSON(`{"extraction": {"name": "Pikachu", "card_number": "58"}}`)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Error())
}

func TestSchema_Errors(t *testing.T) {
	s := MustCompile(testSchema)

	tests := []struct {
		name  string
		doc   string
		field string
		code  string
	}{
		{"missing root property", `{}`, "extraction", "REQUIRED"},
		{"missing nested property", `{"extraction": {}}`, "extraction.name", "REQUIRED"},
		{"wrong type", `{"extraction": {"name": 25}}`, "extraction.name", "INVALID_TYPE"},
		{"too long", `{"extraction": {"name": "Mew", "card_number": "12345678901234567"}}`, "extraction.card_number", "STRING_LTE"},
		{"not json", `{"extraction":`, "(root)", "INVALID_JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := s.ValidateJSON(tt.doc)
			require.False(t, result.Valid)
			require.NotEmpty(t, result.Errors)
			assert.Equal(t, tt.field, result.Errors[0].Field)
			assert.Equal(t, tt.code, result.Errors[0].Code)
			assert.Contains(t, result.Error(), tt.field)
		})
	}
}

func TestSchema_ValidateInput(t *testing.T) {
	s := MustCompile(testSchema)
	result := s.ValidateInput(map[string]interface{}{
		"extraction": map[string]interface{}{"name": "Mew"},
	})
	assert.True(t, result.Valid)
}

func TestCompile_BadSchema(t *testing.T) {
	_, err := Compile(`{"type": 12}`)
	assert.Error(t, err)
	assert.Panics(t, func() { MustCompile(`not json`) })
}
