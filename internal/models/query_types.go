// internal/models/query_types.go
package models

import (
	"fmt"
	"strings"
)

// QueryLevel names a catalog search strategy, from most to least specific.
type QueryLevel string

const (
	QueryLevelFull       QueryLevel = "full"
	QueryLevelNoSet      QueryLevel = "no_set"
	QueryLevelNumberOnly QueryLevel = "number_only"
	QueryLevelNameSet    QueryLevel = "name_set"
	QueryLevelNameOnly   QueryLevel = "name_only"
)

// DefaultQueryLevels is the retrieval order used when none is configured.
var DefaultQueryLevels = []QueryLevel{QueryLevelFull, QueryLevelNoSet, QueryLevelNumberOnly}

// ParseQueryLevel maps a configured level name to a QueryLevel.
func ParseQueryLevel(s string) (QueryLevel, error) {
	switch l := QueryLevel(strings.ToLower(strings.TrimSpace(s))); l {
	case QueryLevelFull, QueryLevelNoSet, QueryLevelNumberOnly, QueryLevelNameSet, QueryLevelNameOnly:
		return l, nil
	default:
		return "", fmt.Errorf("unknown query level %q", s)
	}
}

// CatalogQuery is the set of extraction fields sent to a catalog backend for
// one query level. Empty fields are not constrained.
type CatalogQuery struct {
	Level      QueryLevel `json:"level"`
	Name       string     `json:"name,omitempty"`
	CardNumber string     `json:"card_number,omitempty"`
	SetName    string     `json:"set_name,omitempty"`
	Limit      int        `json:"limit"`
}

// Key is the cache key of the query. Values are lowercased and
// whitespace-collapsed so equivalent extractions share cached results.
func (q CatalogQuery) Key() string {
	norm := func(s string) string {
		return strings.Join(strings.Fields(strings.ToLower(s)), " ")
	}
	return fmt.Sprintf("%s|name=%s|number=%s|set=%s|limit=%d",
		q.Level, norm(q.Name), norm(q.CardNumber), norm(q.SetName), q.Limit)
}
