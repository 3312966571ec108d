package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	apperrors "card-scan-workers/internal/common/errors"
	"card-scan-workers/internal/common/logger"
	"card-scan-workers/internal/models"
)

const (
	pgDefaultLimit = 250
	// pgNameSimilarity is the pg_trgm similarity a name needs to be returned.
	// A one-letter OCR slip on a short name stays well above it.
	pgNameSimilarity = 0.3
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)

// PostgresSearcher reads a local mirror of the catalog. Names match by
// trigram similarity (the pg_trgm extension must be installed), set names
// case-insensitively and card numbers exactly.
type PostgresSearcher struct {
	db     *sql.DB
	table  string
	logger logger.Logger
}

func NewPostgresSearcher(db *sql.DB, table string, log logger.Logger) (*PostgresSearcher, error) {
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid catalog table name %q", table)
	}
	return &PostgresSearcher{
		db:     db,
		table:  table,
		logger: log.WithFields(map[string]interface{}{"backend": "postgres", "table": table}),
	}, nil
}

func (s *PostgresSearcher) Search(ctx context.Context, q models.CatalogQuery) ([]models.CandidateRecord, error) {
	query, args := s.buildSQL(q)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewCatalogQueryFailedError("postgres", err)
	}
	defer rows.Close()

	var records []models.CandidateRecord
	for rows.Next() {
		var (
			rec      models.CandidateRecord
			setCode  sql.NullString
			rarity   sql.NullString
			imageURL sql.NullString
			price    sql.NullFloat64
		)
		if err := rows.Scan(&rec.CardID, &rec.Name, &rec.SetName, &setCode, &rec.CardNumber, &rarity, &imageURL, &price); err != nil {
			return nil, apperrors.NewCatalogQueryFailedError("postgres", fmt.Errorf("scan row: %w", err))
		}
		rec.SetCode = setCode.String
		rec.Rarity = rarity.String
		rec.ImageURL = imageURL.String
		if price.Valid {
			rec.Price = &models.Price{Amount: price.Float64, Currency: "EUR"}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewCatalogQueryFailedError("postgres", err)
	}

	s.logger.Debug("postgres search completed", map[string]interface{}{
		"level": string(q.Level),
		"rows":  len(records),
	})
	return records, nil
}

func (s *PostgresSearcher) buildSQL(q models.CatalogQuery) (string, []interface{}) {
	var (
		where   []string
		args    []interface{}
		orderBy = "card_id"
	)
	bind := func(value interface{}) int {
		args = append(args, value)
		return len(args)
	}
	if name := strings.TrimSpace(q.Name); name != "" {
		n := bind(name)
		nameSim := fmt.Sprintf("similarity(lower(name), lower($%d))", n)
		where = append(where, fmt.Sprintf("%s >= $%d", nameSim, bind(pgNameSimilarity)))
		orderBy = nameSim + " DESC, card_id"
	}
	if q.CardNumber != "" {
		where = append(where, fmt.Sprintf("card_number = $%d", bind(strings.TrimSpace(q.CardNumber))))
	}
	if q.SetName != "" {
		where = append(where, fmt.Sprintf("lower(set_name) = lower($%d)", bind(strings.TrimSpace(q.SetName))))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT card_id, name, set_name, set_code, card_number, rarity, image_url, price_eur FROM %s", s.table)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	fmt.Fprintf(&b, " ORDER BY %s LIMIT $%d", orderBy, bind(limitOr(q.Limit, pgDefaultLimit)))
	return b.String(), args
}
