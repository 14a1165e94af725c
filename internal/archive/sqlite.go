package archive

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/funcgen/api/internal/models"
)

const insertSQLite = `
	INSERT INTO generations (
		id, language, function_name, parameters, return_type, description,
		security, tests, prompt, generated_code, description_section,
		example_section, test_cases_section, syntax_status, model,
		requested_by, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const selectSQLite = `
	SELECT id, language, function_name, parameters, return_type, description,
		security, tests, prompt, generated_code, description_section,
		example_section, test_cases_section, syntax_status, model,
		requested_by, created_at
	FROM generations
	ORDER BY created_at DESC
	LIMIT ?
`

// SQLiteStore appends records to a local SQLite database. The schema is
// created by database.OpenSQLite.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Name() string { return "sqlite" }

func (s *SQLiteStore) Save(ctx context.Context, rec *models.ArchivedRecord) error {
	if _, err := s.db.ExecContext(ctx, insertSQLite, recordArgs(rec, rec.ID.String())...); err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}
	return nil
}

// Recent returns the newest records first
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]models.ArchivedRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectSQLite, limit)
	if err != nil {
		return nil, fmt.Errorf("query generations: %w", err)
	}
	defer rows.Close()

	var out []models.ArchivedRecord
	for rows.Next() {
		var (
			rec         models.ArchivedRecord
			id          string
			requestedBy sql.NullString
		)
		if err := rows.Scan(
			&id, &rec.Language, &rec.FunctionName, &rec.Parameters, &rec.ReturnType, &rec.Description,
			&rec.Security, &rec.Tests, &rec.Prompt, &rec.GeneratedCode, &rec.DescriptionSection,
			&rec.ExampleSection, &rec.TestCasesSection, &rec.SyntaxStatus, &rec.Model,
			&requestedBy, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse generation id: %w", err)
		}
		rec.RequestedBy = requestedBy.String
		out = append(out, rec)
	}
	return out, rows.Err()
}
