package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/funcgen/api/internal/models"
)

const insertPostgres = `
	INSERT INTO generations (
		id, language, function_name, parameters, return_type, description,
		security, tests, prompt, generated_code, description_section,
		example_section, test_cases_section, syntax_status, model,
		requested_by, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
`

// Execer is the subset of *pgxpool.Pool used by PostgresStore
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// PostgresStore appends records to the generations table
type PostgresStore struct {
	db Execer
}

func NewPostgresStore(db Execer) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Name() string { return "postgres" }

func (s *PostgresStore) Save(ctx context.Context, rec *models.ArchivedRecord) error {
	_, err := s.db.Exec(ctx, insertPostgres, recordArgs(rec, rec.ID)...)
	if err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// recordArgs returns the insert arguments in column order
func recordArgs(rec *models.ArchivedRecord, id any) []any {
	return []any{
		id,
		rec.Language,
		rec.FunctionName,
		rec.Parameters,
		rec.ReturnType,
		rec.Description,
		rec.Security,
		rec.Tests,
		rec.Prompt,
		rec.GeneratedCode,
		rec.DescriptionSection,
		rec.ExampleSection,
		rec.TestCasesSection,
		rec.SyntaxStatus,
		rec.Model,
		nullable(rec.RequestedBy),
		rec.CreatedAt,
	}
}
