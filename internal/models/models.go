package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerationRequest is the caller input for a single function generation
type GenerationRequest struct {
	Language          string `json:"language"`
	FunctionName      string `json:"functionName"`
	Parameters        string `json:"parameters"` // "name: type, name: type"
	ReturnType        string `json:"returnType"`
	Description       string `json:"description"`
	SecurityRequested bool   `json:"security"`
	TestsRequested    bool   `json:"tests"`
}

// Normalize trims surrounding whitespace from every text field
func (r GenerationRequest) Normalize() GenerationRequest {
	r.Language = strings.TrimSpace(r.Language)
	r.FunctionName = strings.TrimSpace(r.FunctionName)
	r.Parameters = strings.TrimSpace(r.Parameters)
	r.ReturnType = strings.TrimSpace(r.ReturnType)
	r.Description = strings.TrimSpace(r.Description)
	return r
}

// MissingFields lists the required fields that are empty after trimming
func (r GenerationRequest) MissingFields() []string {
	n := r.Normalize()
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"language", n.Language},
		{"functionName", n.FunctionName},
		{"parameters", n.Parameters},
		{"returnType", n.ReturnType},
		{"description", n.Description},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// ParsedParameter is one `name: type` entry of the parameters string
type ParsedParameter struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// SyntaxStatus is the outcome of a static syntax check
type SyntaxStatus string

const (
	SyntaxPassed SyntaxStatus = "Passed"
	SyntaxFailed SyntaxStatus = "Failed"
)

// GenerationResult is the structured form of an oracle reply
type GenerationResult struct {
	Description    string        `json:"description"`
	Implementation string        `json:"code"`
	Example        string        `json:"example"`
	TestCases      *string       `json:"testCases"`
	SyntaxStatus   *SyntaxStatus `json:"syntax_check"`
	Diagnostics    []Diagnostic  `json:"-"`
}

// Severity of a validator diagnostic
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is one finding reported by a syntax validator
type Diagnostic struct {
	Rule     string   `json:"rule"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Line     int      `json:"line"`
	Column   int      `json:"column"`
}

// ArchivedRecord is the append-only row written for each completed generation
type ArchivedRecord struct {
	ID                 uuid.UUID `json:"id"`
	Language           string    `json:"language"`
	FunctionName       string    `json:"function_name"`
	Parameters         string    `json:"parameters"`
	ReturnType         string    `json:"return_type"`
	Description        string    `json:"description"`
	Security           bool      `json:"security"`
	Tests              bool      `json:"tests"`
	Prompt             string    `json:"prompt"`
	GeneratedCode      string    `json:"generated_code"`
	DescriptionSection string    `json:"description_section"`
	ExampleSection     string    `json:"example_section"`
	TestCasesSection   *string   `json:"test_cases_section,omitempty"`
	SyntaxStatus       *string   `json:"syntax_status,omitempty"`
	Model              string    `json:"model"`
	RequestedBy        string    `json:"requested_by,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// NewArchivedRecord assembles the archive row for a finished pipeline run
func NewArchivedRecord(req GenerationRequest, prompt string, result *GenerationResult, model, requestedBy string) *ArchivedRecord {
	rec := &ArchivedRecord{
		ID:                 uuid.New(),
		Language:           req.Language,
		FunctionName:       req.FunctionName,
		Parameters:         req.Parameters,
		ReturnType:         req.ReturnType,
		Description:        req.Description,
		Security:           req.SecurityRequested,
		Tests:              req.TestsRequested,
		Prompt:             prompt,
		GeneratedCode:      result.Implementation,
		DescriptionSection: result.Description,
		ExampleSection:     result.Example,
		TestCasesSection:   result.TestCases,
		Model:              model,
		RequestedBy:        requestedBy,
		CreatedAt:          time.Now().UTC(),
	}
	if result.SyntaxStatus != nil {
		s := string(*result.SyntaxStatus)
		rec.SyntaxStatus = &s
	}
	return rec
}
