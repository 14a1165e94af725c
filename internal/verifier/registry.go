package verifier

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/funcgen/api/internal/models"
)

// Validator statically checks source code of one language
type Validator interface {
	Validate(ctx context.Context, code string) ([]models.Diagnostic, error)
}

// ValidatorFunc adapts a plain function to the Validator interface
type ValidatorFunc func(ctx context.Context, code string) ([]models.Diagnostic, error)

func (f ValidatorFunc) Validate(ctx context.Context, code string) ([]models.Diagnostic, error) {
	return f(ctx, code)
}

// Registry maps language identifiers to validators. Languages without a
// registration are simply not checked.
type Registry struct {
	mu         sync.RWMutex
	validators map[string]Validator
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{validators: make(map[string]Validator)}
}

// NewDefaultRegistry registers every validator this service ships with
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	js := NewJavaScript()
	r.Register("javascript", js)
	r.Register("js", js)
	return r
}

func normalizeLanguage(language string) string {
	return strings.ToLower(strings.TrimSpace(language))
}

// Register binds a validator to a language identifier (case-insensitive)
func (r *Registry) Register(language string, v Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators[normalizeLanguage(language)] = v
}

// Lookup returns the validator registered for language
func (r *Registry) Lookup(language string) (Validator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.validators[normalizeLanguage(language)]
	return v, ok
}

// Languages lists registered identifiers
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	langs := make([]string, 0, len(r.validators))
	for l := range r.validators {
		langs = append(langs, l)
	}
	return langs
}

// Check runs the validator for language. It returns a nil status when the
// language has no validator.
func (r *Registry) Check(ctx context.Context, language, code string) (*models.SyntaxStatus, []models.Diagnostic, error) {
	v, ok := r.Lookup(language)
	if !ok {
		return nil, nil, nil
	}

	diags, err := v.Validate(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("validate %s: %w", normalizeLanguage(language), err)
	}

	status := Status(diags)
	return &status, diags, nil
}

// Status reports Failed when any diagnostic has error severity
func Status(diags []models.Diagnostic) models.SyntaxStatus {
	for _, d := range diags {
		if d.Severity == models.SeverityError {
			return models.SyntaxFailed
		}
	}
	return models.SyntaxPassed
}
