package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/funcgen/api/internal/metrics"
	"github.com/funcgen/api/internal/models"
	"github.com/funcgen/api/internal/prompt"
	"github.com/funcgen/api/internal/sections"
)

var tracer = otel.Tracer("github.com/funcgen/api/internal/pipeline")

// Stage names a step of a generation run. Stages are never revisited.
type Stage string

const (
	StageValidating         Stage = "Validating"
	StageBuildingPrompt     Stage = "BuildingPrompt"
	StageAwaitingCompletion Stage = "AwaitingCompletion"
	StageParsing            Stage = "Parsing"
	StageValidatingSyntax   Stage = "ValidatingSyntax"
	StageArchiving          Stage = "Archiving"
	StageResponding         Stage = "Responding"
)

// Completer returns the raw reply of the completion service for a prompt
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Model() string
}

// SyntaxChecker returns a nil status for languages it cannot check
type SyntaxChecker interface {
	Check(ctx context.Context, language, code string) (*models.SyntaxStatus, []models.Diagnostic, error)
}

// Archiver accepts a record for best-effort background persistence
type Archiver interface {
	Dispatch(ctx context.Context, rec *models.ArchivedRecord)
}

// Meta carries request-scoped values that are not part of the request body
type Meta struct {
	RequestID   string
	RequestedBy string
}

// Pipeline runs one generation per call and keeps no per-request state
type Pipeline struct {
	oracle   Completer
	checker  SyntaxChecker
	archiver Archiver
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func New(oracle Completer, checker SyntaxChecker, archiver Archiver, m *metrics.Metrics, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		oracle:   oracle,
		checker:  checker,
		archiver: archiver,
		metrics:  m,
		logger:   logger,
	}
}

// ValidationError lists the required fields that were empty
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Unwrap() error { return models.ErrValidation }

// Generate validates req, asks the completion service for an implementation
// and returns the structured result. Errors wrap a models failure kind.
func (p *Pipeline) Generate(ctx context.Context, req models.GenerationRequest, meta Meta) (result *models.GenerationResult, err error) {
	ctx, span := tracer.Start(ctx, "Generate")
	defer span.End()

	log := p.logger.With(zap.String("request_id", meta.RequestID))
	defer func() {
		outcome := outcomeOf(err)
		p.metrics.Requests.WithLabelValues(outcome).Inc()
		span.SetAttributes(attribute.String("generation.outcome", outcome))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		log.Debug("Pipeline stage", zap.String("stage", string(StageResponding)), zap.String("outcome", outcome))
	}()

	// Validating
	_, s := p.enter(ctx, log, StageValidating)
	req = req.Normalize()
	missing := req.MissingFields()
	s.End()
	if len(missing) > 0 {
		return nil, &ValidationError{Fields: missing}
	}
	span.SetAttributes(
		attribute.String("generation.language", req.Language),
		attribute.Bool("generation.security", req.SecurityRequested),
		attribute.Bool("generation.tests", req.TestsRequested),
	)

	// BuildingPrompt
	_, s = p.enter(ctx, log, StageBuildingPrompt)
	params := prompt.ParseParameters(req.Parameters)
	instruction := prompt.Build(req, params)
	s.End()

	// AwaitingCompletion
	callCtx, s := p.enter(ctx, log, StageAwaitingCompletion)
	start := time.Now()
	reply, err := p.oracle.Complete(callCtx, instruction)
	p.metrics.OracleDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.RecordError(err)
		s.End()
		if !hasKind(err) {
			err = fmt.Errorf("%w: %w", models.ErrInternal, err)
		}
		log.Warn("Completion failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return nil, err
	}
	s.End()

	// Parsing
	_, s = p.enter(ctx, log, StageParsing)
	result = sections.Split(reply, req.TestsRequested)
	s.End()

	// ValidatingSyntax
	checkCtx, s := p.enter(ctx, log, StageValidatingSyntax)
	status, diags, checkErr := p.checker.Check(checkCtx, req.Language, result.Implementation)
	switch {
	case checkErr != nil:
		s.RecordError(checkErr)
		log.Warn("Syntax validation failed, leaving status unset", zap.Error(checkErr))
	case status != nil:
		result.SyntaxStatus = status
		result.Diagnostics = diags
		p.metrics.SyntaxChecks.WithLabelValues(strings.ToLower(req.Language), string(*status)).Inc()
		log.Debug("Syntax checked", zap.String("status", string(*status)), zap.Int("diagnostics", len(diags)))
	}
	s.End()

	// Archiving
	_, s = p.enter(ctx, log, StageArchiving)
	p.archiver.Dispatch(ctx, models.NewArchivedRecord(req, instruction, result, p.oracle.Model(), meta.RequestedBy))
	s.End()

	return result, nil
}

func (p *Pipeline) enter(ctx context.Context, log *zap.Logger, stage Stage) (context.Context, trace.Span) {
	log.Debug("Pipeline stage", zap.String("stage", string(stage)))
	return tracer.Start(ctx, string(stage))
}

var kinds = []error{
	models.ErrValidation,
	models.ErrUpstreamUnavailable,
	models.ErrUpstreamTimeout,
	models.ErrCanceled,
	models.ErrInternal,
}

func hasKind(err error) bool {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, models.ErrValidation):
		return metrics.OutcomeInvalid
	case errors.Is(err, models.ErrUpstreamUnavailable):
		return metrics.OutcomeUnavailable
	case errors.Is(err, models.ErrUpstreamTimeout):
		return metrics.OutcomeTimeout
	case errors.Is(err, models.ErrCanceled):
		return metrics.OutcomeCanceled
	default:
		return metrics.OutcomeError
	}
}
