package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/funcgen/api/internal/metrics"
	"github.com/funcgen/api/internal/models"
	"github.com/funcgen/api/internal/verifier"
)

type mockOracle struct {
	CompleteFunc func(ctx context.Context, prompt string) (string, error)

	mu      sync.Mutex
	prompts []string
}

func (m *mockOracle) Complete(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	return m.CompleteFunc(ctx, prompt)
}

func (m *mockOracle) Model() string { return "gpt-4" }

func (m *mockOracle) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

type recordingArchiver struct {
	records []*models.ArchivedRecord
}

func (r *recordingArchiver) Dispatch(ctx context.Context, rec *models.ArchivedRecord) {
	r.records = append(r.records, rec)
}

func replying(reply string) *mockOracle {
	return &mockOracle{CompleteFunc: func(context.Context, string) (string, error) { return reply, nil }}
}

func validRequest() models.GenerationRequest {
	return models.GenerationRequest{
		Language:     "javascript",
		FunctionName: "add",
		Parameters:   "x: number, y: number",
		ReturnType:   "number",
		Description:  "Adds two numbers",
	}
}

const reply = "[DESCRIPTION]\nAdds numbers.\n[IMPLEMENTATION]\n```javascript\nfunction add(x, y) {\n  return x + y;\n}\n```\n[EXAMPLE]\nadd(1, 2);"

func newPipeline(o Completer, a Archiver) (*Pipeline, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())
	return New(o, verifier.NewDefaultRegistry(), a, m, zap.NewNop()), m
}

func TestGenerateHappyPath(t *testing.T) {
	oracle := replying(reply)
	archiver := &recordingArchiver{}
	p, m := newPipeline(oracle, archiver)

	res, err := p.Generate(context.Background(), validRequest(), Meta{RequestID: "req-1", RequestedBy: "user-7"})

	require.NoError(t, err)
	assert.Equal(t, "Adds numbers.", res.Description)
	assert.Equal(t, "function add(x, y) {\n  return x + y;\n}", res.Implementation)
	assert.Equal(t, "add(1, 2);", res.Example)
	assert.Nil(t, res.TestCases)
	require.NotNil(t, res.SyntaxStatus)
	assert.Equal(t, models.SyntaxPassed, *res.SyntaxStatus)

	assert.Equal(t, 1, oracle.calls())
	assert.True(t, strings.HasPrefix(oracle.prompts[0], "Write a function in javascript"))

	require.Len(t, archiver.records, 1)
	rec := archiver.records[0]
	assert.Equal(t, oracle.prompts[0], rec.Prompt)
	assert.Equal(t, res.Implementation, rec.GeneratedCode)
	assert.Equal(t, "gpt-4", rec.Model)
	assert.Equal(t, "user-7", rec.RequestedBy)
	require.NotNil(t, rec.SyntaxStatus)
	assert.Equal(t, "Passed", *rec.SyntaxStatus)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues(metrics.OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SyntaxChecks.WithLabelValues("javascript", "Passed")))
}

func TestGenerateRejectsMissingFieldsWithoutCallingOracle(t *testing.T) {
	for _, field := range []string{"language", "functionName", "parameters", "returnType", "description"} {
		t.Run(field, func(t *testing.T) {
			req := validRequest()
			switch field {
			case "language":
				req.Language = "  "
			case "functionName":
				req.FunctionName = ""
			case "parameters":
				req.Parameters = "\t"
			case "returnType":
				req.ReturnType = ""
			case "description":
				req.Description = " \n"
			}
			oracle := replying(reply)
			archiver := &recordingArchiver{}
			p, _ := newPipeline(oracle, archiver)

			_, err := p.Generate(context.Background(), req, Meta{})

			assert.ErrorIs(t, err, models.ErrValidation)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, []string{field}, verr.Fields)
			assert.Zero(t, oracle.calls())
			assert.Empty(t, archiver.records)
		})
	}
}

func TestGenerateTrimsFieldsBeforePrompting(t *testing.T) {
	oracle := replying(reply)
	p, _ := newPipeline(oracle, &recordingArchiver{})
	req := validRequest()
	req.Language = "  javascript "
	req.FunctionName = " add\t"

	_, err := p.Generate(context.Background(), req, Meta{})

	require.NoError(t, err)
	assert.Contains(t, oracle.prompts[0], "Write a function in javascript that")
	assert.Contains(t, oracle.prompts[0], "\nadd(x, y)\n")
}

func TestGenerateSurfacesOracleFailures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    error
		outcome string
	}{
		{"unavailable", fmt.Errorf("%w: dial tcp: connection refused", models.ErrUpstreamUnavailable), models.ErrUpstreamUnavailable, metrics.OutcomeUnavailable},
		{"timeout", fmt.Errorf("%w: deadline", models.ErrUpstreamTimeout), models.ErrUpstreamTimeout, metrics.OutcomeTimeout},
		{"unclassified", errors.New("boom"), models.ErrInternal, metrics.OutcomeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oracle := &mockOracle{CompleteFunc: func(context.Context, string) (string, error) { return "", tt.err }}
			archiver := &recordingArchiver{}
			p, m := newPipeline(oracle, archiver)

			res, err := p.Generate(context.Background(), validRequest(), Meta{})

			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.kind)
			assert.Empty(t, archiver.records, "nothing is archived without a reply")
			assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues(tt.outcome)))
		})
	}
}

func TestGenerateDegradedReplyStillSucceeds(t *testing.T) {
	archiver := &recordingArchiver{}
	p, _ := newPipeline(replying("I cannot help with that."), archiver)

	req := validRequest()
	req.TestsRequested = true
	res, err := p.Generate(context.Background(), req, Meta{})

	require.NoError(t, err)
	assert.Empty(t, res.Description)
	assert.Empty(t, res.Implementation)
	require.NotNil(t, res.TestCases)
	assert.Empty(t, *res.TestCases)
	assert.Len(t, archiver.records, 1)
}

func TestGenerateUnsupportedLanguageHasNoSyntaxStatus(t *testing.T) {
	archiver := &recordingArchiver{}
	p, _ := newPipeline(replying(reply), archiver)

	req := validRequest()
	req.Language = "python"
	res, err := p.Generate(context.Background(), req, Meta{})

	require.NoError(t, err)
	assert.Nil(t, res.SyntaxStatus)
	require.Len(t, archiver.records, 1)
	assert.Nil(t, archiver.records[0].SyntaxStatus)
}

func TestGenerateReportsFailedSyntax(t *testing.T) {
	p, _ := newPipeline(replying("[DESCRIPTION]\nd\n[IMPLEMENTATION]\nfunction f(x) { return x }\n[EXAMPLE]\nf(1);"), &recordingArchiver{})

	res, err := p.Generate(context.Background(), validRequest(), Meta{})

	require.NoError(t, err)
	require.NotNil(t, res.SyntaxStatus)
	assert.Equal(t, models.SyntaxFailed, *res.SyntaxStatus)
	assert.NotEmpty(t, res.Diagnostics)
}

type brokenChecker struct{}

func (brokenChecker) Check(context.Context, string, string) (*models.SyntaxStatus, []models.Diagnostic, error) {
	return nil, nil, errors.New("parser crashed")
}

func TestGenerateValidatorErrorLeavesStatusUnset(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	p := New(replying(reply), brokenChecker{}, &recordingArchiver{}, m, zap.NewNop())

	res, err := p.Generate(context.Background(), validRequest(), Meta{})

	require.NoError(t, err)
	assert.Nil(t, res.SyntaxStatus)
}

func TestGenerateIsIndependentAcrossRequests(t *testing.T) {
	oracle := replying(reply)
	p, _ := newPipeline(oracle, &recordingArchiver{})

	a := validRequest()
	b := validRequest()
	b.FunctionName = "sum"
	b.SecurityRequested = true

	_, err := p.Generate(context.Background(), a, Meta{})
	require.NoError(t, err)
	_, err = p.Generate(context.Background(), b, Meta{})
	require.NoError(t, err)

	assert.NotContains(t, oracle.prompts[0], "Security requirements")
	assert.Contains(t, oracle.prompts[1], "Security requirements")
}
