package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/funcgen/api/internal/models"
)

const (
	StreamGenerations  = "GENERATIONS"
	SubjectArchived    = "generations.archived"
	subjectGenerations = "generations.>"
)

// Publisher is the part of nats.JetStreamContext the sink needs
type Publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// StreamManager creates streams; nats.JetStreamContext satisfies it
type StreamManager interface {
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

// GenerationEvent is the payload published for every archived generation
type GenerationEvent struct {
	ID           string  `json:"id"`
	Language     string  `json:"language"`
	FunctionName string  `json:"function_name"`
	Security     bool    `json:"security"`
	Tests        bool    `json:"tests"`
	SyntaxStatus *string `json:"syntax_status"`
	Model        string  `json:"model"`
	RequestedBy  string  `json:"requested_by,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

// GenerationSink publishes archived records to JetStream. The message id is
// the record id, so redelivery is deduplicated by the stream.
type GenerationSink struct {
	js Publisher
}

// EnsureStream creates the generations stream if it does not exist
func EnsureStream(sm StreamManager) error {
	_, err := sm.AddStream(&nats.StreamConfig{
		Name:     StreamGenerations,
		Subjects: []string{subjectGenerations},
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("add stream %s: %w", StreamGenerations, err)
	}
	return nil
}

func NewGenerationSink(js Publisher) *GenerationSink {
	return &GenerationSink{js: js}
}

func (s *GenerationSink) Name() string { return "nats" }

// Save publishes the event for rec
func (s *GenerationSink) Save(ctx context.Context, rec *models.ArchivedRecord) error {
	payload, err := json.Marshal(GenerationEvent{
		ID:           rec.ID.String(),
		Language:     rec.Language,
		FunctionName: rec.FunctionName,
		Security:     rec.Security,
		Tests:        rec.Tests,
		SyntaxStatus: rec.SyntaxStatus,
		Model:        rec.Model,
		RequestedBy:  rec.RequestedBy,
		CreatedAt:    rec.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal generation event: %w", err)
	}

	if _, err := s.js.Publish(SubjectArchived, payload, nats.Context(ctx), nats.MsgId(rec.ID.String())); err != nil {
		return fmt.Errorf("publish %s: %w", SubjectArchived, err)
	}
	return nil
}
