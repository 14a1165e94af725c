package archive

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/funcgen/api/internal/metrics"
	"github.com/funcgen/api/internal/models"
)

var tracer = otel.Tracer("github.com/funcgen/api/internal/archive")

var ErrDispatcherClosed = errors.New("archive dispatcher is closed")

// Store persists one archived record
type Store interface {
	Name() string
	Save(ctx context.Context, rec *models.ArchivedRecord) error
}

// Dispatcher writes records to every configured sink in the background.
// Failures are logged and counted; they never reach the caller.
type Dispatcher struct {
	sinks   []Store
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher. timeout bounds each sink write.
func NewDispatcher(logger *zap.Logger, m *metrics.Metrics, timeout time.Duration, sinks ...Store) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		sinks:   sinks,
		timeout: timeout,
		logger:  logger,
		metrics: m,
	}
}

// Sinks lists the configured sink names
func (d *Dispatcher) Sinks() []string {
	names := make([]string, 0, len(d.sinks))
	for _, s := range d.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Dispatch schedules rec for archival and returns immediately. The write
// outlives ctx cancellation but keeps its values (trace, request id).
func (d *Dispatcher) Dispatch(ctx context.Context, rec *models.ArchivedRecord) {
	if len(d.sinks) == 0 {
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.Warn("Dropping archive record after shutdown", zap.String("record_id", rec.ID.String()))
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	go func() {
		defer d.wg.Done()
		for _, sink := range d.sinks {
			d.save(ctx, sink, rec)
		}
	}()
}

func (d *Dispatcher) save(ctx context.Context, sink Store, rec *models.ArchivedRecord) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "Archive")
	span.SetAttributes(attribute.String("archive.sink", sink.Name()))
	defer span.End()

	if err := sink.Save(ctx, rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "archive failed")
		d.metrics.ArchiveFailures.WithLabelValues(sink.Name()).Inc()
		d.logger.Error("Failed to archive generation",
			zap.String("sink", sink.Name()),
			zap.String("record_id", rec.ID.String()),
			zap.Error(err),
		)
		return
	}

	d.logger.Debug("Generation archived",
		zap.String("sink", sink.Name()),
		zap.String("record_id", rec.ID.String()),
	)
}

// Close stops accepting records and waits for in-flight writes or ctx
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
