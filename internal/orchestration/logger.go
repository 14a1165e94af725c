package orchestration

import (
	"go.temporal.io/sdk/log"
	"go.uber.org/zap"
)

// zapAdapter routes Temporal SDK logs through zap
type zapAdapter struct {
	l *zap.SugaredLogger
}

var _ log.Logger = (*zapAdapter)(nil)

func newZapAdapter(logger *zap.Logger) *zapAdapter {
	return &zapAdapter{l: logger.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (z *zapAdapter) Debug(msg string, keyvals ...interface{}) { z.l.Debugw(msg, keyvals...) }
func (z *zapAdapter) Info(msg string, keyvals ...interface{})  { z.l.Infow(msg, keyvals...) }
func (z *zapAdapter) Warn(msg string, keyvals ...interface{})  { z.l.Warnw(msg, keyvals...) }
func (z *zapAdapter) Error(msg string, keyvals ...interface{}) { z.l.Errorw(msg, keyvals...) }
