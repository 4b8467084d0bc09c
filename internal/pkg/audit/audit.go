package audit

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

type ctxKey struct{}

var logger = newLogger(os.Stdout)

func newLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{logrus.FieldKeyMsg: "action"},
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetOutput redirects the audit trail, e.g. to a file or a test buffer.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// WithCorrelationID attaches the request correlation id to ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func CorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Record writes one money-movement line.
func Record(ctx context.Context, action string, fields logrus.Fields) {
	entry := logger.WithField("audit", true)
	if id := CorrelationID(ctx); id != "" {
		entry = entry.WithField("correlation_id", id)
	}
	entry.WithFields(fields).Info(action)
}

// Anomaly records a state the ledger refused or could not reconcile automatically.
func Anomaly(ctx context.Context, action string, fields logrus.Fields) {
	entry := logger.WithField("audit", true)
	if id := CorrelationID(ctx); id != "" {
		entry = entry.WithField("correlation_id", id)
	}
	entry.WithFields(fields).Warn(action)
}
