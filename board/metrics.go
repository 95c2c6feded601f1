package board

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName    = "nexflow/board"
	loadSpanName  = "board.load"
	moveSpanName  = "board.move"
	metricsLogMsg = "board.metrics"
)

// opMetrics records one engine operation as a span plus a structured log entry.
type opMetrics struct {
	logger     *log.Logger
	span       trace.Span
	op         string
	start      time.Time
	fields     log.Fields
	errorStage string
}

func startOp(ctx context.Context, logger *log.Logger, op, project string) (context.Context, *opMetrics) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, op,
		trace.WithAttributes(attribute.String("nexflow.project", project)))
	return ctx, &opMetrics{
		logger: logger,
		span:   span,
		op:     op,
		start:  time.Now(),
		fields: log.Fields{"op": op, "project": project},
	}
}

func (m *opMetrics) SetString(key, v string) {
	m.span.SetAttributes(attribute.String("nexflow."+key, v))
	m.fields[key] = v
}

func (m *opMetrics) SetInt(key string, v int) {
	m.span.SetAttributes(attribute.Int("nexflow."+key, v))
	m.fields[key] = v
}

func (m *opMetrics) SetBool(key string, v bool) {
	m.span.SetAttributes(attribute.Bool("nexflow."+key, v))
	m.fields[key] = v
}

func (m *opMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

// End closes the span and logs the operation. Errors log at warn level.
func (m *opMetrics) End(err error) {
	if m == nil {
		return
	}
	total := durationToMillis(time.Since(m.start))
	m.span.SetAttributes(attribute.Float64("nexflow.total_ms", total))
	m.fields["total_ms"] = total
	if m.errorStage != "" {
		m.span.SetAttributes(attribute.String("nexflow.error_stage", m.errorStage))
		m.fields["error_stage"] = m.errorStage
	}
	if err != nil {
		m.span.RecordError(err)
		m.span.SetStatus(codes.Error, err.Error())
		m.fields["error"] = err.Error()
	} else {
		m.span.SetStatus(codes.Ok, "")
	}
	if sc := m.span.SpanContext(); sc.HasTraceID() {
		m.fields["trace_id"] = sc.TraceID().String()
	}
	m.span.End()

	if m.logger == nil {
		return
	}
	entry := m.logger.WithFields(m.fields)
	if err != nil {
		entry.Warn(metricsLogMsg)
		return
	}
	entry.Info(metricsLogMsg)
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
