package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "taskflow/api"
	requestSpanName     = "taskflow.api.request"
	requestEventName    = "taskflow.request"
	requestEventDomain  = "taskflow.api"
	observabilityEvent  = "observability.event"
	attrPrefix          = "taskflow.request."
	metricsContextKey   = "taskflow.metrics"
)

// requestMetrics times one API request and reports it both as a span and
// as a structured log entry.
type requestMetrics struct {
	logger     log.FieldLogger
	span       trace.Span
	route      string
	method     string
	start      time.Time
	stages     []stageDuration
	attrs      []attribute.KeyValue
	errorStage string
}

type stageDuration struct {
	name string
	d    time.Duration
}

func newRequestMetrics(ctx context.Context, logger log.FieldLogger, method, route string) (*requestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(instrumentationName).Start(ctx, requestSpanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.route", route),
			attribute.String("http.method", method),
		),
	)
	return &requestMetrics{
		logger: logger,
		span:   span,
		route:  route,
		method: method,
		start:  time.Now(),
	}, spanCtx
}

// Observe records how long a named stage of the request took.
func (m *requestMetrics) Observe(stage string, duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.stages = append(m.stages, stageDuration{name: stage, d: duration})
}

func (m *requestMetrics) SetInt(name string, v int) {
	if m == nil {
		return
	}
	m.attrs = append(m.attrs, attribute.Int(attrPrefix+name, v))
}

func (m *requestMetrics) SetBool(name string, v bool) {
	if m == nil {
		return
	}
	m.attrs = append(m.attrs, attribute.Bool(attrPrefix+name, v))
}

func (m *requestMetrics) SetString(name, v string) {
	if m == nil {
		return
	}
	m.attrs = append(m.attrs, attribute.String(attrPrefix+name, v))
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if m == nil || stage == "" {
		return
	}
	m.errorStage = stage
}

// Log ends the span and emits the observability event.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("http.route", m.route),
		attribute.String("http.method", m.method),
		attribute.Int("http.status_code", status),
		attribute.Float64(attrPrefix+"total_ms", durationToMillis(time.Since(m.start))),
	}
	for _, s := range m.stages {
		attrs = append(attrs, attribute.Float64(attrPrefix+s.name+"_ms", durationToMillis(s.d)))
	}
	attrs = append(attrs, m.attrs...)
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String(attrPrefix+"error_stage", m.errorStage))
	}

	severityText, severityNumber := severityForStatus(status, err)
	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", requestEventName),
		attribute.String("event.domain", requestEventDomain),
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
	}, attrs...)
	if err != nil {
		eventAttrs = append(eventAttrs, attribute.String("error.message", err.Error()))
	}

	m.span.SetAttributes(attrs...)
	m.span.AddEvent(observabilityEvent, trace.WithAttributes(eventAttrs...))
	switch {
	case err != nil:
		m.span.RecordError(err)
		m.span.SetStatus(codes.Error, err.Error())
	case status >= http.StatusInternalServerError:
		m.span.SetStatus(codes.Error, http.StatusText(status))
	default:
		m.span.SetStatus(codes.Ok, "")
	}
	sc := m.span.SpanContext()
	m.span.End()

	if m.logger == nil {
		return
	}
	attrMap := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		attrMap[string(kv.Key)] = kv.Value.AsInterface()
	}
	fields := log.Fields{
		"event.name":      requestEventName,
		"event.domain":    requestEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attrMap,
	}
	if sc.HasTraceID() {
		fields["trace_id"] = sc.TraceID().String()
	}
	if sc.HasSpanID() {
		fields["span_id"] = sc.SpanID().String()
	}
	entry := m.logger.WithFields(fields)
	if err != nil {
		entry = entry.WithError(err)
	}
	switch severityText {
	case "ERROR":
		entry.Error(observabilityEvent)
	case "WARN":
		entry.Warn(observabilityEvent)
	default:
		entry.Info(observabilityEvent)
	}
}

// severityForStatus maps a response to OpenTelemetry log severity.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= http.StatusInternalServerError || (status == 0 && err != nil):
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

// requestMetricsMiddleware wraps every request in a requestMetrics that
// handlers can enrich through metricsFrom.
func requestMetricsMiddleware(logger log.FieldLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			m, ctx := newRequestMetrics(req.Context(), logger, req.Method, c.Path())
			c.SetRequest(req.WithContext(ctx))
			c.Set(metricsContextKey, m)

			err := next(c)
			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				} else if !c.Response().Committed {
					status = http.StatusInternalServerError
				}
			}
			m.Log(status, err)
			return err
		}
	}
}

// metricsFrom returns the request's metrics, or nil outside the middleware.
// All requestMetrics methods accept a nil receiver.
func metricsFrom(c echo.Context) *requestMetrics {
	m, _ := c.Get(metricsContextKey).(*requestMetrics)
	return m
}
