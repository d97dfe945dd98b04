package backend

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const requestIDHeader = "X-Request-ID"

var (
	clientMeter              = otel.Meter("finboard/backend")
	clientRequestDuration, _ = clientMeter.Float64Histogram("http.client.request.duration",
		metric.WithDescription("Backend request duration in seconds"),
		metric.WithUnit("s"),
	)
	clientRequestTotal, _ = clientMeter.Int64Counter("http.client.request.total",
		metric.WithDescription("Total backend requests by status"),
	)
)

// instrumentedTransport tags every request with a request ID, logs it and
// records request metrics. Spans come from the otelhttp wrapper around it.
type instrumentedTransport struct {
	base   http.RoundTripper
	logger logrus.FieldLogger
}

func newInstrumentedTransport(base http.RoundTripper, logger logrus.FieldLogger) *instrumentedTransport {
	return &instrumentedTransport{base: base, logger: logger}
}

func (t *instrumentedTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	requestID := r.Header.Get(requestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
		// RoundTrippers must not modify the caller's request.
		r = r.Clone(r.Context())
		r.Header.Set(requestIDHeader, requestID)
	}

	start := time.Now()
	resp, err := t.base.RoundTrip(r)
	elapsed := time.Since(start)

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "network_error"
	case status >= 400:
		outcome = "http_error"
	}

	attrs := metric.WithAttributes(
		attribute.String("http.method", r.Method),
		attribute.String("http.route", r.URL.Path),
		attribute.Int("http.status_code", status),
		attribute.String("outcome", outcome),
	)
	clientRequestDuration.Record(r.Context(), elapsed.Seconds(), attrs)
	clientRequestTotal.Add(r.Context(), 1, attrs)

	entry := t.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"method":     r.Method,
		"path":       r.URL.Path,
		"status":     status,
		"elapsed":    elapsed.String(),
	})
	if err != nil {
		entry.WithError(err).Debug("Backend request failed")
	} else {
		entry.Debug("Backend request")
	}

	return resp, err
}
