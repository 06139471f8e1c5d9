package api

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"coachhub/internal/adapters/http/perf"
)

// DefaultSlowUpstreamMs is the default threshold for slow upstream warnings.
const DefaultSlowUpstreamMs = 500

// idSegment matches path segments that are record ids (ObjectIDs, UUIDs, numbers).
var idSegment = regexp.MustCompile(`^([0-9a-fA-F]{24}|[0-9a-fA-F-]{36}|[0-9]+)$`)

// timedTransport logs and records every upstream round trip.
type timedTransport struct {
	next      http.RoundTripper
	collector *perf.Collector
	threshold float64
}

// newTimedTransport wraps next with timing instrumentation.
// PRE: none
// POST: Returns a RoundTripper that records to collector when non-nil
func newTimedTransport(next http.RoundTripper, collector *perf.Collector, slowMs int) *timedTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	if slowMs <= 0 {
		slowMs = DefaultSlowUpstreamMs
	}
	return &timedTransport{next: next, collector: collector, threshold: float64(slowMs)}
}

// RoundTrip implements http.RoundTripper.
func (t *timedTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(r)
	durationMs := float64(time.Since(start).Microseconds()) / 1000.0

	route := r.Method + " " + routeOf(r.URL.Path)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}

	switch {
	case err != nil:
		log.Warn().Err(err).Str("route", route).Float64("duration_ms", durationMs).Msg("upstream_failed")
	case durationMs >= t.threshold:
		log.Warn().Str("route", route).Int("status", status).Float64("duration_ms", durationMs).Msg("slow_upstream")
	default:
		log.Debug().Str("route", route).Int("status", status).Float64("duration_ms", durationMs).Msg("upstream")
	}

	if t.collector != nil {
		t.collector.Record(perf.Entry{
			Kind:       perf.KindUpstream,
			Path:       route,
			StatusCode: status,
			DurationMs: durationMs,
			Timestamp:  start,
		})
	}
	return resp, err
}

// routeOf replaces id segments with ":id" so stats group by endpoint.
func routeOf(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if idSegment.MatchString(p) {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}
