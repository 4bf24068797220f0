package collector

import (
	"net/http"
	"strconv"
	"time"

	"github.com/atlet99/metric-alert-engine/internal/monitoring"
)

// Middleware records response_time in milliseconds, request_count and, for
// statuses of 400 and above, error_count for every request
func Middleware(sink Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := monitoring.NewResponseWriter(w)

			next.ServeHTTP(rw, r)

			elapsed := float64(time.Since(start).Microseconds()) / 1000
			tags := map[string]string{
				"endpoint": monitoring.RouteLabel(r),
				"method":   r.Method,
				"status":   strconv.Itoa(rw.StatusCode),
			}
			sink.Record(MetricResponseTime, elapsed, tags)
			sink.Record(MetricRequestCount, 1, tags)
			if rw.StatusCode >= http.StatusBadRequest {
				sink.Record(MetricErrorCount, 1, tags)
			}
		})
	}
}
