// Package prometheus renders engine metrics for Prometheus scrapes.
//
// [NewPrometheusExporter] accepts a [dreamerauth.Engine] and exposes an
// [http.Handler] that writes all counters and histograms in text
// exposition format. Counter names are prefixed dreamerauth_*_total; the
// single histogram is dreamerauth_authenticate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry; callers mount the
//     Handler themselves.
//   - Mutate engine state.
package prometheus
