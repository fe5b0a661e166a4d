// Package metrics provides a Prometheus-backed sink for download attempt
// records.
//
// The collector implements fetch.AttemptSink and follows Prometheus naming
// conventions: a namespaced attempts counter labeled by host and outcome,
// and a latency histogram labeled by host. Recording is a synchronous
// counter update, cheap enough for the download path's best-effort
// delivery contract.
package metrics
