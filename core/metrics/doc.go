// Package metrics defines the sinks that receive live run metrics. Sinks
// like the Prometheus and InfluxDB ones in infra/metrics record corridor
// step metrics, run status changes and run summaries. The factory helpers
// return a MultiSink automatically when several sinks are configured.
package metrics
