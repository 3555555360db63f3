// Package infra contains the adapters behind the core interfaces: the
// TraCI client and launcher, metrics sinks, CSV and chart writers, the
// summary store, the run journal and the MQTT progress publisher.
package infra
