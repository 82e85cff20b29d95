// Package metrics exposes relay counters and timings to Prometheus.
package metrics
