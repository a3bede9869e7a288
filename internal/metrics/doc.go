// Package metrics exposes Prometheus instrumentation for the emotion analysis service.
package metrics
