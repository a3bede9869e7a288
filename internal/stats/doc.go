// Package stats keeps the in-memory counters reported by the status endpoint
// and summarised into periodic memories. All methods are safe for concurrent use.
package stats
