// Package server implements the HTTP API of the emotion analysis service.
// It receives device uploads and text submissions, exposes status, statistics
// and notification settings, and serves Prometheus metrics.
package server
