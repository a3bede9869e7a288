// Package scheduler runs periodic background jobs. Every job has its own
// goroutine and ticker. A job that fails or panics is logged and runs again on
// its next tick without affecting the other jobs.
package scheduler
