// Package ingest orchestrates the handling of one device upload or text
// submission: validation, spooling, analysis, statistics, trigger evaluation,
// notification and archiving. It also exposes the periodic memory and spool
// cleanup tasks run by the scheduler.
package ingest
