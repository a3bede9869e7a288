// Package archive stores inbound recordings: a local spool directory with
// age-based cleanup, and an optional Google Cloud Storage bucket.
package archive
