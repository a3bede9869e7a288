// Package notify implements the HTTP client for the companion app integration
// API: push notifications to a user and memory entries summarising detected
// emotions.
package notify
