// Package trigger decides whether an analysis result should raise a notification
// and holds the persisted notification settings.
//
// Filters name the emotions of interest. Threshold values are stored and
// validated but a configured emotion matches at any score.
package trigger
