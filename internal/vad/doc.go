// Package vad provides an energy-based voice activity gate used to skip
// windows that carry no speech before they reach the inference API.
package vad
