// Package config provides configuration loading and validation for the emotion analysis service.
// It reads YAML settings, overlays credentials from the environment and validates every section.
package config
