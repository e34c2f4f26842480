// Package config loads, normalizes, and validates feedcaster configuration.
//
// Configuration lives in a TOML file with run-wide sections (paths, pipeline,
// providers, audio, ingest, lock, notifications) and one [[shows]] entry per
// podcast. Load applies defaults, expands ~ paths, fills secrets from
// environment variables, and validates the run-wide settings. Each show is
// validated on its own so a misconfigured show only affects itself.
package config
