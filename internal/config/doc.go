// Package config loads, normalizes, and validates framepipe configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// FRAMEPIPE_WORKERS. The Config type centralizes the execution settings, the
// processor chain selection, and the state/log locations so the CLI and the
// pipeline discover them in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical modes, and clear validation errors.
package config
