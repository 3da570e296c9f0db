// Package config loads, normalizes, and validates VidSlide configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// VIDSLIDE_API_TOKEN. The Config type centralizes every knob the daemon and CLI
// need, including the default extraction parameters new batches start with.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
