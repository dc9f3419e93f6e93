// Package config loads, normalizes, and validates sleeve configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the SLEEVE_CACHE_DIR environment
// override. The Config type centralizes every knob the cache, the producers and
// the CLI need, including the retention policy applied after each build.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, canonical policy names and clear validation errors.
package config
