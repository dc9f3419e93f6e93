package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateImages(); err != nil {
		return err
	}
	if err := c.validateSite(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.CacheDir == "" {
		return errors.New("paths.cache_dir must be set")
	}
	return nil
}

func (c *Config) validateCache() error {
	if _, err := ParseRetentionPolicy(string(c.Cache.Retention)); err != nil {
		return fmt.Errorf("cache.retention: %w", err)
	}
	if c.Cache.GraceHours < 0 {
		return errors.New("cache.grace_hours must be >= 0")
	}
	if c.Cache.Workers < 0 {
		return errors.New("cache.workers must be >= 0 (0 selects the CPU count)")
	}
	return nil
}

func (c *Config) validateImages() error {
	if c.Images.JPEGQuality < 1 || c.Images.JPEGQuality > 100 {
		return fmt.Errorf("images.jpeg_quality must be between 1 and 100, got %d", c.Images.JPEGQuality)
	}
	return nil
}

func (c *Config) validateSite() error {
	switch c.Site.StreamingQuality {
	case "frugal", "standard":
	default:
		return fmt.Errorf("site.streaming_quality must be frugal or standard, got %q", c.Site.StreamingQuality)
	}
	if c.Site.RotateDownloadURLs && c.Site.URLSalt != "" {
		return errors.New("site.url_salt and site.rotate_download_urls are mutually exclusive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}
