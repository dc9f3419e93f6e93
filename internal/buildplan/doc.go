// Package buildplan loads build plan files and expands them into artifact
// requests.
//
// A plan is a TOML document describing releases (their tracks, download
// formats, cover art and extra files) and standalone images. Loading only
// parses and checks the document; Expand fingerprints every source and turns
// each release into its streaming transcodes, download transcodes, one
// archive per download format and cover variants. Relative paths resolve
// against catalog_root, which itself defaults to the plan's directory.
package buildplan
