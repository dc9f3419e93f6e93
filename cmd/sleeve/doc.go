// Package main hosts the sleeve CLI entrypoint and command graph.
//
// The Cobra command tree runs build generations from plan files and exposes
// cache maintenance: usage statistics, entry listings, manual optimization
// and a full clear. Configuration is resolved lazily once per invocation so
// commands that only scaffold files never need a valid config.
//
// Keep this package lean: behaviour lives in the internal packages and the
// commands here only wire them together and render their results.
package main
