// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect runs ffprobe and decodes streams and container metadata; the
// Result helpers answer the questions the transcode producer asks of its
// output (is there an audio stream, how long is it) and keep the raw JSON so
// the cache can store it beside the payload.
package ffprobe
