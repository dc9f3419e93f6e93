// Package producer turns artifact requests into payload files.
//
// Registry.Produce dispatches on the request kind to exactly one producer:
// audio transcodes through ffmpeg (optionally validated with ffprobe), image
// variants decoded and resampled in process, procedural covers rasterized
// from the track fingerprints, and zip archives assembled from already
// resolved dependency payloads. Producers write only into the work directory
// they are given; the cache store moves the result into place.
package producer
