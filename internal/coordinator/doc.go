// Package coordinator resolves a build's artifact requests against the cache.
//
// Run keys every request, reuses cached payloads, and produces the rest on a
// bounded worker pool. Leaf artifacts and every dependency of a composite are
// resolved first; composites run only once all of their dependencies have a
// payload. Requests that share a content key within one run are produced
// once and share the outcome.
//
// By default the first failure stops dispatch: work that has not started is
// skipped while work already running finishes and is cached. With
// ContinueOnError every request is attempted, except that a resource failure
// (disk full, permission denied) always stops the build.
package coordinator
