// Package artifact defines the request model shared by the build cache.
//
// A Request names one output file the site needs: a transcoded track, an
// image variant, a procedural cover or a download archive. Requests carry the
// source fingerprints and the kind-specific parameters that determine the
// output bytes, and nothing else. Paths and labels are diagnostic only.
//
// The set of kinds is closed. Producers, key computation and the cache index
// all switch over Kind; adding a kind means touching each of them.
package artifact
