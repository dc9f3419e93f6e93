// Package contentkey derives the identity of cached artifacts.
//
// A Key is a keyed BLAKE3 digest over the artifact kind, the kind's schema
// version, the fingerprints of every source file, the deterministic CBOR
// encoding of the full parameter set and, for composite artifacts, the keys of
// every dependency. Equal inputs always give equal keys; changing any byte of
// a source or any parameter field changes the key.
//
// Source fingerprints hash file content. Modification times never enter a
// key; the optional Memo only uses them to skip rehashing files that have not
// changed since the last build.
//
// Every digest in this package is computed under its own domain key so a
// source fingerprint can never be confused with a content key or a payload
// name even when the hashed bytes coincide.
package contentkey
