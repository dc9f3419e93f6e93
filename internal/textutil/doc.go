// Package textutil formats and sanitizes strings for file names, archive
// members and operator output.
package textutil
