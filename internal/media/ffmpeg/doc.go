// Package ffmpeg assembles and runs ffmpeg transcode invocations.
//
// TranscodeArgs is pure and deterministic so the argument vector for a given
// source, target format and tag mapping can be asserted in tests. Run executes
// the tool and sorts failures into input errors (the source could not be
// decoded), missing-tool errors and generic tool errors carrying stderr.
package ffmpeg
