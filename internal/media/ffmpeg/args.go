package ffmpeg

import (
	"sort"

	"sleeve/internal/artifact"
)

// TranscodeArgs returns the ffmpeg arguments (without the binary) that encode
// input into output as format, applying the tag mapping. sourceFamily is the
// container family of the input as reported by artifact.SourceFamily.
func TranscodeArgs(input, output, sourceFamily string, format artifact.AudioFormat, tags artifact.TagMapping) []string {
	args := []string{"-y", "-i", input}
	target := format.Family()

	switch tags.Mode {
	case artifact.TagsRemove:
		args = append(args, "-map_metadata", "-1", "-vn")
	case artifact.TagsCustom:
		args = append(args, "-map_metadata", "-1")
		keys := make([]string, 0, len(tags.Fields))
		for key := range tags.Fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			args = append(args, "-metadata", key+"="+tags.Fields[key])
		}
		args = append(args, "-vn")
		args = appendTagWriteFlags(args, target)
	default:
		// ffmpeg drops stream-level tags from ogg and opus sources unless they
		// are mapped explicitly, but mapping them between two ogg-family
		// containers loses them instead.
		if isOggFamily(sourceFamily) && !isOggFamily(target) {
			args = append(args, "-map_metadata", "0:s:a:0")
		}
		args = appendTagWriteFlags(args, target)
	}

	args = append(args, codecArgs(format)...)
	return append(args, output)
}

func isOggFamily(family string) bool {
	return family == "ogg_vorbis" || family == "opus"
}

// appendTagWriteFlags enables ID3v2 output for muxers that skip tags by
// default.
func appendTagWriteFlags(args []string, family string) []string {
	if family == "aac" || family == "aiff" {
		return append(args, "-write_id3v2", "1")
	}
	return args
}

// codecArgs selects encoder settings. Formats without an entry use the
// muxer's default encoder for the output extension.
func codecArgs(format artifact.AudioFormat) []string {
	switch format {
	case artifact.FormatALAC:
		return []string{"-vn", "-codec:a", "alac"}
	case artifact.FormatMP3V0:
		return []string{"-codec:a", "libmp3lame", "-qscale:a", "0"}
	case artifact.FormatMP3V5:
		return []string{"-codec:a", "libmp3lame", "-qscale:a", "5"}
	case artifact.FormatMP3V7:
		return []string{"-codec:a", "libmp3lame", "-qscale:a", "7"}
	case artifact.FormatOpus48:
		return []string{"-codec:a", "libopus", "-b:a", "48k"}
	case artifact.FormatOpus96:
		return []string{"-codec:a", "libopus", "-b:a", "96k"}
	case artifact.FormatOpus128:
		return []string{"-codec:a", "libopus", "-b:a", "128k"}
	default:
		return nil
	}
}

// RequiredEncoders lists the ffmpeg encoders the given formats depend on.
func RequiredEncoders(formats ...artifact.AudioFormat) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	for _, format := range formats {
		switch format.Family() {
		case "mp3":
			add("libmp3lame")
		case "opus":
			add("libopus")
		case "ogg_vorbis":
			add("libvorbis")
		case "alac":
			add("alac")
		case "aac":
			add("aac")
		case "flac":
			add("flac")
		}
	}
	sort.Strings(out)
	return out
}
