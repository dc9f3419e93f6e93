package artifact

import (
	"fmt"
	"strings"
)

// AudioFormat is a target encoding for a transcode request.
type AudioFormat string

const (
	FormatAAC       AudioFormat = "aac"
	FormatAIFF      AudioFormat = "aiff"
	FormatALAC      AudioFormat = "alac"
	FormatFLAC      AudioFormat = "flac"
	FormatMP3V0     AudioFormat = "mp3_v0"
	FormatMP3V5     AudioFormat = "mp3_v5"
	FormatMP3V7     AudioFormat = "mp3_v7"
	FormatOggVorbis AudioFormat = "ogg_vorbis"
	FormatOpus48    AudioFormat = "opus_48"
	FormatOpus96    AudioFormat = "opus_96"
	FormatOpus128   AudioFormat = "opus_128"
	FormatWAV       AudioFormat = "wav"
)

var audioFormatAliases = map[string]AudioFormat{
	"aac":        FormatAAC,
	"aiff":       FormatAIFF,
	"alac":       FormatALAC,
	"flac":       FormatFLAC,
	"mp3":        FormatMP3V0,
	"mp3_v0":     FormatMP3V0,
	"mp3_v5":     FormatMP3V5,
	"mp3_v7":     FormatMP3V7,
	"ogg_vorbis": FormatOggVorbis,
	"opus":       FormatOpus128,
	"opus_48":    FormatOpus48,
	"opus_96":    FormatOpus96,
	"opus_128":   FormatOpus128,
	"wav":        FormatWAV,
}

// ParseAudioFormat accepts canonical names and the download aliases used in
// catalog manifests ("mp3" is V0, "opus" is 128 kbps).
func ParseAudioFormat(value string) (AudioFormat, error) {
	key := strings.ToLower(strings.TrimSpace(value))
	key = strings.ReplaceAll(key, "-", "_")
	if format, ok := audioFormatAliases[key]; ok {
		return format, nil
	}
	return "", fmt.Errorf("unknown audio format %q", value)
}

// Valid reports whether f is a known format.
func (f AudioFormat) Valid() bool {
	return f.Extension() != ""
}

// Extension returns the file extension including the leading dot.
func (f AudioFormat) Extension() string {
	switch f {
	case FormatAAC:
		return ".aac"
	case FormatAIFF:
		return ".aiff"
	case FormatALAC:
		return ".m4a"
	case FormatFLAC:
		return ".flac"
	case FormatMP3V0, FormatMP3V5, FormatMP3V7:
		return ".mp3"
	case FormatOggVorbis:
		return ".ogg"
	case FormatOpus48, FormatOpus96, FormatOpus128:
		return ".opus"
	case FormatWAV:
		return ".wav"
	default:
		return ""
	}
}

// Lossless reports whether the format preserves the source samples.
func (f AudioFormat) Lossless() bool {
	switch f {
	case FormatAIFF, FormatALAC, FormatFLAC, FormatWAV:
		return true
	default:
		return false
	}
}

// Family groups formats that share a container, e.g. all opus bitrates.
func (f AudioFormat) Family() string {
	switch f {
	case FormatMP3V0, FormatMP3V5, FormatMP3V7:
		return "mp3"
	case FormatOpus48, FormatOpus96, FormatOpus128:
		return "opus"
	default:
		return string(f)
	}
}

// SourceFamily guesses the container family of a source file from its
// extension. Unknown extensions return an empty string.
func SourceFamily(path string) string {
	lower := strings.ToLower(path)
	idx := strings.LastIndex(lower, ".")
	if idx < 0 {
		return ""
	}
	switch lower[idx:] {
	case ".aac":
		return "aac"
	case ".aif", ".aifc", ".aiff":
		return "aiff"
	case ".m4a", ".alac":
		return "alac"
	case ".flac":
		return "flac"
	case ".mp3":
		return "mp3"
	case ".ogg", ".oga":
		return "ogg_vorbis"
	case ".opus":
		return "opus"
	case ".wav":
		return "wav"
	default:
		return ""
	}
}

// StreamingQuality selects the fixed set of formats produced for in-browser
// playback.
type StreamingQuality string

const (
	StreamingFrugal   StreamingQuality = "frugal"
	StreamingStandard StreamingQuality = "standard"
)

// ParseStreamingQuality normalizes a streaming quality name. An empty value
// selects the standard set.
func ParseStreamingQuality(value string) (StreamingQuality, error) {
	switch StreamingQuality(strings.ToLower(strings.TrimSpace(value))) {
	case StreamingFrugal:
		return StreamingFrugal, nil
	case StreamingStandard, "":
		return StreamingStandard, nil
	default:
		return "", fmt.Errorf("unknown streaming quality %q", value)
	}
}

// StreamingFormats returns the playback formats for q. The result does not
// depend on which download formats a release offers: playback favours small
// files and broad browser support, downloads favour whatever the artist picked.
func StreamingFormats(q StreamingQuality) []AudioFormat {
	if q == StreamingFrugal {
		return []AudioFormat{FormatOpus48, FormatMP3V7}
	}
	return []AudioFormat{FormatOpus96, FormatMP3V5}
}
