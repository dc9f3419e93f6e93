package artifact

// Schema versions are folded into every content key. Bump the constant for a
// kind whenever its producer would write different bytes for the same inputs
// (codec arguments, tag handling, encoder settings, container layout). Every
// cached entry of that kind then misses and ages out through the normal
// retention policy.
const (
	TranscodeSchemaVersion = 4
	ImageSchemaVersion     = 2
	CoverSchemaVersion     = 1
	ArchiveSchemaVersion   = 1
)

// SchemaVersion returns the current schema version for kind, or 0 when the
// kind is unknown.
func SchemaVersion(kind Kind) int {
	switch kind {
	case KindTranscode:
		return TranscodeSchemaVersion
	case KindImage:
		return ImageSchemaVersion
	case KindCover:
		return CoverSchemaVersion
	case KindArchive:
		return ArchiveSchemaVersion
	default:
		return 0
	}
}
