package artifact

import (
	"fmt"
	"strings"
)

// Kind identifies the producer responsible for a request.
type Kind string

const (
	KindTranscode Kind = "transcode"
	KindImage     Kind = "image"
	KindCover     Kind = "cover"
	KindArchive   Kind = "archive"
)

// Kinds lists every supported kind in scheduling order.
func Kinds() []Kind {
	return []Kind{KindTranscode, KindImage, KindCover, KindArchive}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindTranscode, KindImage, KindCover, KindArchive:
		return true
	default:
		return false
	}
}

// Composite reports whether requests of this kind consume other artifacts
// and therefore resolve after their dependencies.
func (k Kind) Composite() bool {
	return k == KindArchive
}

// ParseKind normalizes a kind name.
func ParseKind(value string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(value)))
	if !kind.Valid() {
		return "", fmt.Errorf("unknown artifact kind %q", value)
	}
	return kind, nil
}
