package artifact

import (
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Fingerprint is the content hash of a source file.
type Fingerprint [32]byte

// IsZero reports whether the fingerprint was never computed.
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Source is one input file of a request. Path is used to read the file and to
// name it in diagnostics; only Fingerprint participates in the content key.
type Source struct {
	Path        string
	Fingerprint Fingerprint
	Size        int64
}

// Request describes one artifact the build needs. Exactly one params pointer
// is set and it matches Kind.
type Request struct {
	Kind    Kind
	Label   string
	Sources []Source

	Transcode *TranscodeParams
	Image     *ImageParams
	Cover     *CoverParams
	Archive   *ArchiveParams

	// Dependencies are artifacts this request consumes. Only composite kinds
	// may declare them.
	Dependencies []*Request
}

// TranscodeParams returns the transcode params with SourceFamily resolved
// from the first source. It panics if the request has no transcode params.
func (r *Request) TranscodeParams() TranscodeParams {
	params := *r.Transcode
	if params.SourceFamily == "" && len(r.Sources) > 0 {
		params.SourceFamily = SourceFamily(r.Sources[0].Path)
	}
	return params
}

// Params returns the kind-specific parameter value.
func (r *Request) Params() (any, error) {
	if r == nil {
		return nil, errors.New("nil request")
	}
	switch r.Kind {
	case KindTranscode:
		if r.Transcode != nil {
			return r.TranscodeParams(), nil
		}
	case KindImage:
		if r.Image != nil {
			return *r.Image, nil
		}
	case KindCover:
		if r.Cover != nil {
			return *r.Cover, nil
		}
	case KindArchive:
		if r.Archive != nil {
			return *r.Archive, nil
		}
	default:
		return nil, fmt.Errorf("unknown artifact kind %q", r.Kind)
	}
	return nil, fmt.Errorf("%s request %q has no %s parameters", r.Kind, r.Name(), r.Kind)
}

// Validate checks the request shape before a key is computed for it.
func (r *Request) Validate() error {
	params, err := r.Params()
	if err != nil {
		return err
	}
	set := 0
	for _, present := range []bool{r.Transcode != nil, r.Image != nil, r.Cover != nil, r.Archive != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%s request %q must carry exactly one parameter set, found %d", r.Kind, r.Name(), set)
	}
	for i, src := range r.Sources {
		if src.Fingerprint.IsZero() {
			return fmt.Errorf("%s request %q: source %d (%s) has no fingerprint", r.Kind, r.Name(), i, src.Path)
		}
	}
	if len(r.Dependencies) > 0 && !r.Kind.Composite() {
		return fmt.Errorf("%s request %q cannot declare dependencies", r.Kind, r.Name())
	}
	for _, dep := range r.Dependencies {
		if dep == nil {
			return fmt.Errorf("%s request %q has a nil dependency", r.Kind, r.Name())
		}
		if dep.Kind.Composite() {
			return fmt.Errorf("%s request %q depends on composite %q", r.Kind, r.Name(), dep.Name())
		}
	}

	switch p := params.(type) {
	case TranscodeParams:
		if len(r.Sources) != 1 {
			return fmt.Errorf("transcode %q needs exactly one source", r.Name())
		}
		return p.Validate()
	case ImageParams:
		if len(r.Sources) != 1 {
			return fmt.Errorf("image %q needs exactly one source", r.Name())
		}
		return p.Validate()
	case CoverParams:
		if len(r.Sources) == 0 {
			return fmt.Errorf("cover %q needs at least one track source", r.Name())
		}
		return p.Validate()
	case ArchiveParams:
		if len(p.TrackNames) != len(r.Dependencies) {
			return fmt.Errorf("archive %q names %d tracks but depends on %d", r.Name(), len(p.TrackNames), len(r.Dependencies))
		}
		if len(p.ExtraNames) != len(r.Sources) {
			return fmt.Errorf("archive %q names %d extras but has %d extra sources", r.Name(), len(p.ExtraNames), len(r.Sources))
		}
		return p.Validate()
	}
	return nil
}

// Name returns a human-readable identifier for logs and error messages.
func (r *Request) Name() string {
	if r == nil {
		return "(nil)"
	}
	if label := strings.TrimSpace(r.Label); label != "" {
		return label
	}
	if len(r.Sources) > 0 {
		return filepath.Base(r.Sources[0].Path)
	}
	return string(r.Kind)
}

// SourcePath returns the first source path, or an empty string.
func (r *Request) SourcePath() string {
	if r == nil || len(r.Sources) == 0 {
		return ""
	}
	return r.Sources[0].Path
}
