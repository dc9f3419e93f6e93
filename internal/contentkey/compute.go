package contentkey

import (
	"fmt"
	"strconv"

	"sleeve/internal/artifact"
	"sleeve/internal/services"
)

// Compute derives the content key for req. It performs no I/O: every source
// must already carry its fingerprint.
func Compute(req *artifact.Request) (Key, error) {
	if err := req.Validate(); err != nil {
		return Key{}, services.Wrap(services.ErrValidation, string(req.Kind), "content key", req.Name(), err)
	}
	return compute(req)
}

func compute(req *artifact.Request) (Key, error) {
	params, err := req.Params()
	if err != nil {
		return Key{}, err
	}
	encoded, err := encodeParams(params)
	if err != nil {
		return Key{}, fmt.Errorf("%s %q: %w", req.Kind, req.Name(), err)
	}

	hasher := newKeyed(keyDomain)
	writeField(hasher, []byte(req.Kind))
	writeField(hasher, []byte(strconv.Itoa(artifact.SchemaVersion(req.Kind))))

	writeField(hasher, []byte(strconv.Itoa(len(req.Sources))))
	for _, src := range req.Sources {
		writeField(hasher, src.Fingerprint[:])
	}

	writeField(hasher, encoded)

	writeField(hasher, []byte(strconv.Itoa(len(req.Dependencies))))
	for _, dep := range req.Dependencies {
		depKey, err := compute(dep)
		if err != nil {
			return Key{}, fmt.Errorf("dependency %q: %w", dep.Name(), err)
		}
		writeField(hasher, depKey[:])
	}

	var key Key
	copy(key[:], hasher.Sum(nil))
	return key, nil
}
