package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"sleeve/internal/config"
)

// Requirement is an external tool a build shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	// Optional tools only degrade a build when missing.
	Optional bool
}

// Status is the outcome of resolving one requirement or encoder.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	// Path is the resolved executable when Available.
	Path   string
	Detail string
}

// Requirements lists the codec tools cfg points at. ffprobe is only needed
// when transcodes are validated.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{Name: "FFmpeg", Command: cfg.FFmpegBinary(), Description: "Transcodes audio"},
		{Name: "FFprobe", Command: cfg.FFprobeBinary(), Description: "Validates transcoded audio", Optional: !cfg.Tools.ValidateOutput},
	}
}

// CheckBinaries resolves each requirement on PATH (or as given, when it is a
// path).
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, len(requirements))
	for i, req := range requirements {
		results[i] = resolve(req)
	}
	return results
}

func resolve(req Requirement) Status {
	status := Status{
		Name:        req.Name,
		Command:     strings.TrimSpace(req.Command),
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	resolved, err := exec.LookPath(status.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		return status
	}
	status.Available = true
	status.Path = resolved
	return status
}
