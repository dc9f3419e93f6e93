package producer

import (
	"errors"
	"fmt"

	"sleeve/internal/artifact"
	"sleeve/internal/services"
)

// ToolError reports a failed production with the request it belongs to.
type ToolError struct {
	Kind   artifact.Kind
	Label  string
	Source string
	Err    error
}

func newToolError(req *artifact.Request, err error) error {
	var existing *ToolError
	if errors.As(err, &existing) {
		return err
	}
	return &ToolError{Kind: req.Kind, Label: req.Name(), Source: req.SourcePath(), Err: err}
}

func (e *ToolError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s %q (%s): %v", e.Kind, e.Label, e.Source, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Kind, e.Label, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// ErrorKind classifies the failure for reporting.
func (e *ToolError) ErrorKind() string {
	class := services.Classify(e.Err)
	if class == services.ClassUnknown {
		return string(services.ClassTool)
	}
	return string(class)
}
