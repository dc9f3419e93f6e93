package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"
)

var (
	// ErrInput marks unsupported or corrupt source files.
	ErrInput = errors.New("input error")
	// ErrIntegrity marks cache entries whose payload or index row is unusable.
	ErrIntegrity = errors.New("cache integrity error")
	// ErrExternalTool marks codec tools that failed or produced unusable output.
	ErrExternalTool = errors.New("external tool error")
	// ErrMissingTool marks a required external tool that is not installed.
	ErrMissingTool = fmt.Errorf("%w: tool not found", ErrExternalTool)
	// ErrResource marks disk-full and permission failures on the cache.
	ErrResource      = errors.New("resource error")
	ErrConfiguration = errors.New("configuration error")
	ErrValidation    = errors.New("validation error")
)

// FailureClass groups errors for reporting and the abort decision.
type FailureClass string

const (
	ClassNone          FailureClass = ""
	ClassInput         FailureClass = "input"
	ClassIntegrity     FailureClass = "integrity"
	ClassTool          FailureClass = "tool"
	ClassResource      FailureClass = "resource"
	ClassConfiguration FailureClass = "configuration"
	ClassCanceled      FailureClass = "canceled"
	ClassUnknown       FailureClass = "unknown"
)

// ErrorClassifier lets typed errors declare their class directly.
type ErrorClassifier interface {
	ErrorKind() string
}

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker. The marker should be one of the exported
// sentinels above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps err onto a failure class. Filesystem errors that signal a
// full disk or missing permissions are resource failures even when they were
// not wrapped with ErrResource.
func Classify(err error) FailureClass {
	if err == nil {
		return ClassNone
	}
	switch {
	case errors.Is(err, ErrResource), IsResourceError(err):
		return ClassResource
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ClassCanceled
	case errors.Is(err, ErrInput):
		return ClassInput
	case errors.Is(err, ErrIntegrity):
		return ClassIntegrity
	case errors.Is(err, ErrExternalTool):
		return ClassTool
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrValidation):
		return ClassConfiguration
	}
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		switch classifier.ErrorKind() {
		case "input":
			return ClassInput
		case "tool":
			return ClassTool
		case "resource":
			return ClassResource
		}
	}
	return ClassUnknown
}

// IsResourceError reports whether err stems from a full disk, exhausted quota,
// read-only filesystem or denied permission.
func IsResourceError(err error) bool {
	for _, errno := range []syscall.Errno{syscall.ENOSPC, syscall.EDQUOT, syscall.EROFS, syscall.EACCES, syscall.EPERM} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "cache failure"
	}
	return strings.Join(parts, ": ")
}
