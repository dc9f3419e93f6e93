// Package services defines the error taxonomy and context helpers shared by the
// cache, the producers and the CLI.
//
// Key responsibilities:
//   - Sentinel markers (ErrInput, ErrIntegrity, ErrExternalTool, ErrResource,
//     ErrConfiguration, ErrValidation) plus the Wrap helper that attaches a
//     stage and operation to a failure without losing the marker.
//   - Classify, which turns any error into the failure class used for build
//     reports and the abort decision.
//   - Context helpers that stamp build IDs, artifact kinds and content keys so
//     log lines can be correlated with a single production.
package services
