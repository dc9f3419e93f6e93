// Package preflight provides readiness checks for the directories and codec
// tools sleeve depends on.
//
// These checks run in two contexts:
//   - "sleeve build" calls RunAll before resolving any artifact. If a check
//     fails the build stops before a single transcode is attempted.
//   - "sleeve deps" uses CheckSystemDeps to display tool availability.
package preflight
