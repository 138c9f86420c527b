// Package builderr implements the build-error tracker from spec.md §4.8:
// per-build-type parsers, categorization, hash-based dedup, resolution
// linking, and similarity lookup.
//
// Grounded on the teacher's narrow-parser-per-format idiom (multiple
// `internal/world/*parser*.go` files, one pure function per input
// grammar) and internal/store's query-assembly style for the tracker's
// persistence calls.
package builderr

import "mira/internal/model"

// ParsedError is the pure-function output of a build-type parser before
// it becomes a persisted model.BuildError: spec.md §4.8 "each parser is
// a pure function".
type ParsedError struct {
	Severity   model.ErrorSeverity
	ErrorCode  string
	Message    string
	FilePath   string
	Line       int
	Column     int
	Suggestion string
}

// Parser is a pure function over one build tool's raw output, per
// spec.md §4.8. BuildType identifies which parser produced (or should
// consume) a given run, matching model.BuildRun.BuildType.
type Parser interface {
	BuildType() string
	Parse(output string) []ParsedError
}
