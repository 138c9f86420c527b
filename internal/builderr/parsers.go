package builderr

import (
	"regexp"
	"strconv"
	"strings"

	"mira/internal/model"
)

// Compiled once at package init and reused across parse calls, per
// spec.md §4.8: "all compiled regexes are reused."
var (
	cargoHeaderRe  = regexp.MustCompile(`^(error|warning)(\[([A-Za-z0-9]+)\])?:\s*(.+?)\s*(?:-->\s*(\S+):(\d+):(\d+))?$`)
	cargoLocationRe = regexp.MustCompile(`^\s*-->\s*(\S+):(\d+):(\d+)\s*$`)

	tscRe = regexp.MustCompile(`^(.+?)\((\d+),(\d+)\):\s*(error|warning)\s+(TS\d+):\s*(.+)$`)

	eslintFileRe = regexp.MustCompile(`^(\S.+\.\w+)\s*$`)
	eslintLineRe = regexp.MustCompile(`^\s*(\d+):(\d+)\s+(error|warning)\s+(.+?)(?:\s+([\w-]+/[\w-]+|[\w-]+))?\s*$`)

	pytestFailedRe = regexp.MustCompile(`^FAILED\s+(\S+?)::(\S+)\s*-\s*(.+)$`)
	pytestTraceRe  = regexp.MustCompile(`^(?:E\s+)?(\w*Error|AssertionError):\s*(.+)$`)

	mypyRe = regexp.MustCompile(`^(.+?):(\d+):\s*(error|warning|note):\s*(.+?)(?:\s*\[([\w-]+)\])?$`)

	genericRe = regexp.MustCompile(`^(.+?):(\d+)(?::(\d+))?:\s*(error|warning)?:?\s*(.+)$`)
)

// CargoParser parses `cargo build`/`cargo test` compiler output.
type CargoParser struct{}

func (CargoParser) BuildType() string { return "cargo" }

// Parse walks lines tracking a pending header until its location is
// found either on the same line or a following "--> file:line:col" line,
// per spec.md §4.4's "regex parsers ... walk lines ... accumulate pending
// state that attaches to the next declaration" idiom, adapted here to
// attach a location to a pending error header instead of docs to a decl.
func (CargoParser) Parse(output string) []ParsedError {
	var out []ParsedError
	var pending *ParsedError

	flush := func() {
		if pending != nil {
			out = append(out, *pending)
			pending = nil
		}
	}

	for _, line := range splitLines(output) {
		if m := cargoHeaderRe.FindStringSubmatch(line); m != nil {
			flush()
			sev := model.SeverityError
			if m[1] == "warning" {
				sev = model.SeverityWarning
			}
			pe := ParsedError{Severity: sev, ErrorCode: m[3], Message: strings.TrimSpace(m[4])}
			if m[5] != "" {
				pe.FilePath = m[5]
				pe.Line, _ = strconv.Atoi(m[6])
				pe.Column, _ = strconv.Atoi(m[7])
				out = append(out, pe)
				continue
			}
			pending = &pe
			continue
		}
		if pending != nil {
			if m := cargoLocationRe.FindStringSubmatch(line); m != nil {
				pending.FilePath = m[1]
				pending.Line, _ = strconv.Atoi(m[2])
				pending.Column, _ = strconv.Atoi(m[3])
				flush()
			}
		}
	}
	flush()
	return out
}

// TSCParser parses `tsc` compiler output.
type TSCParser struct{}

func (TSCParser) BuildType() string { return "tsc" }

func (TSCParser) Parse(output string) []ParsedError {
	var out []ParsedError
	for _, line := range splitLines(output) {
		m := tscRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		sev := model.SeverityError
		if m[4] == "warning" {
			sev = model.SeverityWarning
		}
		line_, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		out = append(out, ParsedError{
			Severity: sev, FilePath: m[1], Line: line_, Column: col,
			ErrorCode: m[5], Message: strings.TrimSpace(m[6]),
		})
	}
	return out
}

// ESLintParser parses `eslint`/npm-run-lint output, where a bare file
// path header is followed by indented "line:col  severity  message
// rule-id" rows.
type ESLintParser struct{}

func (ESLintParser) BuildType() string { return "eslint" }

func (ESLintParser) Parse(output string) []ParsedError {
	var out []ParsedError
	currentFile := ""
	for _, raw := range splitLines(output) {
		if m := eslintLineRe.FindStringSubmatch(raw); m != nil && currentFile != "" {
			sev := model.SeverityError
			if m[3] == "warning" {
				sev = model.SeverityWarning
			}
			line, _ := strconv.Atoi(m[1])
			col, _ := strconv.Atoi(m[2])
			out = append(out, ParsedError{
				Severity: sev, FilePath: currentFile, Line: line, Column: col,
				ErrorCode: m[5], Message: strings.TrimSpace(m[4]),
			})
			continue
		}
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		if m := eslintFileRe.FindStringSubmatch(trimmed); m != nil && looksLikePath(m[1]) {
			currentFile = m[1]
		}
	}
	return out
}

func looksLikePath(s string) bool {
	return strings.Contains(s, "/") || strings.Contains(s, "\\") || strings.HasPrefix(s, ".")
}

// PytestParser parses `pytest` output: "FAILED file::test - message"
// summary lines plus inline tracebacks ending in an *Error line.
type PytestParser struct{}

func (PytestParser) BuildType() string { return "pytest" }

func (PytestParser) Parse(output string) []ParsedError {
	var out []ParsedError
	for _, line := range splitLines(output) {
		if m := pytestFailedRe.FindStringSubmatch(line); m != nil {
			out = append(out, ParsedError{
				Severity: model.SeverityError,
				FilePath: m[1],
				Message:  m[2] + ": " + strings.TrimSpace(m[3]),
			})
			continue
		}
		if m := pytestTraceRe.FindStringSubmatch(line); m != nil {
			out = append(out, ParsedError{
				Severity:  model.SeverityError,
				ErrorCode: m[1],
				Message:   strings.TrimSpace(m[2]),
			})
		}
	}
	return out
}

// MypyParser parses `mypy` type-checker output.
type MypyParser struct{}

func (MypyParser) BuildType() string { return "mypy" }

func (MypyParser) Parse(output string) []ParsedError {
	var out []ParsedError
	for _, line := range splitLines(output) {
		m := mypyRe.FindStringSubmatch(line)
		if m == nil || m[3] == "note" {
			continue
		}
		sev := model.SeverityError
		if m[3] == "warning" {
			sev = model.SeverityWarning
		}
		lineNo, _ := strconv.Atoi(m[2])
		out = append(out, ParsedError{
			Severity: sev, FilePath: m[1], Line: lineNo,
			ErrorCode: m[5], Message: strings.TrimSpace(m[4]),
		})
	}
	return out
}

// GenericParser is the fallback for build types without a dedicated
// parser: a loose "file:line[:col]: [severity:] message" grammar.
type GenericParser struct{}

func (GenericParser) BuildType() string { return "generic" }

func (GenericParser) Parse(output string) []ParsedError {
	var out []ParsedError
	for _, line := range splitLines(output) {
		m := genericRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		sev := model.SeverityError
		if m[4] == "warning" {
			sev = model.SeverityWarning
		}
		lineNo, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		out = append(out, ParsedError{
			Severity: sev, FilePath: m[1], Line: lineNo, Column: col,
			Message: strings.TrimSpace(m[5]),
		})
	}
	return out
}

func splitLines(s string) []string {
	return strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
}

// Registry maps a build_type string to its Parser.
func Registry() map[string]Parser {
	return map[string]Parser{
		"cargo":   CargoParser{},
		"tsc":     TSCParser{},
		"eslint":  ESLintParser{},
		"npm":     ESLintParser{},
		"pytest":  PytestParser{},
		"mypy":    MypyParser{},
		"generic": GenericParser{},
	}
}

// ParserFor returns the parser registered for buildType, falling back to
// GenericParser for unrecognized types rather than failing the tracker.
func ParserFor(buildType string) Parser {
	if p, ok := Registry()[buildType]; ok {
		return p
	}
	return GenericParser{}
}
