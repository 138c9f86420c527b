package index

import (
	"regexp"
	"strings"
)

// CSharpParser is a line-oriented regex parser for C#, used because no
// tree-sitter grammar is wired for it (spec.md §4.4: "regex parsers for
// languages without an available grammar — they walk lines, track brace
// depth, and accumulate pending_docs and pending_attributes that attach
// to the next declaration").
//
// Known limitation (spec.md §9 Open Question, resolved in DESIGN.md):
// end lines are derived from a brace-depth scan rather than a real parse
// tree, so end_line can be coarse for one-line or heavily nested bodies.
type CSharpParser struct{}

func NewCSharpParser() *CSharpParser { return &CSharpParser{} }

func (p *CSharpParser) Language() string     { return "csharp" }
func (p *CSharpParser) Extensions() []string { return []string{".cs"} }

var (
	csharpNamespaceRe = regexp.MustCompile(`^\s*namespace\s+([\w.]+)`)
	csharpClassRe     = regexp.MustCompile(`^\s*(?:\[[^\]]*\]\s*)*(?:public|private|protected|internal)?\s*(?:static|sealed|abstract|partial)*\s*(class|interface|struct|enum|record)\s+(\w+)`)
	csharpMethodRe    = regexp.MustCompile(`^\s*(?:public|private|protected|internal)\s+(?:static\s+|virtual\s+|override\s+|async\s+)*[\w<>\[\],\s]+\s+(\w+)\s*\([^)]*\)\s*\{?`)
	csharpUsingRe     = regexp.MustCompile(`^\s*using\s+(?:static\s+)?([\w.]+)\s*;`)
	csharpDocRe       = regexp.MustCompile(`^\s*///\s?(.*)`)
	csharpAttrRe      = regexp.MustCompile(`^\s*\[([^\]]+)\]\s*$`)
)

// csharpState carries the pending_docs/pending_attributes accumulators
// named explicitly in spec.md §4.4 across the line walk.
type csharpState struct {
	namespace       string
	pendingDocs     []string
	pendingAttrs    []string
	braceDepth      int
	openSymbolIdx   int // index into symbols of the declaration awaiting its closing brace, or -1
}

func (p *CSharpParser) Parse(path string, content []byte) (ParseResult, error) {
	lines := strings.Split(string(content), "\n")
	var result ParseResult
	st := &csharpState{openSymbolIdx: -1}

	for i, line := range lines {
		lineNo := i + 1

		if m := csharpUsingRe.FindStringSubmatch(line); m != nil {
			result.Imports = append(result.Imports, ParsedImport{
				ImportPath: m[1],
				IsExternal: !strings.HasPrefix(m[1], st.namespace),
			})
			continue
		}
		if m := csharpNamespaceRe.FindStringSubmatch(line); m != nil {
			st.namespace = m[1]
			continue
		}
		if m := csharpDocRe.FindStringSubmatch(line); m != nil {
			st.pendingDocs = append(st.pendingDocs, strings.TrimSpace(m[1]))
			continue
		}
		if m := csharpAttrRe.FindStringSubmatch(line); m != nil {
			st.pendingAttrs = append(st.pendingAttrs, strings.TrimSpace(m[1]))
			continue
		}

		if m := csharpClassRe.FindStringSubmatch(line); m != nil {
			symType := m[1]
			if symType == "record" {
				symType = "record"
			}
			name := m[2]
			qualified := name
			if st.namespace != "" {
				qualified = st.namespace + "." + name
			}
			result.Symbols = append(result.Symbols, ParsedSymbol{
				Name:          name,
				QualifiedName: qualified,
				Type:          symType,
				StartLine:     lineNo,
				EndLine:       lineNo, // corrected once the closing brace is found
				Signature:     strings.TrimSpace(line),
				Visibility:    csharpVisibility(line),
				Documentation: strings.Join(st.pendingDocs, " "),
				Decorators:    append([]string(nil), st.pendingAttrs...),
			})
			st.openSymbolIdx = len(result.Symbols) - 1
			st.pendingDocs, st.pendingAttrs = nil, nil
			st.braceDepth += strings.Count(line, "{") - strings.Count(line, "}")
			continue
		}

		if m := csharpMethodRe.FindStringSubmatch(line); m != nil {
			name := m[1]
			qualified := name
			if st.namespace != "" {
				qualified = st.namespace + "." + name
			}
			result.Symbols = append(result.Symbols, ParsedSymbol{
				Name:          name,
				QualifiedName: qualified,
				Type:          "method",
				StartLine:     lineNo,
				EndLine:       lineNo,
				Signature:     strings.TrimSpace(line),
				Visibility:    csharpVisibility(line),
				Documentation: strings.Join(st.pendingDocs, " "),
				Decorators:    append([]string(nil), st.pendingAttrs...),
				IsAsync:       strings.Contains(line, "async "),
			})
			st.openSymbolIdx = len(result.Symbols) - 1
			st.pendingDocs, st.pendingAttrs = nil, nil
			st.braceDepth += strings.Count(line, "{") - strings.Count(line, "}")
			continue
		}

		opens, closes := strings.Count(line, "{"), strings.Count(line, "}")
		if opens == 0 && closes == 0 {
			continue
		}
		st.braceDepth += opens - closes
		if st.openSymbolIdx >= 0 && closes > 0 && st.braceDepth <= 0 {
			result.Symbols[st.openSymbolIdx].EndLine = lineNo
			st.openSymbolIdx = -1
			st.braceDepth = 0
		}
	}

	return result, nil
}

func csharpVisibility(line string) string {
	switch {
	case strings.Contains(line, "public "):
		return "public"
	case strings.Contains(line, "internal "):
		return "internal"
	case strings.Contains(line, "protected "):
		return "protected"
	default:
		return "private"
	}
}
