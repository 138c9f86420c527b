package index

import (
	"path/filepath"
	"strings"
)

// Registry maps a file extension to the Parser that handles it, mirroring
// the teacher's parser_factory.go dispatch-by-extension idiom.
type Registry struct {
	byExt map[string]Parser
}

// NewRegistry builds the default registry: Go via go/ast, Python/
// JavaScript/TypeScript/Rust via tree-sitter, C# via the regex fallback
// parser for languages without a wired grammar.
func NewRegistry() *Registry {
	r := &Registry{byExt: make(map[string]Parser)}
	r.Register(NewGoParser())
	r.Register(NewTreeSitterParser(LangPython))
	r.Register(NewTreeSitterParser(LangJavaScript))
	r.Register(NewTreeSitterParser(LangTypeScript))
	r.Register(NewTreeSitterParser(LangRust))
	r.Register(NewCSharpParser())
	return r
}

// Register adds or replaces the parser for each of its extensions.
func (r *Registry) Register(p Parser) {
	for _, ext := range p.Extensions() {
		r.byExt[ext] = p
	}
}

// For returns the parser responsible for path's extension, or nil if the
// language is unsupported.
func (r *Registry) For(path string) Parser {
	return r.byExt[strings.ToLower(filepath.Ext(path))]
}

// Languages lists every language this registry can parse.
func (r *Registry) Languages() []string {
	seen := make(map[string]bool)
	var langs []string
	for _, p := range r.byExt {
		if !seen[p.Language()] {
			seen[p.Language()] = true
			langs = append(langs, p.Language())
		}
	}
	return langs
}
