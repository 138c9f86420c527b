// Package index is the code indexer: file discovery, a per-language parser
// registry, transactional write-back into the persistence layer, and an
// fsnotify-driven incremental watcher.
//
// Grounded on the teacher's internal/world parser stack
// (parser_interface.go's CodeParser contract, go_parser.go's go/ast walk,
// ast_treesitter.go's tree-sitter grammars, fs.go's discovery walk, and
// internal/core/mangle_watcher.go's debounced fsnotify loop), retargeted
// from Mangle-fact emission to the (symbols, imports, calls) extraction
// contract.
package index

// ParsedSymbol is one extracted declaration, independent of language.
type ParsedSymbol struct {
	Name          string
	QualifiedName string
	Type          string // mirrors model.SymbolType values
	StartLine     int
	EndLine       int
	Signature     string
	Visibility    string
	Documentation string
	ReturnType    string
	Decorators    []string
	IsTest        bool
	IsAsync       bool
}

// ParsedImport is one import edge for a file.
type ParsedImport struct {
	ImportPath    string
	ImportedNames []string
	IsExternal    bool
}

// ParsedCall is one call site, resolved to a caller by qualified name.
type ParsedCall struct {
	CallerQualifiedName string
	CalleeName          string
	Line                int
	CallType            string // "direct" | "method"
}

// ParseResult is the extraction contract per spec.md §4.4: a file yields
// an ordered symbol list, its imports, and its call sites.
type ParseResult struct {
	Symbols []ParsedSymbol
	Imports []ParsedImport
	Calls   []ParsedCall
}

// Parser is the capability interface every language implementation
// satisfies, mirroring the teacher's CodeParser contract minus the
// Mangle-fact emission method (out of domain for Mira).
type Parser interface {
	Language() string
	Extensions() []string
	Parse(path string, content []byte) (ParseResult, error)
}
