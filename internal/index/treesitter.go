package index

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Lang identifies a tree-sitter-backed language.
type Lang string

const (
	LangPython     Lang = "python"
	LangJavaScript Lang = "javascript"
	LangTypeScript Lang = "typescript"
	LangRust       Lang = "rust"
)

// langSpec describes how to recognize and label declarations for one
// grammar, grounded on the node-type switches in the teacher's
// ast_treesitter.go (extractGoSymbols/extractPythonSymbols/etc).
type langSpec struct {
	extensions  []string
	grammar     *sitter.Language
	funcNodes   map[string]string // node type -> model.SymbolType value
	classNodes  map[string]string
	callNode    string
	nameField   string
	importNodes []string
}

var langSpecs = map[Lang]langSpec{
	LangPython: {
		extensions: []string{".py"},
		grammar:    python.GetLanguage(),
		funcNodes:  map[string]string{"function_definition": "function"},
		classNodes: map[string]string{"class_definition": "class"},
		callNode:   "call",
		nameField:  "name",
	},
	LangJavaScript: {
		extensions: []string{".js", ".jsx", ".mjs"},
		grammar:    javascript.GetLanguage(),
		funcNodes:  map[string]string{"function_declaration": "function", "method_definition": "method"},
		classNodes: map[string]string{"class_declaration": "class"},
		callNode:   "call_expression",
		nameField:  "name",
	},
	LangTypeScript: {
		extensions: []string{".ts", ".tsx"},
		grammar:    typescript.GetLanguage(),
		funcNodes:  map[string]string{"function_declaration": "function", "method_definition": "method"},
		classNodes: map[string]string{"class_declaration": "class", "interface_declaration": "interface"},
		callNode:   "call_expression",
		nameField:  "name",
	},
	LangRust: {
		extensions: []string{".rs"},
		grammar:    rust.GetLanguage(),
		funcNodes:  map[string]string{"function_item": "function"},
		classNodes: map[string]string{"struct_item": "struct", "enum_item": "enum", "trait_item": "trait"},
		callNode:   "call_expression",
		nameField:  "name",
	},
}

// TreeSitterParser extracts symbols and call sites from one tree-sitter
// grammar. A single instance is not safe for concurrent Parse calls (the
// underlying sitter.Parser isn't). NewRegistry creates one instance per
// language, and every IndexFile call of an Indexer shares it.
type TreeSitterParser struct {
	lang   Lang
	spec   langSpec
	parser *sitter.Parser
}

func NewTreeSitterParser(lang Lang) *TreeSitterParser {
	spec := langSpecs[lang]
	p := sitter.NewParser()
	p.SetLanguage(spec.grammar)
	return &TreeSitterParser{lang: lang, spec: spec, parser: p}
}

func (p *TreeSitterParser) Language() string     { return string(p.lang) }
func (p *TreeSitterParser) Extensions() []string { return p.spec.extensions }

func (p *TreeSitterParser) Parse(path string, content []byte) (ParseResult, error) {
	tree, err := p.parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return ParseResult{}, err
	}
	defer tree.Close()

	var result ParseResult
	root := tree.RootNode()
	text := string(content)

	var enclosing []string // stack of qualified-name prefixes for call resolution
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		nodeType := n.Type()

		if symType, ok := p.spec.classNodes[nodeType]; ok {
			name := childName(n, text, p.spec.nameField)
			result.Symbols = append(result.Symbols, p.symbolFor(n, name, symType, text))
			enclosing = append(enclosing, name)
			for i := 0; i < int(n.ChildCount()); i++ {
				walk(n.Child(i))
			}
			enclosing = enclosing[:len(enclosing)-1]
			return
		}

		if symType, ok := p.spec.funcNodes[nodeType]; ok {
			name := childName(n, text, p.spec.nameField)
			sym := p.symbolFor(n, name, symType, text)
			if len(enclosing) > 0 {
				sym.QualifiedName = strings.Join(enclosing, ".") + "." + name
			}
			result.Symbols = append(result.Symbols, sym)
			caller := sym.QualifiedName
			collectCalls(n, text, p.spec.callNode, caller, &result.Calls)
		}

		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)

	result.Imports = p.extractImports(root, text)
	return result, nil
}

func (p *TreeSitterParser) symbolFor(n *sitter.Node, name, symType, text string) ParsedSymbol {
	startLine := int(n.StartPoint().Row) + 1
	endLine := int(n.EndPoint().Row) + 1
	sig := firstLine(n, text)
	return ParsedSymbol{
		Name:          name,
		QualifiedName: name,
		Type:          symType,
		StartLine:     startLine,
		EndLine:       endLine,
		Signature:     sig,
		Visibility:    visibilityFor(name),
		IsAsync:       strings.Contains(sig, "async "),
	}
}

func (p *TreeSitterParser) extractImports(root *sitter.Node, text string) []ParsedImport {
	var imports []ParsedImport
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		nodeType := n.Type()
		if nodeType == "import_statement" || nodeType == "import_from_statement" || nodeType == "use_declaration" {
			raw := strings.TrimSpace(n.Content([]byte(text)))
			imports = append(imports, ParsedImport{
				ImportPath: raw,
				IsExternal: isExternalNonGoImport(p.lang, raw),
			})
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return imports
}

func collectCalls(n *sitter.Node, text, callNodeType, caller string, out *[]ParsedCall) {
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == callNodeType {
			fn := n.Child(0)
			if fn != nil {
				name := fn.Content([]byte(text))
				if idx := strings.LastIndexByte(name, '.'); idx != -1 {
					name = name[idx+1:]
				}
				*out = append(*out, ParsedCall{
					CallerQualifiedName: caller,
					CalleeName:          name,
					Line:                int(n.StartPoint().Row) + 1,
					CallType:            "direct",
				})
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(n)
}

func childName(n *sitter.Node, text, field string) string {
	child := n.ChildByFieldName(field)
	if child == nil {
		return ""
	}
	return child.Content([]byte(text))
}

func firstLine(n *sitter.Node, text string) string {
	content := n.Content([]byte(text))
	if idx := strings.IndexByte(content, '\n'); idx != -1 {
		return strings.TrimSpace(content[:idx])
	}
	return strings.TrimSpace(content)
}

func visibilityFor(name string) string {
	if strings.HasPrefix(name, "_") {
		return "private"
	}
	return "public"
}

func isExternalNonGoImport(lang Lang, raw string) bool {
	switch lang {
	case LangPython:
		return !strings.HasPrefix(strings.TrimSpace(raw), "from .") && !strings.Contains(raw, "from .")
	case LangRust:
		return !strings.Contains(raw, "crate::") && !strings.Contains(raw, "self::") && !strings.Contains(raw, "super::")
	default: // JS/TS
		return !strings.Contains(raw, "\"./") && !strings.Contains(raw, "'./") &&
			!strings.Contains(raw, "\"../") && !strings.Contains(raw, "'../")
	}
}
