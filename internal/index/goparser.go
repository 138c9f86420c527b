package index

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
	"strings"
)

// GoParser extracts symbols, imports, and call edges from Go source using
// go/ast — the stdlib is the idiomatic choice here since it is the
// ecosystem's own way of parsing Go, matching the teacher's go_parser.go
// exactly.
type GoParser struct{}

func NewGoParser() *GoParser { return &GoParser{} }

func (p *GoParser) Language() string     { return "go" }
func (p *GoParser) Extensions() []string { return []string{".go"} }

func (p *GoParser) Parse(path string, content []byte) (ParseResult, error) {
	fset := token.NewFileSet()
	node, err := parser.ParseFile(fset, path, content, parser.ParseComments)
	if err != nil {
		return ParseResult{}, err
	}

	lines := strings.Split(string(content), "\n")
	pkgName := node.Name.Name

	var result ParseResult
	structNames := make(map[string]bool)

	for _, decl := range node.Decls {
		if gd, ok := decl.(*ast.GenDecl); ok && gd.Tok == token.TYPE {
			for _, spec := range gd.Specs {
				if ts, ok := spec.(*ast.TypeSpec); ok {
					if _, isStruct := ts.Type.(*ast.StructType); isStruct {
						structNames[ts.Name.Name] = true
					}
				}
			}
		}
	}

	for _, imp := range node.Imports {
		path, _ := strconv.Unquote(imp.Path.Value)
		var names []string
		if imp.Name != nil {
			names = append(names, imp.Name.Name)
		}
		result.Imports = append(result.Imports, ParsedImport{
			ImportPath:    path,
			ImportedNames: names,
			IsExternal:    isExternalGoImport(path),
		})
	}

	var symbols []ParsedSymbol
	qualifiedByFuncDecl := make(map[*ast.FuncDecl]string)

	for _, decl := range node.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			sym := goFuncSymbol(fset, d, pkgName, lines)
			symbols = append(symbols, sym)
			qualifiedByFuncDecl[d] = sym.QualifiedName

		case *ast.GenDecl:
			symbols = append(symbols, goGenDeclSymbols(fset, d, pkgName, lines)...)
		}
	}
	result.Symbols = symbols

	for _, decl := range node.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Body == nil {
			continue
		}
		caller := qualifiedByFuncDecl[fd]
		ast.Inspect(fd.Body, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}
			name, callType, ok := calleeNameAndType(call.Fun)
			if !ok {
				return true
			}
			result.Calls = append(result.Calls, ParsedCall{
				CallerQualifiedName: caller,
				CalleeName:          name,
				Line:                fset.Position(call.Pos()).Line,
				CallType:            callType,
			})
			return true
		})
	}

	return result, nil
}

func goFuncSymbol(fset *token.FileSet, d *ast.FuncDecl, pkgName string, lines []string) ParsedSymbol {
	name := d.Name.Name
	startLine := fset.Position(d.Pos()).Line
	endLine := fset.Position(d.End()).Line

	visibility := "private"
	if isExported(name) {
		visibility = "public"
	}

	symType := "function"
	qualified := pkgName + "." + name
	if d.Recv != nil && len(d.Recv.List) > 0 {
		symType = "method"
		recvType, _ := receiverTypeName(d.Recv.List[0].Type)
		if recvType != "" {
			qualified = pkgName + "." + recvType + "." + name
		}
	}

	signature := ""
	if startLine > 0 && startLine <= len(lines) {
		signature = strings.TrimSpace(lines[startLine-1])
	}
	doc := ""
	if d.Doc != nil {
		doc = strings.TrimSpace(d.Doc.Text())
	}

	return ParsedSymbol{
		Name:          name,
		QualifiedName: qualified,
		Type:          symType,
		StartLine:     startLine,
		EndLine:       endLine,
		Signature:     signature,
		Visibility:    visibility,
		Documentation: doc,
		IsTest:        strings.HasPrefix(name, "Test") || strings.HasPrefix(name, "Benchmark"),
	}
}

func goGenDeclSymbols(fset *token.FileSet, d *ast.GenDecl, pkgName string, lines []string) []ParsedSymbol {
	var out []ParsedSymbol
	switch d.Tok {
	case token.TYPE:
		for _, spec := range d.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			start := fset.Position(ts.Pos()).Line
			end := fset.Position(ts.End()).Line
			if d.Lparen == 0 {
				start = fset.Position(d.Pos()).Line
				end = fset.Position(d.End()).Line
			}
			symType := "type"
			switch ts.Type.(type) {
			case *ast.StructType:
				symType = "struct"
			case *ast.InterfaceType:
				symType = "interface"
			}
			visibility := "private"
			if isExported(ts.Name.Name) {
				visibility = "public"
			}
			signature := ""
			if start > 0 && start <= len(lines) {
				signature = strings.TrimSpace(lines[start-1])
			}
			out = append(out, ParsedSymbol{
				Name:          ts.Name.Name,
				QualifiedName: pkgName + "." + ts.Name.Name,
				Type:          symType,
				StartLine:     start,
				EndLine:       end,
				Signature:     signature,
				Visibility:    visibility,
			})
		}
	case token.CONST, token.VAR:
		symType := "const"
		if d.Tok == token.VAR {
			symType = "variable"
		}
		for _, spec := range d.Specs {
			vs, ok := spec.(*ast.ValueSpec)
			if !ok {
				continue
			}
			for _, n := range vs.Names {
				if n.Name == "_" {
					continue
				}
				start := fset.Position(vs.Pos()).Line
				end := fset.Position(vs.End()).Line
				visibility := "private"
				if isExported(n.Name) {
					visibility = "public"
				}
				signature := ""
				if start > 0 && start <= len(lines) {
					signature = strings.TrimSpace(lines[start-1])
				}
				out = append(out, ParsedSymbol{
					Name:          n.Name,
					QualifiedName: pkgName + "." + n.Name,
					Type:          symType,
					StartLine:     start,
					EndLine:       end,
					Signature:     signature,
					Visibility:    visibility,
				})
			}
		}
	}
	return out
}

func calleeNameAndType(fun ast.Expr) (name, callType string, ok bool) {
	switch f := fun.(type) {
	case *ast.Ident:
		return f.Name, "direct", true
	case *ast.SelectorExpr:
		return f.Sel.Name, "method", true
	}
	return "", "", false
}

func receiverTypeName(expr ast.Expr) (name string, isPointer bool) {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name, false
	case *ast.StarExpr:
		n, _ := receiverTypeName(t.X)
		return n, true
	}
	return "", false
}

func isExported(name string) bool {
	return len(name) > 0 && name[0] >= 'A' && name[0] <= 'Z'
}

// isExternalGoImport treats any import path containing a dot in its first
// path segment (a domain, e.g. "github.com/...") as external; stdlib
// import paths have no dot in their first segment.
func isExternalGoImport(path string) bool {
	first := path
	if idx := strings.Index(path, "/"); idx != -1 {
		first = path[:idx]
	}
	return strings.Contains(first, ".")
}
