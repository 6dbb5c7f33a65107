// Package goparser implements parse.Parser for Go source using the
// standard library's go/parser and go/ast, in-process (no sandbox).
package goparser

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"strings"

	"github.com/process-failed-successfully/codegraph-indexer/internal/astutils"
	"github.com/process-failed-successfully/codegraph-indexer/internal/parse"
)

// Parser parses Go source files with go/parser, extracting function and
// method declarations as symbols and resolved call expressions as CALLS
// relationships.
type Parser struct{}

// New constructs a Go source Parser.
func New() *Parser {
	return &Parser{}
}

// Parse implements parse.Parser.
func (p *Parser) Parse(ctx context.Context, req parse.Request) (parse.Result, error) {
	fset := token.NewFileSet()
	result := parse.Result{Files: make([]parse.FileResult, 0, len(req.Files))}

	for _, rel := range req.Files {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		abs := filepath.Join(req.RepoPath, rel)
		fr, err := parseFile(fset, abs, rel)
		if err != nil {
			result.Files = append(result.Files, parse.FileResult{Path: rel, Error: err.Error()})
			continue
		}
		result.Files = append(result.Files, fr)
	}

	return result, nil
}

func parseFile(fset *token.FileSet, absPath, relPath string) (parse.FileResult, error) {
	f, err := parser.ParseFile(fset, absPath, nil, parser.ParseComments)
	if err != nil {
		return parse.FileResult{}, fmt.Errorf("parse %s: %w", relPath, err)
	}

	fr := parse.FileResult{Path: relPath}
	pkgName := f.Name.Name

	var currentFunc string

	ast.Inspect(f, func(n ast.Node) bool {
		switch x := n.(type) {
		case *ast.FuncDecl:
			name := x.Name.Name
			kind := parse.SymbolFunction
			recv := ""
			if x.Recv != nil && len(x.Recv.List) > 0 {
				kind = parse.SymbolMethod
				recv = astutils.GetReceiverTypeName(x.Recv) + "."
			}
			qualified := pkgName + "." + recv + name

			start := fset.Position(x.Pos()).Line
			end := fset.Position(x.End()).Line
			sym := parse.Symbol{
				Name:      qualified,
				Kind:      kind,
				StartLine: start,
				EndLine:   end,
				Signature: signatureOf(x),
			}
			fr.Symbols = append(fr.Symbols, sym)
			currentFunc = qualified

		case *ast.TypeSpec:
			kind := parse.SymbolType
			if _, ok := x.Type.(*ast.InterfaceType); ok {
				kind = parse.SymbolInterface
			}
			fr.Symbols = append(fr.Symbols, parse.Symbol{
				Name:      pkgName + "." + x.Name.Name,
				Kind:      kind,
				StartLine: fset.Position(x.Pos()).Line,
				EndLine:   fset.Position(x.End()).Line,
			})

		case *ast.CallExpr:
			if currentFunc == "" {
				return true
			}
			callee := resolveCallee(x.Fun)
			if callee == "" {
				return true
			}
			if !strings.Contains(callee, ".") {
				callee = pkgName + "." + callee
			}
			fr.Relationships = append(fr.Relationships, parse.Relationship{
				From: currentFunc,
				To:   callee,
				Type: parse.RelationshipCalls,
			})
		}
		return true
	})

	return fr, nil
}

func signatureOf(fd *ast.FuncDecl) string {
	var sb strings.Builder
	sb.WriteString(fd.Name.Name)
	sb.WriteString("(")
	if fd.Type.Params != nil {
		first := true
		for _, field := range fd.Type.Params.List {
			n := len(field.Names)
			if n == 0 {
				n = 1
			}
			for i := 0; i < n; i++ {
				if !first {
					sb.WriteString(", ")
				}
				first = false
				sb.WriteString(typeExprString(field.Type))
			}
		}
	}
	sb.WriteString(")")
	return sb.String()
}

func typeExprString(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + typeExprString(t.X)
	case *ast.SelectorExpr:
		return typeExprString(t.X) + "." + t.Sel.Name
	case *ast.ArrayType:
		return "[]" + typeExprString(t.Elt)
	case *ast.MapType:
		return "map[" + typeExprString(t.Key) + "]" + typeExprString(t.Value)
	case *ast.Ellipsis:
		return "..." + typeExprString(t.Elt)
	default:
		return "any"
	}
}

func resolveCallee(fun ast.Expr) string {
	switch f := fun.(type) {
	case *ast.Ident:
		return f.Name
	case *ast.SelectorExpr:
		return receiverExprString(f.X) + "." + f.Sel.Name
	}
	return ""
}

func receiverExprString(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + receiverExprString(t.X)
	case *ast.SelectorExpr:
		return receiverExprString(t.X) + "." + t.Sel.Name
	default:
		return "unknown"
	}
}
