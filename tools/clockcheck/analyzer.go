// Package clockcheck provides a static analysis tool that detects wall-clock
// reads inside detection code.
//
// Detection passes work over recorded events and must take every timestamp
// from those events, never from the machine running them: the same upload has
// to produce the same findings on every run. The analyzer flags time.Now()
// calls outside of approved locations:
//   - test files (fixtures own their clocks)
//   - lines with explicit exemption comments
//
// Usage:
//
//	go vet -vettool=$(which clockcheck) ./engine/...
package clockcheck

import (
	"go/ast"
	"go/token"
	"strings"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
)

// ExemptionComment is the magic comment that exempts a time.Now() call,
// placed on the call's line or the line above.
// Example: // clockcheck:exempt match timing metric only
const ExemptionComment = "clockcheck:exempt"

// Analyzer is the time.Now() checker analyzer.
var Analyzer = &analysis.Analyzer{
	Name:     "clockcheck",
	Doc:      doc,
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

const doc = `check for time.Now() in detection code

Detection results must be a function of the analyzed events alone. A
wall-clock read makes findings depend on when the analysis ran, so the same
upload stops producing the same output and cached results go stale silently.

Allowed locations:
- test files
- lines with a clockcheck:exempt comment

All other code should derive its reference time from event timestamps.`

// run executes the analyzer.
func run(pass *analysis.Pass) (interface{}, error) {
	inspect := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	nodeFilter := []ast.Node{
		(*ast.FuncDecl)(nil),
		(*ast.CallExpr)(nil),
	}

	var currentFunc *ast.FuncDecl

	inspect.Preorder(nodeFilter, func(n ast.Node) {
		switch node := n.(type) {
		case *ast.FuncDecl:
			currentFunc = node

		case *ast.CallExpr:
			if !isTimeNow(node) {
				return
			}
			if inTestFile(pass, node.Pos()) || hasExemptionComment(pass, node.Pos()) {
				return
			}
			funcName := "unknown"
			if currentFunc != nil && currentFunc.Name != nil {
				funcName = currentFunc.Name.Name
			}
			pass.Reportf(node.Pos(),
				"time.Now() used in %s; derive the time from event timestamps or add a clockcheck:exempt comment",
				funcName)
		}
	})

	return nil, nil
}

// isTimeNow checks if the call expression is time.Now().
func isTimeNow(call *ast.CallExpr) bool {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return false
	}

	ident, ok := sel.X.(*ast.Ident)
	if !ok {
		return false
	}

	return ident.Name == "time" && sel.Sel.Name == "Now"
}

// inTestFile checks if the position belongs to a _test.go file.
func inTestFile(pass *analysis.Pass, pos token.Pos) bool {
	file := pass.Fset.File(pos)
	return file != nil && strings.HasSuffix(file.Name(), "_test.go")
}

// hasExemptionComment checks if the call's line or the line above carries the
// exemption comment.
func hasExemptionComment(pass *analysis.Pass, pos token.Pos) bool {
	file := pass.Fset.File(pos)
	if file == nil {
		return false
	}

	line := file.Line(pos)
	filename := file.Name()

	for _, f := range pass.Files {
		if pass.Fset.File(f.Pos()).Name() != filename {
			continue
		}

		for _, cg := range f.Comments {
			for _, c := range cg.List {
				commentLine := file.Line(c.Pos())
				if commentLine == line || commentLine == line-1 {
					if strings.Contains(c.Text, ExemptionComment) {
						return true
					}
				}
			}
		}
		break
	}

	return false
}
