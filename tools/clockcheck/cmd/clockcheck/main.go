// Command clockcheck runs the time.Now() static analysis checker over
// detection code.
//
// Usage:
//
//	go build -o clockcheck ./tools/clockcheck/cmd/clockcheck
//	go vet -vettool=./clockcheck ./engine/...
//
// The tool flags time.Now() calls outside of test files and lines carrying a
// clockcheck:exempt comment.
package main

import (
	"warptrace/tools/clockcheck"

	"golang.org/x/tools/go/analysis/singlechecker"
)

func main() {
	singlechecker.Main(clockcheck.Analyzer)
}
