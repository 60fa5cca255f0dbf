// Package script loads JavaScript plugin files and exposes their
// top-level functions as registry descriptors.
//
// Each file is compiled once and evaluated in a throwaway VM to validate
// its module-level code; the compiled program is then re-evaluated in a
// fresh VM on every invocation, so files never share state with each
// other or between calls. Parameter lists come from the parsed AST,
// summaries and detection hints from the line comments directly above
// each function declaration.
package script

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"

	"github.com/goatkit/funcflow/internal/coerce"
	"github.com/goatkit/funcflow/internal/registry"
)

// DefaultSymbol is the function name mapped to a file's default entry
// point: "math/add.js" defining run() registers as "math/add".
const DefaultSymbol = "run"

// Loader implements registry.Loader for JavaScript plugin files.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a script loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load compiles and evaluates one plugin file and returns a descriptor
// per public top-level function. Load never panics; any compile or
// module-evaluation failure comes back as a *registry.LoadError scoped
// to this file.
func (l *Loader) Load(path, name string) ([]*registry.Descriptor, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &registry.LoadError{Path: path, Err: err}
	}
	source := string(src)

	prog, err := compile(path, source)
	if err != nil {
		return nil, &registry.LoadError{Path: path, Err: err}
	}

	// Evaluate module-level code once to catch runtime failures up
	// front. The VM is discarded; invocations get their own.
	vm := goja.New()
	if _, err := vm.RunProgram(prog); err != nil {
		return nil, &registry.LoadError{Path: path, Err: fmt.Errorf("evaluate: %w", err)}
	}

	tree, err := parser.ParseFile(nil, path, source, 0)
	if err != nil {
		return nil, &registry.LoadError{Path: path, Err: fmt.Errorf("parse: %w", err)}
	}
	docs := extractDocs(source)

	now := time.Now()
	var descs []*registry.Descriptor
	for _, stmt := range tree.Body {
		decl, ok := stmt.(*ast.FunctionDeclaration)
		if ok && decl.Function != nil && decl.Function.Name != nil {
			symbol := decl.Function.Name.Name.String()
			if strings.HasPrefix(symbol, "_") {
				continue
			}
			if _, callable := goja.AssertFunction(vm.Get(symbol)); !callable {
				continue
			}

			params := extractParams(decl.Function, source)
			doc := docs[symbol]
			fnName := name
			if symbol != DefaultSymbol {
				fnName = name + "/" + symbol
			}

			descs = append(descs, &registry.Descriptor{
				Name:       fnName,
				Params:     params,
				Summary:    doc.summary,
				Hints:      doc.hints,
				SourcePath: path,
				LoadedAt:   now,
				Invoker: &function{
					prog:   prog,
					path:   path,
					symbol: symbol,
					params: params,
				},
			})
			l.logger.Debug("loaded function", "name", fnName, "path", path)
		}
	}
	return descs, nil
}

// compile shields the caller from goja parser panics on pathological
// input; they surface as load errors like any other failure.
func compile(path, source string) (prog *goja.Program, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compile panic: %v", r)
		}
	}()
	return goja.Compile(path, source, false)
}

// extractParams reads the declared parameter list off the AST. Default
// values are recovered from the source text and run through the regular
// coercion cascade so "2" becomes an int and "\"x\"" a string.
func extractParams(fn *ast.FunctionLiteral, source string) []registry.Parameter {
	if fn.ParameterList == nil {
		return nil
	}
	params := make([]registry.Parameter, 0, len(fn.ParameterList.List))
	for i, binding := range fn.ParameterList.List {
		p := registry.Parameter{Name: fmt.Sprintf("arg%d", i)}
		if ident, ok := binding.Target.(*ast.Identifier); ok {
			p.Name = ident.Name.String()
		}
		if binding.Initializer != nil {
			p.HasDefault = true
			p.Default = coerce.Value(sliceSource(source, binding.Initializer))
		}
		params = append(params, p)
	}
	return params
}

// sliceSource returns the source text of a node. goja positions are
// one-based byte offsets.
func sliceSource(source string, node ast.Node) string {
	start, end := int(node.Idx0())-1, int(node.Idx1())-1
	if start < 0 || end > len(source) || start >= end {
		return ""
	}
	return source[start:end]
}

type docComment struct {
	summary string
	hints   []string
}

var docRe = regexp.MustCompile(`(?m)^((?:[ \t]*//[^\n]*\n)+)[ \t]*function[ \t]+([A-Za-z_$][A-Za-z0-9_$]*)[ \t]*\(`)

var hintRe = regexp.MustCompile(`(?i)^triggers?:\s*(.+)$`)

// extractDocs collects the block of // comments immediately above each
// function declaration. The first plain line becomes the summary; a
// "Triggers: a, b, c" line declares explicit detection hints.
func extractDocs(source string) map[string]docComment {
	docs := map[string]docComment{}
	for _, m := range docRe.FindAllStringSubmatch(source, -1) {
		block, symbol := m[1], m[2]
		var doc docComment
		for _, line := range strings.Split(block, "\n") {
			line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "//"))
			if line == "" {
				continue
			}
			if hm := hintRe.FindStringSubmatch(line); hm != nil {
				for _, h := range strings.FieldsFunc(hm[1], func(r rune) bool {
					return r == ',' || r == ' '
				}) {
					if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
						doc.hints = append(doc.hints, h)
					}
				}
				continue
			}
			if doc.summary == "" {
				doc.summary = line
			}
		}
		docs[symbol] = doc
	}
	return docs
}
