package extractor

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/c360studio/healthwatch/facts"
)

// goFacts walks a Go parse tree for code facts.
func goFacts(root *sitter.Node, src []byte, filePath string) []facts.CodeFact {
	w := &goWalker{src: src, filePath: filePath}
	w.walk(root, "")
	return w.facts
}

type goWalker struct {
	src      []byte
	filePath string
	facts    []facts.CodeFact
}

func (w *goWalker) add(f facts.CodeFact) {
	f.FilePath = w.filePath
	w.facts = append(w.facts, f)
}

// walk visits one node. Function and method declarations own the recursion
// into their bodies; type declarations, error checks, call sites, and
// imports fall through to the default child walk. `if err != nil` blocks
// stand in for try/except in the error-handling rules.
func (w *goWalker) walk(n *sitter.Node, parentFunc string) {
	switch n.Type() {
	case "function_declaration":
		name := fieldTextOr(n, w.src, "name", "<anonymous>")
		w.add(facts.CodeFact{
			FactType:       facts.FactFunction,
			Name:           name,
			LineStart:      startLine(n),
			LineEnd:        endLine(n),
			ParentFunction: parentFunc,
		})
		w.walkBody(n, name)
		return

	case "method_declaration":
		name := fieldTextOr(n, w.src, "name", "<anonymous>")
		receiver := goReceiverType(n, w.src)

		fact := facts.CodeFact{
			FactType:       facts.FactFunction,
			Name:           name,
			LineStart:      startLine(n),
			LineEnd:        endLine(n),
			ParentFunction: parentFunc,
		}
		if receiver != "" {
			fact.Metadata = map[string]string{"receiver_type": receiver}
		}
		w.add(fact)

		if goIsHandlerSignature(n, w.src) {
			handler := facts.CodeFact{
				FactType:  facts.FactHTTPHandler,
				Name:      name,
				LineStart: startLine(n),
				LineEnd:   endLine(n),
			}
			if receiver != "" {
				handler.Metadata = map[string]string{"receiver_type": receiver}
			}
			w.add(handler)
		}

		w.walkBody(n, name)
		return

	case "type_declaration":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			spec := n.NamedChild(i)
			if spec.Type() != "type_spec" {
				continue
			}
			typeNode := spec.ChildByFieldName("type")
			if typeNode == nil {
				continue
			}
			kind := "type_alias"
			switch typeNode.Type() {
			case "struct_type":
				kind = "struct"
			case "interface_type":
				kind = "interface"
			}
			w.add(facts.CodeFact{
				FactType:       facts.FactClass,
				Name:           fieldTextOr(spec, w.src, "name", "<anonymous>"),
				LineStart:      startLine(spec),
				LineEnd:        endLine(spec),
				ParentFunction: parentFunc,
				Metadata:       map[string]string{"kind": kind},
			})
		}

	case "if_statement":
		if goIsErrorCheck(n, w.src) {
			w.add(facts.CodeFact{
				FactType:       facts.FactTryExcept,
				Name:           "if_err",
				LineStart:      startLine(n),
				LineEnd:        endLine(n),
				ParentFunction: parentFunc,
			})
		}

	case "call_expression":
		object, method := goResolveCall(n, w.src)
		if object != "" && method != "" {
			switch {
			case isLoggingCall("go", object, method):
				w.add(facts.CodeFact{
					FactType:       facts.FactLoggingCall,
					Name:           object + "." + method,
					LineStart:      startLine(n),
					LineEnd:        endLine(n),
					ParentFunction: parentFunc,
					Metadata:       map[string]string{"log_level": strings.ToLower(method)},
				})
			case isMetricsCall("go", object, method):
				w.add(facts.CodeFact{
					FactType:       facts.FactMetricsCall,
					Name:           object + "." + method,
					LineStart:      startLine(n),
					LineEnd:        endLine(n),
					ParentFunction: parentFunc,
				})
			case isExternalIO("go", object, method):
				w.add(facts.CodeFact{
					FactType:       facts.FactExternalIO,
					Name:           object + "." + method,
					LineStart:      startLine(n),
					LineEnd:        endLine(n),
					ParentFunction: parentFunc,
				})
			case isHandlerRegistration("go", object, method):
				w.add(facts.CodeFact{
					FactType:       facts.FactHTTPHandler,
					Name:           object + "." + method,
					LineStart:      startLine(n),
					LineEnd:        endLine(n),
					ParentFunction: parentFunc,
				})
			}
		}

	case "import_declaration":
		w.addImports(n, parentFunc)
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.walk(n.NamedChild(i), parentFunc)
	}
}

func (w *goWalker) walkBody(n *sitter.Node, parentFunc string) {
	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		w.walk(body.NamedChild(i), parentFunc)
	}
}

// addImports handles single imports, grouped import blocks, and the bare
// string form.
func (w *goWalker) addImports(n *sitter.Node, parentFunc string) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "import_spec":
			w.addImportSpec(child, parentFunc)
		case "import_spec_list":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				if spec := child.NamedChild(j); spec.Type() == "import_spec" {
					w.addImportSpec(spec, parentFunc)
				}
			}
		case "interpreted_string_literal":
			w.add(facts.CodeFact{
				FactType:       facts.FactImport,
				Name:           stripQuotes(nodeText(child, w.src)),
				LineStart:      startLine(child),
				LineEnd:        endLine(child),
				ParentFunction: parentFunc,
			})
		}
	}
}

func (w *goWalker) addImportSpec(spec *sitter.Node, parentFunc string) {
	path := spec.ChildByFieldName("path")
	if path == nil {
		return
	}
	w.add(facts.CodeFact{
		FactType:       facts.FactImport,
		Name:           stripQuotes(nodeText(path, w.src)),
		LineStart:      startLine(spec),
		LineEnd:        endLine(spec),
		ParentFunction: parentFunc,
	})
}

// goReceiverType extracts the receiver type name from a method declaration,
// without pointer markers: (s *Server) yields "Server".
func goReceiverType(n *sitter.Node, src []byte) string {
	receiver := n.ChildByFieldName("receiver")
	if receiver == nil {
		return ""
	}
	text := strings.Trim(nodeText(receiver, src), "()")
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return ""
	}
	return strings.Trim(parts[len(parts)-1], "*")
}

// goIsErrorCheck reports whether an if statement is an error check.
func goIsErrorCheck(n *sitter.Node, src []byte) bool {
	condition := fieldText(n, src, "condition")
	return strings.Contains(condition, "err") && strings.Contains(condition, "nil")
}

// goIsHandlerSignature reports whether a function takes the standard
// http.Handler parameter pair.
func goIsHandlerSignature(n *sitter.Node, src []byte) bool {
	params := fieldText(n, src, "parameters")
	return strings.Contains(params, "http.ResponseWriter") &&
		strings.Contains(params, "http.Request")
}

// goResolveCall splits a call into (object, method). Only selector calls on
// a plain identifier have an object; chained selectors do not classify.
func goResolveCall(n *sitter.Node, src []byte) (string, string) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return "", ""
	}

	switch fn.Type() {
	case "selector_expression":
		object := ""
		if operand := fn.ChildByFieldName("operand"); operand != nil && operand.Type() == "identifier" {
			object = nodeText(operand, src)
		}
		return object, fieldText(fn, src, "field")
	case "identifier":
		return "", nodeText(fn, src)
	}
	return "", ""
}
