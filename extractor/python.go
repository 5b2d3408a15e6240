package extractor

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/c360studio/healthwatch/facts"
)

// pythonFacts walks a Python parse tree for code facts.
func pythonFacts(root *sitter.Node, src []byte, filePath string) []facts.CodeFact {
	w := &pythonWalker{src: src, filePath: filePath}
	w.walk(root, "")
	return w.facts
}

type pythonWalker struct {
	src      []byte
	filePath string
	facts    []facts.CodeFact
}

func (w *pythonWalker) add(f facts.CodeFact) {
	f.FilePath = w.filePath
	w.facts = append(w.facts, f)
}

// walk visits one node. Definitions own the recursion into their bodies so
// nested facts carry the right parent function; call sites and imports fall
// through to the default child walk.
func (w *pythonWalker) walk(n *sitter.Node, parentFunc string) {
	switch n.Type() {
	case "function_definition":
		name := fieldTextOr(n, w.src, "name", "<anonymous>")
		w.add(facts.CodeFact{
			FactType:       facts.FactFunction,
			Name:           name,
			LineStart:      startLine(n),
			LineEnd:        endLine(n),
			ParentFunction: parentFunc,
		})

		for _, dec := range pythonDecorators(n, w.src) {
			if isHandlerDecorator("python", dec) {
				w.add(facts.CodeFact{
					FactType:  facts.FactHTTPHandler,
					Name:      name,
					LineStart: startLine(n),
					LineEnd:   endLine(n),
					Metadata:  map[string]string{"decorator": dec},
				})
				break
			}
		}

		w.walkBody(n, name)
		return

	case "class_definition":
		name := fieldTextOr(n, w.src, "name", "<anonymous>")
		w.add(facts.CodeFact{
			FactType:       facts.FactClass,
			Name:           name,
			LineStart:      startLine(n),
			LineEnd:        endLine(n),
			ParentFunction: parentFunc,
		})
		// Methods stay at the class's scope, not inside a parent function.
		w.walkBody(n, parentFunc)
		return

	case "decorated_definition":
		// The decorators belong to the inner definition; no fact for the
		// wrapper itself.
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if t := child.Type(); t == "function_definition" || t == "class_definition" {
				w.walk(child, parentFunc)
			}
		}
		return

	case "try_statement":
		w.add(facts.CodeFact{
			FactType:       facts.FactTryExcept,
			Name:           "try",
			LineStart:      startLine(n),
			LineEnd:        endLine(n),
			ParentFunction: parentFunc,
		})
		for i := 0; i < int(n.NamedChildCount()); i++ {
			w.walk(n.NamedChild(i), parentFunc)
		}
		return

	case "call":
		object, method := pythonResolveCall(n, w.src)
		switch {
		case object != "" && method != "":
			switch {
			case isLoggingCall("python", object, method):
				w.add(facts.CodeFact{
					FactType:       facts.FactLoggingCall,
					Name:           object + "." + method,
					LineStart:      startLine(n),
					LineEnd:        endLine(n),
					ParentFunction: parentFunc,
					Metadata:       map[string]string{"log_level": method},
				})
			case isMetricsCall("python", object, method):
				w.add(facts.CodeFact{
					FactType:       facts.FactMetricsCall,
					Name:           object + "." + method,
					LineStart:      startLine(n),
					LineEnd:        endLine(n),
					ParentFunction: parentFunc,
				})
			case isExternalIO("python", object, method):
				w.add(facts.CodeFact{
					FactType:       facts.FactExternalIO,
					Name:           object + "." + method,
					LineStart:      startLine(n),
					LineEnd:        endLine(n),
					ParentFunction: parentFunc,
				})
			}
		case method != "":
			switch {
			case isLoggingCall("python", "", method):
				w.add(facts.CodeFact{
					FactType:       facts.FactLoggingCall,
					Name:           method,
					LineStart:      startLine(n),
					LineEnd:        endLine(n),
					ParentFunction: parentFunc,
					Metadata:       map[string]string{"log_level": "info"},
				})
			case isMetricsCall("python", "", method):
				w.add(facts.CodeFact{
					FactType:       facts.FactMetricsCall,
					Name:           method,
					LineStart:      startLine(n),
					LineEnd:        endLine(n),
					ParentFunction: parentFunc,
				})
			case isExternalIO("python", "", method):
				w.add(facts.CodeFact{
					FactType:       facts.FactExternalIO,
					Name:           method,
					LineStart:      startLine(n),
					LineEnd:        endLine(n),
					ParentFunction: parentFunc,
				})
			}
		}

	case "import_statement", "import_from_statement":
		w.add(facts.CodeFact{
			FactType:       facts.FactImport,
			Name:           pythonImportModule(n, w.src),
			LineStart:      startLine(n),
			LineEnd:        endLine(n),
			ParentFunction: parentFunc,
		})
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.walk(n.NamedChild(i), parentFunc)
	}
}

func (w *pythonWalker) walkBody(n *sitter.Node, parentFunc string) {
	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		w.walk(body.NamedChild(i), parentFunc)
	}
}

// pythonDecorators returns the decorator names attached to a definition.
// Decorators live on the enclosing decorated_definition node; a plain call
// decorator like @app.get("/x") yields "app.get".
func pythonDecorators(n *sitter.Node, src []byte) []string {
	parent := n.Parent()
	if parent == nil || parent.Type() != "decorated_definition" {
		return nil
	}

	var decorators []string
	for i := 0; i < int(parent.NamedChildCount()); i++ {
		child := parent.NamedChild(i)
		if child.Type() != "decorator" {
			continue
		}
		for j := 0; j < int(child.NamedChildCount()); j++ {
			inner := child.NamedChild(j)
			switch inner.Type() {
			case "identifier", "attribute":
				decorators = append(decorators, nodeText(inner, src))
			case "call":
				if fn := inner.ChildByFieldName("function"); fn != nil {
					decorators = append(decorators, nodeText(fn, src))
				}
			}
		}
	}
	return decorators
}

// pythonResolveCall splits a call into (object, method). Attribute calls
// keep the full receiver expression text; bare calls have no object.
func pythonResolveCall(n *sitter.Node, src []byte) (string, string) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return "", ""
	}

	switch fn.Type() {
	case "attribute":
		return fieldText(fn, src, "object"), fieldText(fn, src, "attribute")
	case "identifier":
		return "", nodeText(fn, src)
	}
	return "", ""
}

// pythonImportModule returns the module named by an import statement.
func pythonImportModule(n *sitter.Node, src []byte) string {
	if n.Type() == "import_from_statement" {
		return fieldText(n, src, "module_name")
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			return nodeText(child, src)
		case "aliased_import":
			return fieldText(child, src, "name")
		}
	}
	return ""
}
