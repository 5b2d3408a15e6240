package extractor

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/c360studio/healthwatch/facts"
)

// scriptFacts walks a JavaScript or TypeScript parse tree for code facts.
// One walker serves both: the TypeScript-only node types simply never
// appear in JavaScript trees.
func scriptFacts(root *sitter.Node, src []byte, filePath, lang string) []facts.CodeFact {
	w := &scriptWalker{src: src, filePath: filePath, lang: lang}
	w.walk(root, "")
	return w.facts
}

type scriptWalker struct {
	src      []byte
	filePath string
	lang     string
	facts    []facts.CodeFact
}

func (w *scriptWalker) add(f facts.CodeFact) {
	f.FilePath = w.filePath
	w.facts = append(w.facts, f)
}

func (w *scriptWalker) walk(n *sitter.Node, parentFunc string) {
	switch n.Type() {
	case "function_declaration", "generator_function_declaration":
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

	case "variable_declarator":
		// const handler = async () => {...} and friends.
		value := n.ChildByFieldName("value")
		if value != nil && isFunctionValue(value.Type()) {
			name := fieldTextOr(n, w.src, "name", "<anonymous>")
			w.add(facts.CodeFact{
				FactType:       facts.FactFunction,
				Name:           name,
				LineStart:      startLine(n),
				LineEnd:        endLine(n),
				ParentFunction: parentFunc,
			})
			w.walkBody(value, name)
			return
		}

	case "method_definition":
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

	case "class_declaration", "class":
		w.add(facts.CodeFact{
			FactType:       facts.FactClass,
			Name:           fieldTextOr(n, w.src, "name", "<anonymous>"),
			LineStart:      startLine(n),
			LineEnd:        endLine(n),
			ParentFunction: parentFunc,
		})
		w.walkBody(n, parentFunc)
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

	case "call_expression":
		object, method := jsResolveCall(n, w.src)
		switch {
		case object != "" && method != "":
			switch {
			case isLoggingCall(w.lang, object, method):
				w.add(facts.CodeFact{
					FactType:       facts.FactLoggingCall,
					Name:           object + "." + method,
					LineStart:      startLine(n),
					LineEnd:        endLine(n),
					ParentFunction: parentFunc,
					Metadata:       map[string]string{"log_level": method},
				})
			case isMetricsCall(w.lang, object, method):
				w.add(facts.CodeFact{
					FactType:       facts.FactMetricsCall,
					Name:           object + "." + method,
					LineStart:      startLine(n),
					LineEnd:        endLine(n),
					ParentFunction: parentFunc,
				})
			case isExternalIO(w.lang, object, method):
				w.add(facts.CodeFact{
					FactType:       facts.FactExternalIO,
					Name:           object + "." + method,
					LineStart:      startLine(n),
					LineEnd:        endLine(n),
					ParentFunction: parentFunc,
				})
			case isHandlerRegistration(w.lang, object, method):
				w.add(facts.CodeFact{
					FactType:       facts.FactHTTPHandler,
					Name:           object + "." + method,
					LineStart:      startLine(n),
					LineEnd:        endLine(n),
					ParentFunction: parentFunc,
				})
			}
		case method != "":
			// Bare calls: fetch() is the interesting one.
			switch {
			case isLoggingCall(w.lang, "", method):
				w.add(facts.CodeFact{
					FactType:       facts.FactLoggingCall,
					Name:           method,
					LineStart:      startLine(n),
					LineEnd:        endLine(n),
					ParentFunction: parentFunc,
				})
			case isExternalIO(w.lang, "", method):
				w.add(facts.CodeFact{
					FactType:       facts.FactExternalIO,
					Name:           method,
					LineStart:      startLine(n),
					LineEnd:        endLine(n),
					ParentFunction: parentFunc,
				})
			}
		}

	case "import_statement":
		module := ""
		if source := n.ChildByFieldName("source"); source != nil {
			module = stripQuotes(nodeText(source, w.src))
		}
		w.add(facts.CodeFact{
			FactType:       facts.FactImport,
			Name:           module,
			LineStart:      startLine(n),
			LineEnd:        endLine(n),
			ParentFunction: parentFunc,
		})

	case "interface_declaration":
		w.add(facts.CodeFact{
			FactType:       facts.FactClass,
			Name:           fieldTextOr(n, w.src, "name", "<anonymous>"),
			LineStart:      startLine(n),
			LineEnd:        endLine(n),
			ParentFunction: parentFunc,
			Metadata:       map[string]string{"kind": "interface"},
		})
		for i := 0; i < int(n.NamedChildCount()); i++ {
			w.walk(n.NamedChild(i), parentFunc)
		}
		return

	case "type_alias_declaration":
		w.add(facts.CodeFact{
			FactType:       facts.FactClass,
			Name:           fieldTextOr(n, w.src, "name", "<anonymous>"),
			LineStart:      startLine(n),
			LineEnd:        endLine(n),
			ParentFunction: parentFunc,
			Metadata:       map[string]string{"kind": "type_alias"},
		})
		return

	case "enum_declaration":
		w.add(facts.CodeFact{
			FactType:       facts.FactClass,
			Name:           fieldTextOr(n, w.src, "name", "<anonymous>"),
			LineStart:      startLine(n),
			LineEnd:        endLine(n),
			ParentFunction: parentFunc,
			Metadata:       map[string]string{"kind": "enum"},
		})
		return

	case "abstract_class_declaration":
		w.add(facts.CodeFact{
			FactType:       facts.FactClass,
			Name:           fieldTextOr(n, w.src, "name", "<anonymous>"),
			LineStart:      startLine(n),
			LineEnd:        endLine(n),
			ParentFunction: parentFunc,
			Metadata:       map[string]string{"kind": "abstract_class"},
		})
		w.walkBody(n, parentFunc)
		return
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.walk(n.NamedChild(i), parentFunc)
	}
}

func (w *scriptWalker) walkBody(n *sitter.Node, parentFunc string) {
	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		w.walk(body.NamedChild(i), parentFunc)
	}
}

func isFunctionValue(nodeType string) bool {
	switch nodeType {
	case "arrow_function", "function_expression", "function":
		return true
	}
	return false
}

// jsResolveCall splits a call into (object, method). Member calls on a
// plain identifier have an object; chained member access does not classify.
func jsResolveCall(n *sitter.Node, src []byte) (string, string) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return "", ""
	}

	switch fn.Type() {
	case "member_expression":
		object := ""
		if obj := fn.ChildByFieldName("object"); obj != nil && obj.Type() == "identifier" {
			object = nodeText(obj, src)
		}
		return object, fieldText(fn, src, "property")
	case "identifier":
		return "", nodeText(fn, src)
	}
	return "", ""
}
