// Package facts defines the structured code facts consumed by the rule
// engine and verification pipeline. Facts are produced by the structural
// extractor (or an external parser) and describe located observations in
// source code: functions, classes, try/except blocks, logging calls,
// metrics calls, HTTP handlers, external I/O, and imports.
package facts

// FactType identifies the kind of code observation.
type FactType string

const (
	FactFunction    FactType = "function"
	FactClass       FactType = "class"
	FactTryExcept   FactType = "try_except"
	FactLoggingCall FactType = "logging_call"
	FactMetricsCall FactType = "metrics_call"
	FactHTTPHandler FactType = "http_handler"
	FactExternalIO  FactType = "external_io"
	FactImport      FactType = "import"
)

// CodeFact is a typed, located observation extracted from a source file.
type CodeFact struct {
	// FactType is the kind of observation.
	FactType FactType `json:"fact_type"`

	// FilePath is the repository-relative path of the source file.
	FilePath string `json:"file_path"`

	// Name is the identifier associated with the fact (function name,
	// class name, imported module, handler route, etc.).
	Name string `json:"name"`

	// LineStart is the 1-indexed first line of the fact.
	LineStart int `json:"line_start"`

	// LineEnd is the 1-indexed last line, or 0 when unknown (single-line facts).
	LineEnd int `json:"line_end,omitempty"`

	// ParentFunction is the enclosing function name, empty at module level.
	ParentFunction string `json:"parent_function,omitempty"`

	// Metadata carries type-specific attributes: "log_level" for
	// logging_call facts, "kind" for class facts, "decorator" or
	// "receiver_type" for http_handler facts.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Meta returns a metadata value, empty string when absent.
func (f CodeFact) Meta(key string) string {
	if f.Metadata == nil {
		return ""
	}
	return f.Metadata[key]
}

// EndOrStart returns LineEnd, falling back to LineStart for single-line facts.
func (f CodeFact) EndOrStart() int {
	if f.LineEnd > 0 {
		return f.LineEnd
	}
	return f.LineStart
}

// FileFacts holds all facts extracted from one source file.
type FileFacts struct {
	FilePath string     `json:"file_path"`
	Language string     `json:"language"`
	Facts    []CodeFact `json:"facts"`
}

// Index groups a flattened fact list by file path and by fact type.
// Both views reference the same underlying facts.
type Index struct {
	ByFile map[string][]CodeFact
	ByType map[FactType][]CodeFact
	All    []CodeFact
}

// BuildIndex flattens per-file facts into the dual index the rule engine
// operates on.
func BuildIndex(files []FileFacts) *Index {
	idx := &Index{
		ByFile: make(map[string][]CodeFact),
		ByType: make(map[FactType][]CodeFact),
	}
	for _, ff := range files {
		for _, f := range ff.Facts {
			if f.FilePath == "" {
				f.FilePath = ff.FilePath
			}
			idx.All = append(idx.All, f)
			idx.ByFile[f.FilePath] = append(idx.ByFile[f.FilePath], f)
			idx.ByType[f.FactType] = append(idx.ByType[f.FactType], f)
		}
	}
	return idx
}

// FileCount returns how many distinct files contributed facts.
func (idx *Index) FileCount() int {
	return len(idx.ByFile)
}
