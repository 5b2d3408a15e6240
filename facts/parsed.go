package facts

import "time"

// ParseStatus tracks the lifecycle of a parsed repository snapshot.
type ParseStatus string

const (
	ParsePending    ParseStatus = "pending"
	ParseInProgress ParseStatus = "in_progress"
	ParseCompleted  ParseStatus = "completed"
	ParseFailed     ParseStatus = "failed"
)

// FunctionInfo describes a parsed function signature.
type FunctionInfo struct {
	Name      string `json:"name"`
	LineStart int    `json:"line_start"`
	LineEnd   int    `json:"line_end,omitempty"`
}

// ClassInfo describes a parsed class or type declaration.
type ClassInfo struct {
	Name      string   `json:"name"`
	LineStart int      `json:"line_start"`
	LineEnd   int      `json:"line_end,omitempty"`
	Methods   []string `json:"methods,omitempty"`
}

// ImportInfo describes an import statement.
type ImportInfo struct {
	Module string   `json:"module"`
	Names  []string `json:"names,omitempty"`
}

// ParsedFile is one file of a parsed repository snapshot, as delivered by
// the external code parser. Content may be empty for binary or skipped files.
type ParsedFile struct {
	FilePath  string         `json:"file_path"`
	Language  string         `json:"language"`
	Content   string         `json:"content,omitempty"`
	LineCount int            `json:"line_count"`
	Functions []FunctionInfo `json:"functions,omitempty"`
	Classes   []ClassInfo    `json:"classes,omitempty"`
	Imports   []ImportInfo   `json:"imports,omitempty"`
	Facts     []CodeFact     `json:"facts,omitempty"`
}

// ParsedRepository is a complete parser snapshot of one repository at one
// commit. ChangedFiles lists paths modified since the previous snapshot;
// an empty list means the delta is unknown and context reuse is disabled.
type ParsedRepository struct {
	ID           string       `json:"id"`
	WorkspaceID  string       `json:"workspace_id"`
	RepoFullName string       `json:"repo_full_name"`
	CommitSHA    string       `json:"commit_sha"`
	Status       ParseStatus  `json:"status"`
	Files        []ParsedFile `json:"files"`
	ChangedFiles []string     `json:"changed_files,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// File returns the parsed file at path, or nil when absent.
func (r *ParsedRepository) File(path string) *ParsedFile {
	for i := range r.Files {
		if r.Files[i].FilePath == path {
			return &r.Files[i]
		}
	}
	return nil
}
