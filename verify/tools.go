package verify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/c360studio/healthwatch/facts"
	"github.com/c360studio/healthwatch/llm"
)

const (
	// readFileMaxChars caps a single read_file response so one large file
	// cannot blow the agent's context window.
	readFileMaxChars = 15000

	// defaultSearchLimit bounds search_files and list_files result counts.
	defaultSearchLimit = 50

	// snippetBefore and snippetLength frame the excerpt around a search hit:
	// the window starts 50 characters before the match and spans 200.
	snippetBefore = 50
	snippetLength = 200
)

// RepoTools serves the verification agent's read-only tools over a parsed
// repository snapshot. No tool touches the network or the live repository;
// everything answers from the snapshot's file contents.
type RepoTools struct {
	repo        *facts.ParsedRepository
	logger      *slog.Logger
	searchLimit int
}

// RepoToolsOption configures a RepoTools.
type RepoToolsOption func(*RepoTools)

// WithToolsLogger sets the executor's logger.
func WithToolsLogger(logger *slog.Logger) RepoToolsOption {
	return func(t *RepoTools) {
		t.logger = logger
	}
}

// WithSearchLimit overrides the search_files/list_files result cap.
func WithSearchLimit(n int) RepoToolsOption {
	return func(t *RepoTools) {
		if n > 0 {
			t.searchLimit = n
		}
	}
}

// NewRepoTools creates a tool executor over one repository snapshot.
func NewRepoTools(repo *facts.ParsedRepository, opts ...RepoToolsOption) *RepoTools {
	t := &RepoTools{
		repo:        repo,
		logger:      slog.Default(),
		searchLimit: defaultSearchLimit,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ListTools returns the definitions for read_file, search_files, and
// list_files.
func (t *RepoTools) ListTools() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name: "read_file",
			Description: "Read the full content of a file from the parsed repository. " +
				"Use this to read source files like main.py, middleware files, " +
				"instrumentation files, or any file you need to inspect.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"file_path": map[string]any{
						"type":        "string",
						"description": "Path to the file within the repository (e.g., 'app/main.py')",
					},
				},
				"required": []string{"file_path"},
			},
		},
		{
			Name: "search_files",
			Description: "Search parsed files for a keyword in their content. " +
				"Returns matching file paths with a snippet of the matching line. " +
				"Use this to find files containing middleware registration, metrics setup, " +
				"event listeners, or other patterns.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Keyword to search for in file content (e.g., 'add_middleware', 'HTTPMetrics')",
					},
				},
				"required": []string{"query"},
			},
		},
		{
			Name: "list_files",
			Description: "List file paths matching a pattern in the repository. " +
				"Use this to find middleware files, config files, or instrumentation modules. " +
				"Patterns without a slash match any path segment; '**' crosses directories.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"pattern": map[string]any{
						"type":        "string",
						"description": "Path pattern to match (e.g., '*middleware*', 'app/core/**', '**/main.py')",
					},
				},
				"required": []string{"pattern"},
			},
		},
	}
}

// Execute dispatches one tool call.
func (t *RepoTools) Execute(_ context.Context, call llm.ToolCall) (llm.ToolResult, error) {
	switch call.Name {
	case "read_file":
		return t.readFile(call), nil
	case "search_files":
		return t.searchFiles(call), nil
	case "list_files":
		return t.listFiles(call), nil
	default:
		return llm.ToolResult{
			CallID: call.ID,
			Error:  fmt.Sprintf("unknown tool: %s", call.Name),
		}, fmt.Errorf("unknown tool: %s", call.Name)
	}
}

func (t *RepoTools) readFile(call llm.ToolCall) llm.ToolResult {
	path, ok := call.Arguments["file_path"].(string)
	if !ok || path == "" {
		return llm.ToolResult{CallID: call.ID, Error: "file_path argument is required"}
	}

	t.logger.Info("tool read_file", "path", path)

	file := t.repo.File(path)
	if file == nil || file.Content == "" {
		return llm.ToolResult{
			CallID:  call.ID,
			Content: fmt.Sprintf("File not found: %s", path),
		}
	}

	content := file.Content
	if len(content) > readFileMaxChars {
		content = content[:readFileMaxChars] +
			fmt.Sprintf("\n\n... [truncated at %d chars, file has %d lines]", readFileMaxChars, file.LineCount)
	}

	return llm.ToolResult{
		CallID:  call.ID,
		Content: fmt.Sprintf("=== %s (%s, %d lines) ===\n%s", path, file.Language, file.LineCount, content),
	}
}

func (t *RepoTools) searchFiles(call llm.ToolCall) llm.ToolResult {
	query, ok := call.Arguments["query"].(string)
	if !ok || query == "" {
		return llm.ToolResult{CallID: call.ID, Error: "query argument is required"}
	}

	t.logger.Info("tool search_files", "query", query)

	type hit struct {
		file    *facts.ParsedFile
		snippet string
	}

	lowered := strings.ToLower(query)
	var hits []hit
	for i := range t.repo.Files {
		file := &t.repo.Files[i]
		idx := strings.Index(strings.ToLower(file.Content), lowered)
		if idx < 0 {
			continue
		}
		hits = append(hits, hit{file: file, snippet: excerpt(file.Content, idx)})
	}

	if len(hits) == 0 {
		return llm.ToolResult{
			CallID:  call.ID,
			Content: fmt.Sprintf("No files found containing '%s'", query),
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].file.FilePath < hits[j].file.FilePath })
	if len(hits) > t.searchLimit {
		hits = hits[:t.searchLimit]
	}

	lines := []string{fmt.Sprintf("Found %d file(s) containing '%s':\n", len(hits), query)}
	for _, h := range hits {
		lines = append(lines, fmt.Sprintf("  %s (%s, %d lines)", h.file.FilePath, h.file.Language, h.file.LineCount))
		if h.snippet != "" {
			lines = append(lines, fmt.Sprintf("    ...%s...", h.snippet))
		}
	}
	return llm.ToolResult{CallID: call.ID, Content: strings.Join(lines, "\n")}
}

func (t *RepoTools) listFiles(call llm.ToolCall) llm.ToolResult {
	pattern, ok := call.Arguments["pattern"].(string)
	if !ok || pattern == "" {
		return llm.ToolResult{CallID: call.ID, Error: "pattern argument is required"}
	}

	t.logger.Info("tool list_files", "pattern", pattern)

	normalized := normalizePattern(pattern)
	if !doublestar.ValidatePattern(normalized) {
		return llm.ToolResult{
			CallID: call.ID,
			Error:  fmt.Sprintf("invalid pattern: %s", pattern),
		}
	}

	var matched []*facts.ParsedFile
	for i := range t.repo.Files {
		file := &t.repo.Files[i]
		if matchPath(normalized, file.FilePath) {
			matched = append(matched, file)
		}
	}

	if len(matched) == 0 {
		return llm.ToolResult{
			CallID:  call.ID,
			Content: fmt.Sprintf("No files matching pattern '%s'", pattern),
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].FilePath < matched[j].FilePath })
	if len(matched) > t.searchLimit {
		matched = matched[:t.searchLimit]
	}

	lines := []string{fmt.Sprintf("Found %d file(s) matching '%s':\n", len(matched), pattern)}
	for _, file := range matched {
		lines = append(lines, fmt.Sprintf("  %s (%s, %d lines)", file.FilePath, file.Language, file.LineCount))
	}
	return llm.ToolResult{CallID: call.ID, Content: strings.Join(lines, "\n")}
}

// excerpt returns the text window anchored 50 characters before the match,
// clipped to the content bounds without re-centering.
func excerpt(content string, idx int) string {
	start := idx - snippetBefore
	end := start + snippetLength
	if start < 0 {
		start = 0
	}
	if end > len(content) {
		end = len(content)
	}
	if end < start {
		end = start
	}
	return strings.ReplaceAll(strings.TrimSpace(content[start:end]), "\n", " ")
}

// normalizePattern lowercases the pattern and accepts SQL-LIKE '%' wildcards
// the model sometimes produces, mapping them to '*'.
func normalizePattern(pattern string) string {
	return strings.ToLower(strings.ReplaceAll(pattern, "%", "*"))
}

// matchPath matches a normalized pattern against a repository path. Patterns
// without a separator match any single path segment, so '*middleware*' finds
// both middleware.py and files inside a middleware/ directory. Patterns with
// separators match the whole path with doublestar semantics.
func matchPath(pattern, path string) bool {
	path = strings.ToLower(path)
	if !strings.Contains(pattern, "/") {
		for _, segment := range strings.Split(path, "/") {
			if ok, err := doublestar.Match(pattern, segment); err == nil && ok {
				return true
			}
		}
		return false
	}
	ok, err := doublestar.Match(pattern, path)
	return err == nil && ok
}
