// Package extractor derives structured code facts from source files using
// tree-sitter grammars. It is the in-process implementation of the parser
// contract in the facts package: one walk per file yielding function, class,
// try/except, logging, metrics, HTTP handler, external I/O, and import facts
// with 1-indexed line ranges. Python, Go, JavaScript, and TypeScript are
// supported; call-site classification is driven by the pattern tables in
// patterns.go.
package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/c360studio/healthwatch/facts"
)

// DefaultMaxFiles caps how many files of a repository snapshot are walked
// per review.
const DefaultMaxFiles = 5000

// extensionLanguages maps file extensions to language names.
var extensionLanguages = map[string]string{
	".py":  "python",
	".js":  "javascript",
	".jsx": "javascript",
	".mjs": "javascript",
	".cjs": "javascript",
	".ts":  "typescript",
	".tsx": "typescript",
	".go":  "go",
}

// LanguageForFile returns the language name for a file path based on its
// extension, or empty string when the extension is not supported.
func LanguageForFile(path string) string {
	return extensionLanguages[strings.ToLower(filepath.Ext(path))]
}

// Supported reports whether facts can be extracted for the language.
func Supported(language string) bool {
	switch strings.ToLower(language) {
	case "python", "go", "javascript", "typescript":
		return true
	}
	return false
}

// grammarFor returns the tree-sitter grammar for a language. TypeScript
// files with a .tsx extension need the dedicated TSX grammar.
func grammarFor(language, filePath string) *sitter.Language {
	switch language {
	case "python":
		return python.GetLanguage()
	case "go":
		return golang.GetLanguage()
	case "javascript":
		return javascript.GetLanguage()
	case "typescript":
		if strings.EqualFold(filepath.Ext(filePath), ".tsx") {
			return tsx.GetLanguage()
		}
		return typescript.GetLanguage()
	}
	return nil
}

// Extract parses content with the grammar for the given language and walks
// the tree for code facts. Language names are matched case-insensitively.
// Sources with syntax errors still yield facts for the regions tree-sitter
// could parse.
func Extract(ctx context.Context, language, filePath string, content []byte) (facts.FileFacts, error) {
	lang := strings.ToLower(language)
	grammar := grammarFor(lang, filePath)
	if grammar == nil {
		return facts.FileFacts{}, fmt.Errorf("unsupported language %q", language)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(grammar)
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return facts.FileFacts{}, fmt.Errorf("parse %s: %w", filePath, err)
	}
	defer tree.Close()

	var extracted []facts.CodeFact
	switch lang {
	case "python":
		extracted = pythonFacts(tree.RootNode(), content, filePath)
	case "go":
		extracted = goFacts(tree.RootNode(), content, filePath)
	case "javascript", "typescript":
		extracted = scriptFacts(tree.RootNode(), content, filePath, lang)
	}

	return facts.FileFacts{
		FilePath: filePath,
		Language: lang,
		Facts:    extracted,
	}, nil
}

// Service extracts facts for whole repository snapshots.
type Service struct {
	maxFiles int
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMaxFiles caps how many files of a snapshot are walked. Zero or
// negative disables the cap.
func WithMaxFiles(n int) Option {
	return func(s *Service) {
		s.maxFiles = n
	}
}

// NewService creates a snapshot extractor.
func NewService(opts ...Option) *Service {
	s := &Service{
		maxFiles: DefaultMaxFiles,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExtractRepository walks every parseable file of a snapshot and returns
// per-file facts. Files with empty content or language are skipped, as are
// languages without a grammar. Files that already carry parser-provided
// facts are taken as-is without re-parsing. Only context cancellation
// aborts the sweep; per-file parse failures are logged and skipped.
func (s *Service) ExtractRepository(ctx context.Context, repo *facts.ParsedRepository) ([]facts.FileFacts, error) {
	if repo == nil || len(repo.Files) == 0 {
		return nil, nil
	}

	files := repo.Files
	if s.maxFiles > 0 && len(files) > s.maxFiles {
		s.logger.Warn("snapshot exceeds file cap, truncating",
			"repo", repo.RepoFullName,
			"files", len(files),
			"cap", s.maxFiles)
		files = files[:s.maxFiles]
	}

	var out []facts.FileFacts
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if len(f.Facts) > 0 {
			out = append(out, facts.FileFacts{
				FilePath: f.FilePath,
				Language: strings.ToLower(f.Language),
				Facts:    f.Facts,
			})
			continue
		}

		if f.Content == "" || f.Language == "" {
			continue
		}
		if !Supported(f.Language) {
			s.logger.Debug("no extractor for language",
				"file", f.FilePath,
				"language", f.Language)
			continue
		}

		ff, err := Extract(ctx, f.Language, f.FilePath, []byte(f.Content))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("fact extraction failed",
				"file", f.FilePath,
				"language", f.Language,
				"error", err)
			continue
		}
		out = append(out, ff)
	}

	s.logger.Info("extracted code facts",
		"repo", repo.RepoFullName,
		"files", len(out))
	return out, nil
}

// nodeText returns the source text spanned by a node.
func nodeText(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	return string(src[n.StartByte():n.EndByte()])
}

// fieldText returns the text of a named field child, empty when absent.
func fieldText(n *sitter.Node, src []byte, field string) string {
	return nodeText(n.ChildByFieldName(field), src)
}

// fieldTextOr returns the text of a named field child with a fallback.
func fieldTextOr(n *sitter.Node, src []byte, field, fallback string) string {
	if text := fieldText(n, src, field); text != "" {
		return text
	}
	return fallback
}

func startLine(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

func endLine(n *sitter.Node) int {
	return int(n.EndPoint().Row) + 1
}

// stripQuotes removes one layer of matching string delimiters.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'' || first == '`') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return s
}
