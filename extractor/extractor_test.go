package extractor

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/healthwatch/facts"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// ofType filters facts by type.
func ofType(all []facts.CodeFact, ft facts.FactType) []facts.CodeFact {
	var out []facts.CodeFact
	for _, f := range all {
		if f.FactType == ft {
			out = append(out, f)
		}
	}
	return out
}

// factByName finds the first fact of a type with the given name.
func factByName(t *testing.T, all []facts.CodeFact, ft facts.FactType, name string) facts.CodeFact {
	t.Helper()
	for _, f := range all {
		if f.FactType == ft && f.Name == name {
			return f
		}
	}
	t.Fatalf("no %s fact named %q in %v", ft, name, all)
	return facts.CodeFact{}
}

func factNames(all []facts.CodeFact) []string {
	out := make([]string, 0, len(all))
	for _, f := range all {
		out = append(out, f.Name)
	}
	return out
}

func TestLanguageForFile(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"app/main.py", "python"},
		{"src/index.js", "javascript"},
		{"src/View.JSX", "javascript"},
		{"src/worker.mjs", "javascript"},
		{"src/legacy.cjs", "javascript"},
		{"src/api.ts", "typescript"},
		{"src/App.tsx", "typescript"},
		{"cmd/server/main.go", "go"},
		{"README.md", ""},
		{"Dockerfile", ""},
		{"config.yaml", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, LanguageForFile(tt.path), "path %q", tt.path)
	}
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("python"))
	assert.True(t, Supported("Go"))
	assert.True(t, Supported("JavaScript"))
	assert.True(t, Supported("typescript"))
	assert.False(t, Supported("java"))
	assert.False(t, Supported("rust"))
	assert.False(t, Supported(""))
}

func TestExtractUnsupportedLanguage(t *testing.T) {
	_, err := Extract(context.Background(), "rust", "lib.rs", []byte("fn main() {}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported language")
}

func TestExtractEmptyContent(t *testing.T) {
	ff, err := Extract(context.Background(), "python", "empty.py", nil)
	require.NoError(t, err)
	assert.Equal(t, "empty.py", ff.FilePath)
	assert.Equal(t, "python", ff.Language)
	assert.Empty(t, ff.Facts)
}

func TestExtractNormalizesLanguageCase(t *testing.T) {
	ff, err := Extract(context.Background(), "Python", "a.py", []byte("import os\n"))
	require.NoError(t, err)
	assert.Equal(t, "python", ff.Language)
	require.Len(t, ff.Facts, 1)
	assert.Equal(t, facts.FactImport, ff.Facts[0].FactType)
	assert.Equal(t, "os", ff.Facts[0].Name)
	assert.Equal(t, "a.py", ff.Facts[0].FilePath)
}

func TestServiceExtractRepository(t *testing.T) {
	svc := NewService(WithLogger(testLogger()))
	repo := &facts.ParsedRepository{
		RepoFullName: "acme/checkout",
		Files: []facts.ParsedFile{
			{FilePath: "app/main.py", Language: "python", Content: "import os\n"},
			{FilePath: "assets/logo.png", Language: "", Content: ""},
			{FilePath: "app/empty.py", Language: "python", Content: ""},
			{FilePath: "native/lib.rs", Language: "rust", Content: "fn main() {}"},
		},
	}

	out, err := svc.ExtractRepository(context.Background(), repo)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "app/main.py", out[0].FilePath)
	assert.Equal(t, "python", out[0].Language)
	require.Len(t, out[0].Facts, 1)
	assert.Equal(t, facts.FactImport, out[0].Facts[0].FactType)
}

func TestServiceExtractRepositoryNil(t *testing.T) {
	svc := NewService(WithLogger(testLogger()))

	out, err := svc.ExtractRepository(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = svc.ExtractRepository(context.Background(), &facts.ParsedRepository{})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestServiceFileCap(t *testing.T) {
	svc := NewService(WithLogger(testLogger()), WithMaxFiles(1))
	repo := &facts.ParsedRepository{
		RepoFullName: "acme/checkout",
		Files: []facts.ParsedFile{
			{FilePath: "a.py", Language: "python", Content: "import os\n"},
			{FilePath: "b.py", Language: "python", Content: "import sys\n"},
		},
	}

	out, err := svc.ExtractRepository(context.Background(), repo)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "a.py", out[0].FilePath)
}

func TestServiceUsesParserProvidedFacts(t *testing.T) {
	precomputed := []facts.CodeFact{
		{FactType: facts.FactFunction, FilePath: "svc/main.java", Name: "handle", LineStart: 10, LineEnd: 30},
	}
	svc := NewService(WithLogger(testLogger()))
	repo := &facts.ParsedRepository{
		RepoFullName: "acme/legacy",
		Files: []facts.ParsedFile{
			// Language has no grammar here, but the parser already did the work.
			{FilePath: "svc/main.java", Language: "Java", Facts: precomputed},
		},
	}

	out, err := svc.ExtractRepository(context.Background(), repo)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "java", out[0].Language)
	assert.Equal(t, precomputed, out[0].Facts)
}

func TestServiceContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewService(WithLogger(testLogger()))
	repo := &facts.ParsedRepository{
		Files: []facts.ParsedFile{
			{FilePath: "a.py", Language: "python", Content: "import os\n"},
		},
	}

	_, err := svc.ExtractRepository(ctx, repo)
	assert.ErrorIs(t, err, context.Canceled)
}
