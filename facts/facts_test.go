package facts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildIndexBackfillsFilePath(t *testing.T) {
	files := []FileFacts{
		{
			FilePath: "app/main.py",
			Language: "python",
			Facts: []CodeFact{
				{FactType: FactFunction, Name: "main", LineStart: 1, LineEnd: 10},
				{FactType: FactLoggingCall, Name: "logger.info", LineStart: 3},
			},
		},
		{
			FilePath: "app/util.py",
			Language: "python",
			Facts: []CodeFact{
				{FactType: FactFunction, Name: "helper", LineStart: 1, LineEnd: 4},
			},
		},
	}

	idx := BuildIndex(files)

	require.Len(t, idx.All, 3)
	for _, f := range idx.All {
		assert.NotEmpty(t, f.FilePath)
	}
	assert.Len(t, idx.ByFile["app/main.py"], 2)
	assert.Len(t, idx.ByType[FactFunction], 2)
	assert.Equal(t, 2, idx.FileCount())
}

func TestEndOrStart(t *testing.T) {
	withEnd := CodeFact{LineStart: 5, LineEnd: 12}
	withoutEnd := CodeFact{LineStart: 5}

	assert.Equal(t, 12, withEnd.EndOrStart())
	assert.Equal(t, 5, withoutEnd.EndOrStart())
}

func TestMetaNilMap(t *testing.T) {
	f := CodeFact{FactType: FactHTTPHandler, Name: "get_users"}

	assert.Equal(t, "", f.Meta("kind"))
}

func TestParsedRepositoryFile(t *testing.T) {
	repo := ParsedRepository{
		Files: []ParsedFile{
			{FilePath: "a.py", Language: "python"},
			{FilePath: "b.py", Language: "python"},
		},
	}

	got := repo.File("b.py")
	require.NotNil(t, got)
	assert.Equal(t, "b.py", got.FilePath)

	assert.Nil(t, repo.File("missing.py"))
}
