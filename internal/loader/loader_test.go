package loader_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/snippetd/internal/loader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func relPaths(units []loader.FileUnit) []string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = u.RelativePath
	}
	return out
}

func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", "package main\n")
	writeFile(t, dir, "lib/util.py", "x = 1\n")
	writeFile(t, dir, "README.md", "# readme\n")
	writeFile(t, dir, "image.png", "not matched\n")

	l := loader.New(loader.Options{}, nil)
	units, err := l.Load(dir)
	require.NoError(t, err)

	got := relPaths(units)
	assert.ElementsMatch(t, []string{"main.go", "lib/util.py", "README.md"}, got)
	for _, u := range units {
		assert.NotEmpty(t, u.Content)
		assert.Equal(t, len(u.Content), u.Size)
	}
}

func TestLoad_SingleFile(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "only.go", "package only\n")

	l := loader.New(loader.Options{}, nil)
	units, err := l.Load(p)
	require.NoError(t, err)

	require.Len(t, units, 1)
	assert.Equal(t, "only.go", units[0].RelativePath)
	assert.Equal(t, ".go", units[0].Extension)
}

func TestLoad_PathNotFound(t *testing.T) {
	l := loader.New(loader.Options{}, nil)
	_, err := l.Load(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, loader.ErrPathNotFound)
}

func TestLoad_GlobNoMatches(t *testing.T) {
	dir := t.TempDir()
	l := loader.New(loader.Options{}, nil)
	_, err := l.Load(filepath.Join(dir, "*.zig"))
	assert.ErrorIs(t, err, loader.ErrNoMatches)
}

func TestLoad_Glob(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a\n")
	writeFile(t, dir, "b.go", "package b\n")
	writeFile(t, dir, "c.py", "pass\n")

	l := loader.New(loader.Options{}, nil)
	units, err := l.Load(filepath.Join(dir, "*.go"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.go", "b.go"}, relPaths(units))
}

func TestLoad_ExcludesTestsAndSkipDirs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "svc.go", "package svc\n")
	writeFile(t, dir, "svc_test.go", "package svc\n")
	writeFile(t, dir, "app.spec.ts", "it()\n")
	writeFile(t, dir, "node_modules/dep/index.js", "x\n")
	writeFile(t, dir, ".git/config.json", "{}\n")

	l := loader.New(loader.Options{}, nil)
	units, err := l.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"svc.go"}, relPaths(units))
}

func TestLoad_IncludeTests(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "svc.go", "package svc\n")
	writeFile(t, dir, "svc_test.go", "package svc\n")

	l := loader.New(loader.Options{IncludeTests: true}, nil)
	units, err := l.Load(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"svc.go", "svc_test.go"}, relPaths(units))
}

func TestLoad_SizeCeiling(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "small.go", "package small\n")
	writeFile(t, dir, "big.go", strings.Repeat("// filler\n", 100))

	l := loader.New(loader.Options{MaxFileSize: 64}, nil)
	units, err := l.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"small.go"}, relPaths(units))
}

func TestLoad_PathPatternMatchesRelativePath(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src/a.go", "package a\n")
	writeFile(t, dir, "other/b.go", "package b\n")

	l := loader.New(loader.Options{Patterns: []string{"src/*.go"}}, nil)
	units, err := l.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.go"}, relPaths(units))
}

func TestLoad_ChunksOversizedFile(t *testing.T) {
	dir := t.TempDir()
	line := strings.Repeat("a", 59) + "\n"
	big := strings.Repeat(line, 50) // 3000 bytes
	writeFile(t, dir, "big.md", big)

	l := loader.New(loader.Options{
		Patterns:    []string{"*.md"},
		MaxFileSize: 4096,
		ChunkSize:   1000,
	}, nil)
	units, err := l.Load(dir)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(units), 2)
	var rebuilt strings.Builder
	for _, u := range units {
		assert.Equal(t, "big.md", u.RelativePath)
		assert.LessOrEqual(t, u.Size, 1000)
		rebuilt.WriteString(u.Content)
	}
	assert.Equal(t, big, rebuilt.String())
}

func TestLoad_SkipsBinaryFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ok.go", "package ok\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blob.go"), []byte{0x00, 0x01, 0xff, 0xfe}, 0o644))

	l := loader.New(loader.Options{}, nil)
	units, err := l.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok.go"}, relPaths(units))
}

func TestStats(t *testing.T) {
	units := []loader.FileUnit{
		{RelativePath: "a.go", Extension: ".go", Size: 100},
		{RelativePath: "b.go", Extension: ".go", Size: 300},
		{RelativePath: "c.py", Extension: ".py", Size: 200},
	}

	s := loader.Stats(units)
	assert.Equal(t, 3, s.TotalFiles)
	assert.Equal(t, 600, s.TotalSize)
	assert.Equal(t, 200, s.AverageSize)
	assert.Equal(t, "b.go", s.LargestPath)
	assert.Equal(t, map[string]int{".go": 2, ".py": 1}, s.Extensions)
}

func TestStats_Empty(t *testing.T) {
	s := loader.Stats(nil)
	assert.Zero(t, s.TotalFiles)
	assert.Empty(t, s.Extensions)
}

func TestLoad_RespectsIgnoreFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".gitignore", "generated/\n*.pb.go\n")
	writeFile(t, dir, "svc.go", "package svc\n")
	writeFile(t, dir, "api.pb.go", "package svc\n")
	writeFile(t, dir, "generated/model.go", "package generated\n")

	l := loader.New(loader.Options{}, nil)
	units, err := l.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"svc.go"}, relPaths(units))
}

func TestLoad_ExcludePatternsOption(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "keep.go", "package keep\n")
	writeFile(t, dir, "skip.go", "package skip\n")
	writeFile(t, dir, "docs/guide.md", "# guide\n")

	l := loader.New(loader.Options{
		ExcludePatterns: []string{"skip.go", "docs/**"},
	}, nil)
	units, err := l.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"keep.go"}, relPaths(units))
}
