// Package loader discovers and loads source files for extraction.
//
// A loader resolves a file, directory, or glob to a list of qualifying
// files, reads their content, and splits anything over the chunk threshold
// into boundary-respecting pieces. Per-file failures are skipped and
// logged; only a missing root or an empty glob fails the whole scan.
package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/snippetd/internal/chunker"
	"github.com/fyrsmithlabs/snippetd/internal/ignore"
)

// Sentinel errors for whole-scan failures.
var (
	// ErrPathNotFound is returned when the root path does not exist.
	ErrPathNotFound = errors.New("path not found")

	// ErrNoMatches is returned when a glob pattern matches nothing.
	ErrNoMatches = errors.New("no files match pattern")
)

// Default size limits: a ~500 KB per-file inclusion ceiling and a 1.8 MB
// chunk threshold for files that passed inclusion.
const (
	DefaultMaxFileSize = 500 * 1024
	DefaultChunkSize   = 1_800_000
	textProbeSize      = 1024
)

// defaultPatterns are the file patterns included when none are configured.
var defaultPatterns = []string{
	"*.py", "*.pyi", "*.js", "*.jsx", "*.ts", "*.tsx", "*.mjs", "*.cjs",
	"*.java", "*.kt", "*.go", "*.rs", "*.c", "*.cc", "*.cpp", "*.h",
	"*.hpp", "*.cs", "*.swift", "*.scala", "*.php", "*.rb", "*.pl", "*.sh",
	"*.json", "*.yaml", "*.yml", "*.toml", "Dockerfile", "Dockerfile.*", "*.md",
}

// defaultSkipDirs are directories that are never scanned. They typically
// contain generated code, dependencies, or version control data.
var defaultSkipDirs = map[string]bool{
	".git":          true,
	".svn":          true,
	".hg":           true,
	"node_modules":  true,
	"vendor":        true,
	".venv":         true,
	"venv":          true,
	"__pycache__":   true,
	".idea":         true,
	".vscode":       true,
	".cache":        true,
	"dist":          true,
	"build":         true,
	"target":        true,
	"coverage":      true,
	".pytest_cache": true,
	".mypy_cache":   true,
}

// testNameFragments mark test and generated-bundle files excluded unless
// IncludeTests is set.
var testNameFragments = []string{
	"test_", "_test.", ".test.", ".spec.", "_spec.",
	".min.", "-min.", ".bundle.", ".chunk.",
}

// FileUnit is one loaded, possibly-chunked piece of source content ready
// for extraction. Chunks of an oversized file share a RelativePath.
type FileUnit struct {
	AbsolutePath string
	RelativePath string
	Content      string
	Size         int
	Extension    string
}

// Options configures file discovery and loading.
type Options struct {
	// Patterns are glob-style include patterns. A pattern containing a
	// path separator is matched against the root-relative path, otherwise
	// against the bare filename. Empty uses defaultPatterns.
	Patterns []string `koanf:"patterns"`

	// ExcludePatterns are glob-style exclude patterns, applied before the
	// include patterns. Gitignore-style files at a directory root
	// (.gitignore, .snippetdignore) contribute additional excludes.
	ExcludePatterns []string `koanf:"exclude_patterns"`

	// MaxFileSize is the per-file inclusion ceiling in bytes.
	// 0 uses DefaultMaxFileSize; negative disables the ceiling.
	MaxFileSize int64 `koanf:"max_file_size"`

	// ChunkSize is the threshold above which loaded content is split.
	// 0 uses DefaultChunkSize. Never applied below MaxFileSize.
	ChunkSize int `koanf:"chunk_size"`

	// IncludeTests disables the test-file name exclusions.
	IncludeTests bool `koanf:"include_tests"`
}

func (o *Options) applyDefaults() {
	if len(o.Patterns) == 0 {
		o.Patterns = defaultPatterns
	}
	if o.MaxFileSize == 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.ChunkSize == 0 {
		o.ChunkSize = DefaultChunkSize
		// The chunk threshold stays above the inclusion ceiling so that
		// chunking only ever applies to files that passed inclusion.
		if o.MaxFileSize > int64(o.ChunkSize) {
			o.ChunkSize = int(o.MaxFileSize)
		}
	}
}

// Loader discovers and loads qualifying files under a root.
type Loader struct {
	opts Options
	log  *zap.Logger
}

// New creates a loader. A nil logger is replaced with a no-op logger.
func New(opts Options, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	opts.applyDefaults()
	return &Loader{opts: opts, log: log}
}

// Load resolves root (file, directory, or glob) and returns loaded units
// with paths relative to the resolved base directory.
func (l *Loader) Load(root string) ([]FileUnit, error) {
	paths, base, err := l.discover(root)
	if err != nil {
		return nil, err
	}

	units := make([]FileUnit, 0, len(paths))
	for _, p := range paths {
		unit, ok := l.loadOne(p, base)
		if !ok {
			continue
		}
		if unit.Size > l.opts.ChunkSize {
			l.log.Info("chunking oversized file",
				zap.String("path", unit.RelativePath),
				zap.Int("size", unit.Size),
				zap.Int("chunk_size", l.opts.ChunkSize))
			for _, piece := range chunker.Split(unit.Content, l.opts.ChunkSize) {
				units = append(units, FileUnit{
					AbsolutePath: unit.AbsolutePath,
					RelativePath: unit.RelativePath,
					Content:      piece,
					Size:         len(piece),
					Extension:    unit.Extension,
				})
			}
			continue
		}
		units = append(units, unit)
	}

	return units, nil
}

// discover returns the absolute candidate files and the base directory
// relative paths are computed against.
func (l *Loader) discover(root string) ([]string, string, error) {
	if hasGlobMagic(root) {
		matches, err := filepath.Glob(root)
		if err != nil {
			return nil, "", fmt.Errorf("invalid pattern %q: %w", root, err)
		}
		if len(matches) == 0 {
			return nil, "", fmt.Errorf("%w: %s", ErrNoMatches, root)
		}

		base := globBaseDir(root)
		var files []string
		for _, m := range matches {
			if abs, err := filepath.Abs(m); err == nil {
				m = abs
			}
			info, err := os.Stat(m)
			if err != nil {
				l.log.Warn("skipping unreadable match", zap.String("path", m), zap.Error(err))
				continue
			}
			if info.IsDir() {
				sub, err := l.walk(m)
				if err != nil {
					return nil, "", err
				}
				files = append(files, sub...)
			} else if l.qualifies(m, relPath(base, m), info.Size(), l.opts.ExcludePatterns) {
				files = append(files, m)
			}
		}
		if len(files) == 0 {
			return nil, "", fmt.Errorf("%w: %s", ErrNoMatches, root)
		}
		return files, base, nil
	}

	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("%w: %s", ErrPathNotFound, root)
		}
		return nil, "", fmt.Errorf("stat %s: %w", root, err)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, "", fmt.Errorf("resolving %s: %w", root, err)
	}

	if !info.IsDir() {
		base := filepath.Dir(abs)
		if !l.qualifies(abs, relPath(base, abs), info.Size(), l.opts.ExcludePatterns) {
			return nil, base, nil
		}
		return []string{abs}, base, nil
	}

	files, err := l.walk(abs)
	if err != nil {
		return nil, "", err
	}
	return files, abs, nil
}

// scanExcludes combines configured exclude patterns with the ones parsed
// from ignore files at dir. Unreadable ignore files only log a warning.
func (l *Loader) scanExcludes(dir string) []string {
	excludes := append([]string(nil), l.opts.ExcludePatterns...)
	parsed, err := ignore.NewParser(nil).ParseRoot(dir)
	if err != nil {
		l.log.Warn("skipping unreadable ignore file", zap.String("dir", dir), zap.Error(err))
		return excludes
	}
	return append(excludes, parsed...)
}

// walk collects qualifying files under dir, skipping excluded directories
// and files it cannot stat.
func (l *Loader) walk(dir string) ([]string, error) {
	excludes := l.scanExcludes(dir)
	var files []string
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			l.log.Warn("skipping unreadable entry", zap.String("path", p), zap.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p != dir && defaultSkipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			l.log.Warn("skipping unstatable file", zap.String("path", p), zap.Error(err))
			return nil
		}
		if l.qualifies(p, relPath(dir, p), info.Size(), excludes) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	return files, nil
}

// qualifies applies the exclude patterns, include patterns, size ceiling,
// and test-name exclusions. Inclusion filtering happens before loading.
func (l *Loader) qualifies(abs, rel string, size int64, excludes []string) bool {
	if excluded(rel, excludes) {
		return false
	}
	if !l.matchesPatterns(rel) {
		return false
	}
	if l.opts.MaxFileSize > 0 && size > l.opts.MaxFileSize {
		return false
	}
	if !l.opts.IncludeTests {
		lower := strings.ToLower(filepath.Base(abs))
		for _, frag := range testNameFragments {
			if strings.Contains(lower, frag) {
				return false
			}
		}
	}
	return true
}

// excluded matches rel against exclude patterns: bare filename, full
// relative path, and "dir/**" directory prefixes.
func excluded(rel string, excludes []string) bool {
	rel = filepath.ToSlash(rel)
	name := rel
	if i := strings.LastIndexByte(rel, '/'); i >= 0 {
		name = rel[i+1:]
	}
	for _, pattern := range excludes {
		pattern = filepath.ToSlash(pattern)
		if ok, err := filepath.Match(pattern, name); err == nil && ok {
			return true
		}
		if ok, err := filepath.Match(pattern, rel); err == nil && ok {
			return true
		}
		if strings.Contains(pattern, "**") {
			prefix := strings.TrimSuffix(pattern, "/**")
			if rel == prefix || strings.HasPrefix(rel, prefix+"/") {
				return true
			}
		}
	}
	return false
}

// matchesPatterns matches rel against the configured patterns: patterns
// with a separator match the full relative path, others the filename.
func (l *Loader) matchesPatterns(rel string) bool {
	rel = filepath.ToSlash(rel)
	name := rel
	if i := strings.LastIndexByte(rel, '/'); i >= 0 {
		name = rel[i+1:]
	}
	for _, pattern := range l.opts.Patterns {
		pattern = strings.TrimPrefix(filepath.ToSlash(pattern), "/")
		candidate := name
		if strings.ContainsRune(pattern, '/') {
			candidate = rel
		}
		if ok, err := filepath.Match(pattern, candidate); err == nil && ok {
			return true
		}
	}
	return false
}

// loadOne reads a file and builds its unit. Unreadable or non-UTF-8 files
// are skipped with a warning.
func (l *Loader) loadOne(abs, base string) (FileUnit, bool) {
	content, err := os.ReadFile(abs)
	if err != nil {
		l.log.Warn("failed to load file", zap.String("path", abs), zap.Error(err))
		return FileUnit{}, false
	}
	if !utf8.Valid(content) || looksBinary(content) {
		l.log.Debug("skipping binary file", zap.String("path", abs))
		return FileUnit{}, false
	}
	return FileUnit{
		AbsolutePath: abs,
		RelativePath: relPath(base, abs),
		Content:      string(content),
		Size:         len(content),
		Extension:    filepath.Ext(abs),
	}, true
}

// looksBinary probes the first kilobyte for NUL bytes.
func looksBinary(content []byte) bool {
	probe := content
	if len(probe) > textProbeSize {
		probe = probe[:textProbeSize]
	}
	for _, b := range probe {
		if b == 0 {
			return true
		}
	}
	return false
}

func relPath(base, target string) string {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return filepath.Base(target)
	}
	return filepath.ToSlash(rel)
}

func hasGlobMagic(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

// globBaseDir returns the leading non-glob portion of a pattern.
func globBaseDir(pattern string) string {
	parts := strings.Split(filepath.ToSlash(pattern), "/")
	var base []string
	for _, part := range parts {
		if hasGlobMagic(part) {
			break
		}
		base = append(base, part)
	}
	if len(base) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return "."
		}
		return cwd
	}
	dir := filepath.Join(base...)
	if strings.HasPrefix(pattern, "/") {
		dir = string(filepath.Separator) + dir
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	return abs
}
