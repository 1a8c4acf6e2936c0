// Package ignore parses gitignore-style files into exclude patterns for
// repository scanning.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// DefaultIgnoreFiles are the ignore files read from a scan root.
var DefaultIgnoreFiles = []string{".gitignore", ".snippetdignore"}

// Parser reads gitignore-style files.
type Parser struct {
	// IgnoreFiles is the list of ignore file names to look for.
	IgnoreFiles []string
}

// NewParser creates a parser. Empty ignoreFiles uses DefaultIgnoreFiles.
func NewParser(ignoreFiles []string) *Parser {
	if len(ignoreFiles) == 0 {
		ignoreFiles = DefaultIgnoreFiles
	}
	return &Parser{IgnoreFiles: ignoreFiles}
}

// ParseRoot reads all ignore files directly under root and returns their
// combined exclude patterns, deduplicated. Missing files are skipped.
func (p *Parser) ParseRoot(root string) ([]string, error) {
	var patterns []string
	for _, name := range p.IgnoreFiles {
		filePatterns, err := p.parseFile(filepath.Join(root, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		patterns = append(patterns, filePatterns...)
	}
	return deduplicate(patterns), nil
}

func (p *Parser) parseFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var patterns []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if pattern := parseLine(scanner.Text()); pattern != "" {
			patterns = append(patterns, pattern)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return patterns, nil
}

// parseLine parses one gitignore line. Comments, blank lines, and
// negation patterns (unsupported) yield the empty string.
func parseLine(line string) string {
	line = strings.TrimRight(line, " \t")
	if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
		return ""
	}
	return toGlobPattern(line)
}

// toGlobPattern converts a gitignore pattern to a glob usable by the
// loader's exclude matcher.
func toGlobPattern(pattern string) string {
	// A leading slash anchors to the root, which is already how relative
	// matching works here.
	pattern = strings.TrimPrefix(pattern, "/")

	// Trailing slash marks a directory.
	if strings.HasSuffix(pattern, "/") {
		pattern += "**"
	}

	// A bare directory name like "node_modules" matches recursively.
	if !strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "*") && !strings.Contains(pattern, ".") {
		pattern += "/**"
	}

	return pattern
}

func deduplicate(patterns []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if !seen[p] {
			seen[p] = true
			result = append(result, p)
		}
	}
	return result
}
