// Package chunker splits large file payloads while keeping readable boundaries.
package chunker

import (
	"regexp"
	"strings"
)

// declHint matches lines that look like good places to start a new chunk:
// blank lines, comment dividers, and type/function declaration starts.
var declHint = regexp.MustCompile(`^\s*$|^\s*(#|//)\s*$|^\s*(class|interface|struct|type|impl)\b|^\s*(def|fn|func|function|async\s+def)\b|^\s*\w[\w:<>,\s*&]+\s+\w+\s*\(`)

// BoundaryScore rates how good a cut between prev and next is. Higher is
// better. The weights are heuristic; only their relative ordering matters
// (blank line < statement terminator < declaration start < fence delimiter).
func BoundaryScore(prev, next string) int {
	score := 0

	trimmedPrev := strings.TrimRight(prev, " \t\r\n")
	strippedPrev := strings.TrimSpace(prev)
	strippedNext := strings.TrimLeft(next, " \t")

	if trimmedPrev == "" {
		score += 2
	}
	if strings.HasSuffix(trimmedPrev, "}") {
		score += 3
	}
	if strings.HasSuffix(trimmedPrev, ";") {
		score += 2
	}
	if strings.HasPrefix(strippedPrev, "//") || strings.HasPrefix(strippedPrev, "#") {
		score++
	}
	if declHint.MatchString(strippedNext) {
		score += 3
	}
	if strings.HasPrefix(strippedPrev, "```") || strings.HasPrefix(strippedNext, "```") {
		score += 4
	}

	return score
}

// Split splits text into chunks no larger than max bytes, cutting at the
// best-scoring line boundary within each size budget. Concatenating the
// returned chunks reproduces the input exactly. The only cut that is not at
// a line boundary is the fallback for a single line that alone exceeds max.
func Split(text string, max int) []string {
	if len(text) <= max {
		return []string{text}
	}

	lines := splitLines(text)
	var chunks []string
	start := 0

	for start < len(lines) {
		size := 0
		bestCut := -1
		bestCutSize := -1
		bestScore := -1
		advanced := false

		for i := start; i < len(lines); i++ {
			line := lines[i]

			if len(line) > max {
				if i > start {
					chunks = append(chunks, strings.Join(lines[start:i], ""))
					start = i
					advanced = true
					break
				}
				chunks = append(chunks, sliceRaw(line, max)...)
				start = i + 1
				advanced = true
				break
			}

			size += len(line)
			next := ""
			if i+1 < len(lines) {
				next = lines[i+1]
			}

			if size <= max {
				score := BoundaryScore(line, next)
				if score > bestScore || (score == bestScore && size > bestCutSize) {
					bestScore = score
					bestCut = i + 1
					bestCutSize = size
				}
				continue
			}

			cut := i
			if bestCut > start {
				cut = bestCut
			}
			if cut == start {
				cut = start + 1
			}
			chunks = append(chunks, strings.Join(lines[start:cut], ""))
			start = cut
			advanced = true
			break
		}

		if !advanced {
			chunks = append(chunks, strings.Join(lines[start:], ""))
			break
		}
	}

	// Defensive: re-slice anything the scan left over budget.
	normalized := make([]string, 0, len(chunks))
	for _, piece := range chunks {
		if len(piece) <= max {
			normalized = append(normalized, piece)
			continue
		}
		normalized = append(normalized, sliceRaw(piece, max)...)
	}

	return normalized
}

// splitLines splits on newlines keeping the terminator attached to each line.
func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

// sliceRaw cuts s into max-sized byte slices with no boundary preference.
func sliceRaw(s string, max int) []string {
	var parts []string
	for len(s) > max {
		parts = append(parts, s[:max])
		s = s[max:]
	}
	if s != "" {
		parts = append(parts, s)
	}
	return parts
}
