package loader

// Summary describes a set of loaded file units.
type Summary struct {
	TotalFiles  int
	TotalSize   int
	Extensions  map[string]int
	LargestPath string
	LargestSize int
	AverageSize int
}

// Stats summarizes loaded units. Chunks count individually, so totals
// reflect the units the orchestrator will actually process.
func Stats(units []FileUnit) Summary {
	s := Summary{Extensions: map[string]int{}}
	if len(units) == 0 {
		return s
	}

	for _, u := range units {
		s.TotalFiles++
		s.TotalSize += u.Size
		s.Extensions[u.Extension]++
		if u.Size > s.LargestSize {
			s.LargestSize = u.Size
			s.LargestPath = u.RelativePath
		}
	}
	s.AverageSize = s.TotalSize / s.TotalFiles
	return s
}
