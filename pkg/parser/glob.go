package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ExpandGlobs expands local log paths and glob patterns into a sorted,
// deduplicated list of regular files. Patterns that match nothing are kept
// as-is so the caller reports a file-not-found error with the original name.
func ExpandGlobs(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var result []string

	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			result = append(result, path)
		}
	}

	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
		}

		if len(matches) == 0 {
			add(pattern)
			continue
		}

		for _, match := range matches {
			// Directories matched by a wildcard hold no log lines
			if info, err := os.Stat(match); err == nil && info.IsDir() {
				continue
			}
			add(match)
		}
	}

	sort.Strings(result)

	return result, nil
}
