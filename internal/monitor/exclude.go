package monitor

import (
	"path/filepath"
	"regexp"

	ignore "github.com/sabhiram/go-gitignore"
)

// conflictSiblingPattern matches conflict sibling filenames produced by
// the transfer package, which must never be re-synced as ordinary local
// changes (spec.md §4.6, §4.8 grammar).
var conflictSiblingPattern = regexp.MustCompile(`\.conflict\.[^.]+\.\d+(\.[^.]+)?$`)

// ExcludeFilter evaluates a sync-folder's exclude patterns (gitignore
// subset, spec.md §6) against candidate paths.
type ExcludeFilter struct {
	matcher *ignore.GitIgnore
}

// NewExcludeFilter compiles patterns into a filter. A nil matcher (no
// patterns) excludes nothing but conflict siblings.
func NewExcludeFilter(patterns []string) *ExcludeFilter {
	if len(patterns) == 0 {
		return &ExcludeFilter{}
	}

	return &ExcludeFilter{matcher: ignore.CompileIgnoreLines(patterns...)}
}

// Excluded reports whether path (relative to the sync root, forward
// slashes) should be skipped.
func (f *ExcludeFilter) Excluded(relPath string, isDir bool) bool {
	if conflictSiblingPattern.MatchString(filepath.Base(relPath)) {
		return true
	}

	if f.matcher == nil {
		return false
	}

	matchPath := filepath.ToSlash(relPath)
	if isDir {
		matchPath += "/"
	}

	return f.matcher.MatchesPath(matchPath)
}
