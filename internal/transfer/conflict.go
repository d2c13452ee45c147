package transfer

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ConflictPath builds the conflict sibling filename for path, produced when
// the decision engine flags two irreconcilable edits (spec.md §4.8):
// "<stem>.conflict.<peerId>.<unix_seconds>[.<ext>]".
func ConflictPath(path, peerID string, at time.Time) string {
	dir := filepath.Dir(path)
	name := filepath.Base(path)
	stem, ext := splitStemExt(name)

	conflictName := fmt.Sprintf("%s.conflict.%s.%d%s", stem, peerID, at.Unix(), ext)
	if dir == "." {
		return conflictName
	}

	return filepath.Join(dir, conflictName)
}

// splitStemExt splits name into stem and extension, treating a leading-dot
// name with no other dots (".bashrc") as having no extension.
func splitStemExt(name string) (string, string) {
	if name != "" && name[0] == '.' && strings.Count(name, ".") == 1 {
		return name, ""
	}

	ext := filepath.Ext(name)
	stem := name[:len(name)-len(ext)]

	return stem, ext
}
