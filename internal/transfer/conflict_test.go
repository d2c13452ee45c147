package transfer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConflictPath(t *testing.T) {
	at := time.Unix(1700000000, 0)

	cases := []struct {
		name string
		path string
		want string
	}{
		{"simple file", "notes.txt", "notes.conflict.peer1.1700000000.txt"},
		{"dotfile", ".bashrc", ".bashrc.conflict.peer1.1700000000"},
		{"multi-ext", "archive.tar.gz", "archive.tar.conflict.peer1.1700000000.gz"},
		{"nested path", "docs/notes.txt", "docs/notes.conflict.peer1.1700000000.txt"},
		{"no extension", "README", "README.conflict.peer1.1700000000"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ConflictPath(tc.path, "peer1", at)
			assert.Equal(t, tc.want, got)
		})
	}
}
