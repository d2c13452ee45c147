package transfer

// Mode selects whole-file or chunk-level transfer for one file (spec.md
// §4.8).
type Mode int

const (
	ModeWhole Mode = iota
	ModeChunked
)

// ModeFor returns ModeChunked when size exceeds blockThresholdBytes,
// ModeWhole otherwise.
func ModeFor(size, blockThresholdBytes int64) Mode {
	if size > blockThresholdBytes {
		return ModeChunked
	}

	return ModeWhole
}
