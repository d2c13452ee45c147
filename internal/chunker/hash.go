package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
)

var errInvalidParams = errors.New("chunker: params must satisfy 0 < min <= avg <= max")

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashReader returns the lowercase hex SHA-256 of everything read from r.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes returns the lowercase hex SHA-256 of b.
func HashBytes(b []byte) string {
	return sha256Hex(b)
}
