package util

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"hash"
	"io"
)

// A HashWriter wraps an io.Writer and computes the MD5 and SHA256 hashes
// and the total number of bytes written. It is used by the deposit upload
// path to verify declared checksums and lengths against what was actually
// received.
type HashWriter struct {
	io.Writer // our io.MultiWriter
	md5       hash.Hash
	sha256    hash.Hash
	size      int64
}

// NewHashWriter returns a HashWriter wrapping w.
func NewHashWriter(w io.Writer) *HashWriter {
	hw := &HashWriter{
		md5:    md5.New(),
		sha256: sha256.New(),
	}
	hw.Writer = io.MultiWriter(w, hw.md5, hw.sha256, (*countWriter)(&hw.size))
	return hw
}

// NewMD5Writer returns a HashWriter wrapping w and only computing an MD5 hash.
func NewMD5Writer(w io.Writer) *HashWriter {
	hw := &HashWriter{
		md5: md5.New(),
	}
	hw.Writer = io.MultiWriter(w, hw.md5, (*countWriter)(&hw.size))
	return hw
}

// Size returns the number of bytes written so far.
func (hw *HashWriter) Size() int64 {
	return hw.size
}

// CheckMD5 returns the MD5 hash for this writer, and compares it for equality
// with the goal hash passed in. An empty goal is treated as matching.
func (hw *HashWriter) CheckMD5(goal []byte) ([]byte, bool) {
	var computed []byte
	if hw.md5 != nil {
		computed = hw.md5.Sum(nil)
	}
	ok := len(goal) == 0 || bytes.Equal(goal, computed)
	return computed, ok
}

// CheckSHA256 returns the SHA256 hash for this writer, and compares it for
// equality with the goal hash passed in. An empty goal is treated as matching.
func (hw *HashWriter) CheckSHA256(goal []byte) ([]byte, bool) {
	var computed []byte
	if hw.sha256 != nil {
		computed = hw.sha256.Sum(nil)
	}
	ok := len(goal) == 0 || bytes.Equal(goal, computed)
	return computed, ok
}

type countWriter int64

func (c *countWriter) Write(p []byte) (int, error) {
	*c += countWriter(len(p))
	return len(p), nil
}
