package io

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
)

// DefaultChunkSize is the read granularity of FileChecksum.
const DefaultChunkSize = 1 << 16

// FileChecksum computes the MD5 digest of the file at path, reading it in
// chunks of chunkSize bytes so that files larger than memory can be hashed.
//
// The digest is independent of chunkSize. chunkSize <= 0 falls back to
// DefaultChunkSize.
//
// # Returns
//
// - string: lower-case hex digest
//
// - error
func FileChecksum(path string, chunkSize int) (string, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	fp, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer fp.Close()

	sum := md5.New()
	if _, err := io.CopyBuffer(sum, struct{ io.Reader }{fp}, make([]byte, chunkSize)); err != nil {
		return "", err
	}

	return hex.EncodeToString(sum.Sum(nil)), nil
}
