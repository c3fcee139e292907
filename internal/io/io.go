package io

import (
	"fmt"
	"io"
	"os"
)

// LimitRead reads all of r, failing if it holds more than limit bytes.
func LimitRead(r io.Reader, limit int64) ([]byte, error) {
	// Read one byte past the limit so that content of exactly limit bytes is
	// distinguishable from content that was truncated.
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read from reader: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("content exceeds limit of %d bytes", limit)
	}
	return data, nil
}

// LimitReadFile reads the named file, failing if it is larger than limit
// bytes.
func LimitReadFile(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := LimitRead(f, limit)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	return data, nil
}
