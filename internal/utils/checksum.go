package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// FileChecksum returns the lowercase hex SHA-256 of the file contents.
// Graph and position files are identified by this checksum in the store.
func FileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Checksum returns the lowercase hex SHA-256 of raw bytes.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// TreeChecksum returns the lowercase hex SHA-256 over a file, or over every
// regular file under a directory in sorted relative-path order, each path
// mixed into the digest ahead of its contents. Code states are identified by
// this checksum of their implementation source.
func TreeChecksum(root string) (string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return FileChecksum(root)
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, path := range paths {
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return "", relErr
		}
		h.Write([]byte(filepath.ToSlash(rel)))
		h.Write([]byte{0})
		f, openErr := os.Open(path)
		if openErr != nil {
			return "", openErr
		}
		if _, copyErr := io.Copy(h, f); copyErr != nil {
			f.Close()
			return "", copyErr
		}
		f.Close()
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
