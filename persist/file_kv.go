package persist

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// FileKV stores one file per key under a base directory. Suitable for
// single-node deployments; disk-full errors classify as capacity failures.
type FileKV struct {
	baseDir string
}

// NewFileKV creates the base directory if needed.
func NewFileKV(baseDir string) (*FileKV, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create persist directory: %w", err)
	}
	return &FileKV{baseDir: baseDir}, nil
}

// path hex-encodes the key so arbitrary key strings map to safe file names.
func (f *FileKV) path(key string) string {
	return filepath.Join(f.baseDir, hex.EncodeToString([]byte(key))+".json")
}

// Get returns the stored value or ErrNotFound.
func (f *FileKV) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Set writes the value atomically via a temp file and rename.
func (f *FileKV) Set(_ context.Context, key string, value []byte) error {
	target := f.path(key)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, value, 0644); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, target)
}

// Delete removes the key's file. Missing files are not an error.
func (f *FileKV) Delete(_ context.Context, key string) error {
	err := os.Remove(f.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
