// Package output persists indicator tables, one artifact per
// (tier, family, instrument), with atomic replace semantics.
package output

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/apperr"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/model"
)

// Writer persists tables under a root directory.
type Writer interface {
	// Write persists t for a tier and returns the artifact path.
	Write(tier string, t *model.Table) (string, error)
	// Remove deletes the artifact of an instrument that left a tier.
	Remove(tier, family, code string) error
	// Path returns where the artifact of a unit lives.
	Path(tier, family, code string) string
	Extension() string
}

// NewWriter builds a Writer for "csv" or "parquet".
func NewWriter(format, root string, precision int32) (Writer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "csv":
		return &CSVWriter{Root: root, Precision: precision}, nil
	case "parquet":
		return &ParquetWriter{Root: root, Precision: precision}, nil
	default:
		return nil, fmt.Errorf("output: unsupported format %q (use csv or parquet)", format)
	}
}

func artifactPath(root, tier, family, code, ext string) string {
	return filepath.Join(root, tier, family, code+"."+ext)
}

// CSVWriter writes EncodeCSV output.
type CSVWriter struct {
	Root      string
	Precision int32
}

func (w *CSVWriter) Extension() string { return "csv" }

func (w *CSVWriter) Path(tier, family, code string) string {
	return artifactPath(w.Root, tier, family, code, w.Extension())
}

func (w *CSVWriter) Write(tier string, t *model.Table) (string, error) {
	data, err := EncodeCSV(t, w.Precision)
	if err != nil {
		return "", apperr.NewIO("encode csv", err)
	}
	path := w.Path(tier, t.Family, t.Code)
	return path, withRetry(path, func() error { return WriteFileAtomic(path, data) })
}

func (w *CSVWriter) Remove(tier, family, code string) error {
	return removeIfExists(w.Path(tier, family, code))
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it over path, so readers never see a partial file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

// withRetry runs fn, retrying once on failure. The final error is an IO error.
func withRetry(path string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	log.Printf("[output] write %s failed, retrying once: %v", path, err)
	if err = fn(); err != nil {
		return apperr.NewIO("write "+path, err)
	}
	return nil
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return apperr.NewIO("remove "+path, err)
}
