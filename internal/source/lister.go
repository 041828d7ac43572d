package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/model"
)

// Lister enumerates the instrument codes available from a provider.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// FreshnessOracle returns a token that grows whenever an instrument's source
// data changes. The cache compares tokens instead of touching the filesystem.
type FreshnessOracle interface {
	Token(code string) (time.Time, error)
}

// Dir is a directory of per-instrument files named <code><ext>.
// It is a Lister and a FreshnessOracle (file modification time).
type Dir struct {
	Path string
	Ext  string // default ".csv"
}

func (d Dir) ext() string {
	if d.Ext == "" {
		return ".csv"
	}
	return d.Ext
}

// File returns the path of an instrument's file.
func (d Dir) File(code string) string {
	return filepath.Join(d.Path, code+d.ext())
}

// Read loads and cleans the instrument's bars.
func (d Dir) Read(code string) ([]model.Bar, ReadStats, error) {
	return ReadFile(d.File(code), code)
}

// List returns the sorted codes of every regular file with the provider extension.
func (d Dir) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", d.Path, err)
	}
	codes := make([]string, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.EqualFold(filepath.Ext(name), d.ext()) {
			continue
		}
		codes = append(codes, strings.TrimSuffix(name, filepath.Ext(name)))
	}
	sort.Strings(codes)
	return codes, nil
}

// Token is the modification time of the instrument's file.
func (d Dir) Token(code string) (time.Time, error) {
	fi, err := os.Stat(d.File(code))
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime().UTC(), nil
}

// StaticLister is a fixed code list.
type StaticLister []string

func (s StaticLister) List(context.Context) ([]string, error) {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out, nil
}

// StaticFreshness is a FreshnessOracle backed by a map.
type StaticFreshness map[string]time.Time

func (s StaticFreshness) Token(code string) (time.Time, error) {
	t, ok := s[code]
	if !ok {
		return time.Time{}, fmt.Errorf("no freshness token for %s", code)
	}
	return t, nil
}
