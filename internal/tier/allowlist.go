package tier

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// AllowLists provides the optional per-tier allow-lists.
type AllowLists interface {
	// Load returns the allowed codes of a tier and whether a list exists.
	Load(tier string) (map[string]bool, bool, error)
}

// DirAllowLists reads <Dir>/<tier>.txt.
type DirAllowLists struct {
	Dir string
}

func (d DirAllowLists) path(tier string) string {
	return filepath.Join(d.Dir, tier+".txt")
}

func (d DirAllowLists) Load(tier string) (map[string]bool, bool, error) {
	if d.Dir == "" {
		return nil, false, nil
	}
	f, err := os.Open(d.path(tier))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer f.Close()
	set, err := ReadAllowList(f)
	if err != nil {
		return nil, false, err
	}
	return set, true, nil
}

// StaticAllowLists is an in-memory AllowLists.
type StaticAllowLists map[string][]string

func (s StaticAllowLists) Load(tier string) (map[string]bool, bool, error) {
	codes, ok := s[tier]
	if !ok {
		return nil, false, nil
	}
	set := make(map[string]bool, len(codes))
	for _, c := range codes {
		set[NormalizeCode(c)] = true
	}
	return set, true, nil
}

// NormalizeCode strips whitespace and an exchange suffix ("510300.SH" → "510300").
func NormalizeCode(code string) string {
	code = strings.TrimSpace(code)
	if head, _, ok := strings.Cut(code, "."); ok {
		return head
	}
	return code
}

// ReadAllowList parses one code per line; blank lines and lines starting with # are ignored.
func ReadAllowList(r io.Reader) (map[string]bool, error) {
	set := make(map[string]bool)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\ufeff"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		set[NormalizeCode(line)] = true
	}
	return set, sc.Err()
}

// WriteAllowList writes codes to <dir>/<tier>.txt atomically with a comment header.
func WriteAllowList(dir, tier string, codes []string, minTurnover float64, asOf time.Time) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s: average turnover >= %.0f万元 over the trailing %d sessions\n", tier, minTurnover, DefaultWindow)
	fmt.Fprintf(&b, "# generated %s, %d codes\n", asOf.Format("2006-01-02 15:04:05"), len(codes))
	for _, c := range codes {
		b.WriteString(c)
		b.WriteByte('\n')
	}
	path := DirAllowLists{Dir: dir}.path(tier)
	tmp, err := os.CreateTemp(dir, ".allow-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
