// Package zip streams files into a deflate-compressed zip archive.
package zip

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Entry is one file to archive. Open is called lazily, once, while the
// archive is being written.
type Entry struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// Report summarizes an archive run.
type Report struct {
	Written int
	// Skipped lists entries whose Open failed; the archive is still valid.
	Skipped []string
}

// Write streams entries into a zip archive on w. Duplicate names get a
// numeric suffix. Open failures skip the entry; copy failures abort.
func Write(w io.Writer, entries []Entry) (Report, error) {
	var rep Report
	zw := zip.NewWriter(w)
	names := map[string]int{}

	for _, e := range entries {
		rc, err := e.Open()
		if err != nil {
			rep.Skipped = append(rep.Skipped, e.Name)
			continue
		}
		fw, err := zw.Create(uniqueName(names, e.Name))
		if err != nil {
			_ = rc.Close()
			return rep, fmt.Errorf("zip: create %s: %w", e.Name, err)
		}
		_, err = io.Copy(fw, rc)
		_ = rc.Close()
		if err != nil {
			return rep, fmt.Errorf("zip: write %s: %w", e.Name, err)
		}
		rep.Written++
	}
	if err := zw.Close(); err != nil {
		return rep, fmt.Errorf("zip: finalize: %w", err)
	}
	return rep, nil
}

func uniqueName(seen map[string]int, name string) string {
	name = strings.TrimLeft(path.Clean("/"+strings.ReplaceAll(name, "\\", "/")), "/")
	if name == "" {
		name = "file"
	}
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), n+1, ext)
}
