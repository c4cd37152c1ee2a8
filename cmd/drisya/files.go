package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"drisya/internal/enhance"
)

var imageExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".webp": {},
}

// collectImages returns the absolute paths of the supported images directly
// inside dir, sorted by name.
func collectImages(dir string) ([]string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := imageExtensions[strings.ToLower(filepath.Ext(e.Name()))]; !ok {
			continue
		}
		paths = append(paths, filepath.Join(abs, e.Name()))
	}
	if len(paths) == 0 {
		return nil, errors.New("no png, jpeg or webp images found in " + dir)
	}
	sort.Strings(paths)
	return paths, nil
}

// printResult writes one human readable line per result, followed by the
// failure hints.
func printResult(w io.Writer, name string, res enhance.Result) {
	if s := res.Success; s != nil {
		fmt.Fprintf(w, "ok    %s -> %s (%s/%s, %d attempts, $%.3f)\n",
			name, s.StoredRef, s.Provider, s.Method, s.Attempts, s.CostEstimate)
		return
	}
	f := res.Failure
	if f == nil {
		fmt.Fprintf(w, "FAIL  %s: no result\n", name)
		return
	}
	fmt.Fprintf(w, "FAIL  %s: %s: %s\n", name, f.Kind, f.Message)
	for _, h := range f.Hints {
		fmt.Fprintf(w, "      - %s\n", h)
	}
}
