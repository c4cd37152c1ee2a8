package jobs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"regexp"
	"strings"

	"drisya/internal/storage"
	"drisya/pkg/zip"
)

var uploadPrefix = regexp.MustCompile(`^[0-9]+_`)

// ArchiveName is the file name an enhanced image gets inside the job archive.
func ArchiveName(original string) string {
	base := path.Base(strings.ReplaceAll(original, "\\", "/"))
	if base == "." || base == "/" {
		base = "image.png"
	}
	return "enhanced_" + uploadPrefix.ReplaceAllString(base, "")
}

// ArchiveKey is the store key of a job's archive.
func ArchiveKey(jobID string) string {
	return "archives/bulk-job-" + jobID + ".zip"
}

// Archive zips every processed image of a job into store and returns the
// archive reference. Images that cannot be opened are left out.
func Archive(ctx context.Context, store storage.Store, jobID string, images []Image, tempDir string) (string, zip.Report, error) {
	var entries []zip.Entry
	for _, img := range images {
		if img.ProcessedURL == "" {
			continue
		}
		ref := img.ProcessedURL
		entries = append(entries, zip.Entry{
			Name: ArchiveName(img.OriginalURL),
			Open: func() (io.ReadCloser, error) { return store.Open(ctx, ref) },
		})
	}

	f, err := os.CreateTemp(tempDir, "drisya-archive-*.zip")
	if err != nil {
		return "", zip.Report{}, fmt.Errorf("create archive spool: %w", err)
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}()

	rep, err := zip.Write(f, entries)
	if err != nil {
		return "", rep, err
	}
	size, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return "", rep, fmt.Errorf("archive size: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", rep, fmt.Errorf("rewind archive: %w", err)
	}
	ref, err := store.Put(ctx, ArchiveKey(jobID), f, size, "application/zip")
	if err != nil {
		return "", rep, fmt.Errorf("store archive: %w", err)
	}
	return ref, rep, nil
}
