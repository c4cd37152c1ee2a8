package jobs

import (
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drisya/internal/storage"
)

func TestArchiveName(t *testing.T) {
	assert.Equal(t, "enhanced_ring.png", ArchiveName("uploads/1712345678_ring.png"))
	assert.Equal(t, "enhanced_ring.png", ArchiveName(`C:\uploads\ring.png`))
	assert.Equal(t, "enhanced_image.png", ArchiveName(""))
}

func TestArchiveZipsProcessedImages(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	refA, err := store.Write(t.Context(), "enhanced/a.png", []byte("AAA"))
	require.NoError(t, err)

	images := []Image{
		{ID: "1", OriginalURL: "uploads/1_ring.png", ProcessedURL: refA},
		{ID: "2", OriginalURL: "uploads/2_chain.png"},
		{ID: "3", OriginalURL: "uploads/3_gone.png", ProcessedURL: "enhanced/missing.png"},
	}
	ref, rep, err := Archive(t.Context(), store, "job-1", images, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "archives/bulk-job-job-1.zip", ref)
	assert.Equal(t, 1, rep.Written)
	assert.Equal(t, []string{"enhanced_gone.png"}, rep.Skipped)

	rc, err := store.Open(t.Context(), ref)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "enhanced_ring.png", zr.File[0].Name)
}
