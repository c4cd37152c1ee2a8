package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drisya/internal/enhance"
	"drisya/internal/providers/image"
)

func TestCollectImages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.JPG", "a.png", "notes.txt", "c.webp"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.png"), 0o755))

	paths, err := collectImages(dir)
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, filepath.Join(dir, "a.png"), paths[0])
	assert.Equal(t, filepath.Join(dir, "b.JPG"), paths[1])
	assert.Equal(t, filepath.Join(dir, "c.webp"), paths[2])

	_, err = collectImages(t.TempDir())
	require.Error(t, err)
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	printResult(&buf, "ring.jpg", enhance.Result{Success: &enhance.Success{
		StoredRef: "enhanced/1.png", Provider: "openai", Method: enhance.MethodEdit, Attempts: 2, CostEstimate: 0.02,
	}})
	printResult(&buf, "bad.gif", enhance.Result{Failure: &enhance.Failure{
		Kind: enhance.KindInvalidRequest, Message: "read source image: no such file", Hints: []string{"Check the file path."},
	}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "ok    ring.jpg -> enhanced/1.png (openai/edit, 2 attempts, $0.020)", lines[0])
	assert.Equal(t, "FAIL  bad.gif: InvalidRequest: read source image: no such file", lines[1])
	assert.Equal(t, "      - Check the file path.", lines[2])
}

func TestRequestFlags(t *testing.T) {
	f := requestFlags{}
	require.Error(t, f.validate())

	f.template = "no-such-template"
	require.Error(t, f.validate())

	f.template = "pearl-white-texture"
	f.quality = "4k"
	f.size = "1792x1024"
	require.NoError(t, f.validate())

	req := f.request("/tmp/photos/ring.jpg")
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, "ring.jpg", req.Filename)
	assert.Equal(t, "/tmp/photos/ring.jpg", req.SourcePath)
	assert.Equal(t, image.QualityUltra, req.Options.Quality)
	assert.Equal(t, "1792x1024", req.Options.Size)
}

func TestTemplatesCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"templates", "--category", "Jewelry"})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 10)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "ivory-silk-luxury-scene")

	cmd = newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"templates", "--category", "furniture"})
	require.Error(t, cmd.Execute())
}

func TestEnhanceRequiresPromptOrTemplate(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"enhance", "ring.jpg"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--prompt or --template")
}
