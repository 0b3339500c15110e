package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmuni/cividex/internal/ui"
)

func TestStatusCmd_NoIndex(t *testing.T) {
	// Given: a directory with no index
	tmpDir := t.TempDir()
	chdir(t, tmpDir)

	// When: running status command
	cmd := newStatusCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)

	err := cmd.Execute()

	// Then: returns error about missing index
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no index found")
}

func TestStatusCmd_WithIndex(t *testing.T) {
	// Given: an indexed corpus
	tmpDir := t.TempDir()
	indexTestCorpus(t, tmpDir)
	chdir(t, tmpDir)

	// When: running status command
	cmd := newStatusCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)

	err := cmd.Execute()

	// Then: output reports record counts and the backend
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "Records:")
	assert.Contains(t, output, "sqlite")
	assert.Contains(t, output, "ordinance")
	assert.Contains(t, output, "minutes")
}

func TestStatusCmd_JSON(t *testing.T) {
	// Given: an indexed corpus
	tmpDir := t.TempDir()
	indexTestCorpus(t, tmpDir)
	chdir(t, tmpDir)

	// When: running status command with --json
	cmd := newStatusCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--json"})

	err := cmd.Execute()

	// Then: output is valid JSON with the index details
	require.NoError(t, err)

	var info ui.StatusInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &info), "Output should be valid JSON")

	assert.Equal(t, "sqlite", info.Backend)
	assert.Equal(t, 2, info.TotalRecords)
	assert.Equal(t, 1, info.ByKind["ordinance"])
	assert.Equal(t, 1, info.ByKind["minutes"])
}

func TestCollectStatus_WithIndex(t *testing.T) {
	// Given: an indexed corpus
	tmpDir := t.TempDir()
	indexTestCorpus(t, tmpDir)
	dataDir := filepath.Join(tmpDir, ".cividex")

	// When: collecting status
	ctx := context.Background()
	info, err := collectStatus(ctx, tmpDir, dataDir)

	// Then: succeeds and contains correct data
	require.NoError(t, err)
	assert.Equal(t, tmpDir, info.CorpusRoot)
	assert.Equal(t, "sqlite", info.Backend)
	assert.Equal(t, 2, info.TotalRecords)
	assert.Equal(t, "idle", info.IngestStatus)
	assert.False(t, info.LastIngest.IsZero(), "Last ingest time should be recorded")
	assert.NotZero(t, info.StoreSize)
	assert.NotZero(t, info.TotalSize)
}

func TestStatusRenderer_Output(t *testing.T) {
	// Given: status info
	info := ui.StatusInfo{
		CorpusRoot:   "/town/records",
		Backend:      "sqlite",
		TotalRecords: 42,
		ByKind:       map[string]int{"ordinance": 12, "minutes": 30},
		LastIngest:   time.Now(),
		IndexSize:    1024 * 1024,
		StoreSize:    512 * 1024,
		TotalSize:    1536 * 1024,
		IngestStatus: "idle",
	}

	// When: rendering
	buf := &bytes.Buffer{}
	renderer := ui.NewStatusRenderer(buf, true) // noColor
	err := renderer.Render(info)

	// Then: output contains expected values
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "/town/records")
	assert.Contains(t, output, "42")
	assert.Contains(t, output, "sqlite")
	assert.Contains(t, output, "ordinance")
	assert.Contains(t, output, "idle")
}

func TestStatusRenderer_JSON(t *testing.T) {
	// Given: status info
	info := ui.StatusInfo{
		CorpusRoot:   "/town/records",
		Backend:      "bleve",
		TotalRecords: 5,
	}

	// When: rendering as JSON
	buf := &bytes.Buffer{}
	renderer := ui.NewStatusRenderer(buf, false)
	err := renderer.RenderJSON(info)

	// Then: output is valid JSON
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, `"corpus_root"`)
	assert.Contains(t, output, `"/town/records"`)
	assert.Contains(t, output, `"total_records"`)
}

func TestGetFileSize_NonExistent(t *testing.T) {
	// When: getting size of non-existent file
	size := getFileSize("/nonexistent/file.txt")

	// Then: returns 0
	assert.Equal(t, int64(0), size)
}

func TestGetFileSize_Exists(t *testing.T) {
	// Given: a file with known content
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "test.txt")
	content := []byte("hello world")
	require.NoError(t, os.WriteFile(filePath, content, 0o644))

	// When: getting file size
	size := getFileSize(filePath)

	// Then: returns correct size
	assert.Equal(t, int64(len(content)), size)
}

func TestGetDirSize(t *testing.T) {
	// Given: a directory with files
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "a.txt"), []byte("aaaa"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "b.txt"), []byte("bb"), 0o644))

	// When: getting directory size
	size := getDirSize(tmpDir)

	// Then: returns sum of file sizes
	assert.Equal(t, int64(6), size)
}

func TestGetDirSize_NonExistent(t *testing.T) {
	// When: getting size of non-existent directory
	size := getDirSize("/nonexistent/dir")

	// Then: returns 0
	assert.Equal(t, int64(0), size)
}
