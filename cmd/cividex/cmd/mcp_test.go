package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMCPCmd_AddedToRoot(t *testing.T) {
	cmd := NewRootCmd()

	mcpCmd, _, err := cmd.Find([]string{"mcp"})
	require.NoError(t, err)
	assert.Equal(t, "mcp", mcpCmd.Use)
}

func TestMCPCmd_ShowsHelp(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"mcp", "--help"})

	err := cmd.Execute()

	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "stdio")
	assert.Contains(t, output, "search_records")
}

func TestMCPCmd_RequiresIndex(t *testing.T) {
	// Given: a directory with no index
	tmpDir := t.TempDir()
	chdir(t, tmpDir)

	// When: running mcp
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"mcp"})

	err := cmd.Execute()

	// Then: it fails before touching stdio
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no index found")
}

func TestMCPCmd_RejectsPositionalArgs(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetArgs([]string{"mcp", "extra"})

	err := cmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "extra")
}

func TestMCPCmd_NoStdoutContamination(t *testing.T) {
	// Stdout carries JSON-RPC exclusively in stdio mode. Status output
	// or log lines on stdout would corrupt the protocol stream.

	// Given: an indexed corpus
	tmpDir := t.TempDir()
	indexTestCorpus(t, tmpDir)
	chdir(t, tmpDir)

	// When: running mcp under a canceled context so the stdio server
	// exits instead of blocking on stdin
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"mcp"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = cmd.ExecuteContext(ctx)

	// Then: no status messages or log lines reached the command output
	output := buf.String()
	assert.NotContains(t, output, "🔍", "Should not write status emojis to stdout")
	assert.NotContains(t, output, "Ingesting", "Should not write progress to stdout")
	assert.NotContains(t, output, "INFO", "Should not write INFO logs to stdout")
	assert.NotContains(t, output, "DEBUG", "Should not write DEBUG logs to stdout")
}
