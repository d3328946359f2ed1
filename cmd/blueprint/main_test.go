package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blueprintvision/internal/detection"
	"blueprintvision/internal/isa"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	return out.String()
}

func TestTagCommand(t *testing.T) {
	out := execute(t, "tag", "TIC-205", "FV 101A")
	var tags []isa.ParsedTag
	require.NoError(t, json.Unmarshal([]byte(out), &tags))
	require.Len(t, tags, 2)
	assert.Equal(t, "Temperature Indicator Controller", tags[0].Description)
	assert.Equal(t, "A", tags[1].Suffix)
}

func TestAnalyzeCommand_Mock(t *testing.T) {
	fixture, err := filepath.Abs("../../testdata/mock_pid.json")
	require.NoError(t, err)
	t.Setenv("MOCK_MODE", "true")
	t.Setenv("MOCK_DATA_PATH", fixture)
	t.Setenv("MOCK_BLUEPRINT_TYPE", "PID")
	t.Setenv("BLUEPRINT_CACHE_SIZE", "0")

	img := filepath.Join(t.TempDir(), "diagram.png")
	require.NoError(t, os.WriteFile(img, []byte("not really a png"), 0o644))
	outFile := filepath.Join(t.TempDir(), "result.json")

	execute(t, "--mock", "analyze", img, "--out", outFile)

	b, err := os.ReadFile(outFile)
	require.NoError(t, err)
	var res detection.Result
	require.NoError(t, json.Unmarshal(b, &res))
	assert.Equal(t, "PID", res.Metadata.BlueprintType)
	assert.Equal(t, 5, res.Metadata.TotalComponents)
	assert.Equal(t, 4, res.Metadata.TotalConnections)
	assert.NotEmpty(t, res.Metadata.ControlLoops)
}
