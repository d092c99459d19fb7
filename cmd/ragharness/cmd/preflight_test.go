package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-access-policies/policy-crew/internal/preflight"
)

func TestPreflightCmd_OfflineConfigIsReady(t *testing.T) {
	// Given: an offline project
	fix := writeHarnessFixture(t)

	// When: running preflight
	output, err := runCommand(t, "preflight", "--config", fix.configPath, "--no-color")

	// Then: no required check fails and the summary is rendered
	require.NoError(t, err)
	assert.Contains(t, output, "Preflight Checks")
	assert.Contains(t, output, "Summary:")
	assert.Contains(t, output, "static", "Policy line should name the offline backend")

	// And: preflight.json captures the checks
	data, err := os.ReadFile(filepath.Join(fix.resultsDir, preflight.PreflightFileName))
	require.NoError(t, err)
	var report preflight.Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.False(t, report.RequiredFailed())
	assert.NotEmpty(t, report.Checks)
}

func TestPreflightCmd_ConfigFailureStillWritesReport(t *testing.T) {
	// Given: a working directory with no config file anywhere
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer func() { _ = os.Chdir(oldWd) }()

	// When: running preflight
	output, err := runCommand(t, "preflight", "--no-color")

	// Then: the command fails but renders and persists the config check
	require.Error(t, err)
	assert.Contains(t, output, "config")

	data, readErr := os.ReadFile(filepath.Join(tmpDir, ".ragharness", "results", preflight.PreflightFileName))
	require.NoError(t, readErr)
	var report preflight.Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.True(t, report.RequiredFailed())
	assert.Equal(t, preflight.SummaryFailed, report.Summary)
}
