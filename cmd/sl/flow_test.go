package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadStagesAcceptsYAMLAndJSON(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "stages.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
- id: draft
  name: Draft
  expectedDurationDays: 3
- key: review
  name: Review
  order: 5
  skipped: true
`), 0o644))
	stages, err := readStages(yamlPath)
	require.NoError(t, err)
	require.Len(t, stages, 2)
	require.Equal(t, "draft", stages[0].ID)
	require.Equal(t, 3, stages[0].ExpectedDurationDays)
	require.Equal(t, "review", stages[1].Key)
	require.NotNil(t, stages[1].Order)
	require.Equal(t, 5, *stages[1].Order)
	require.True(t, stages[1].Skipped)

	jsonPath := filepath.Join(dir, "stages.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`[{"name":"Only","supportsRevision":true}]`), 0o644))
	stages, err = readStages(jsonPath)
	require.NoError(t, err)
	require.Len(t, stages, 1)
	require.True(t, stages[0].SupportsRevision)
}

func TestReadStagesRequiresNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stages.yml")
	require.NoError(t, os.WriteFile(path, []byte("- id: nameless\n"), 0o644))
	_, err := readStages(path)
	require.ErrorContains(t, err, "name is required")
}
