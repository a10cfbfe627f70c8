package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestExampleConfigLoads(t *testing.T) {
	require.NoError(t, verify(exampleConfig))
}

func TestRunWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.example.yaml")
	require.NoError(t, run(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	if diff := cmp.Diff(exampleConfig, string(raw)); diff != "" {
		t.Errorf("written config mismatch (-want +got):\n%s", diff)
	}
}

func TestRunOverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.example.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o600))

	require.NoError(t, run(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	if diff := cmp.Diff(exampleConfig, string(raw)); diff != "" {
		t.Errorf("written config mismatch (-want +got):\n%s", diff)
	}
}
