// Package testutils provides test helpers shared across packages.
package testutils

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var update = flag.Bool("update", false, "update golden files")

// GoldenPath returns the path of the golden file for the current test.
func GoldenPath(t *testing.T) string {
	t.Helper()

	return filepath.Join("testdata", "golden", filepath.FromSlash(t.Name()))
}

// LoadWithUpdateFromGoldenYAML loads the golden file as YAML into the type of got.
// When called with -update, the golden file is first rewritten from got.
func LoadWithUpdateFromGoldenYAML[E any](t *testing.T, got E) E {
	t.Helper()

	goldenPath := GoldenPath(t)
	if *update {
		data, err := yaml.Marshal(got)
		require.NoError(t, err, "Cannot marshal given data to YAML")
		require.NoError(t, os.MkdirAll(filepath.Dir(goldenPath), 0750), "Cannot create golden directory")
		require.NoError(t, os.WriteFile(goldenPath, data, 0600), "Cannot write golden file")
	}

	data, err := os.ReadFile(goldenPath)
	require.NoError(t, err, "Cannot read golden file %s", goldenPath)

	var want E
	require.NoError(t, yaml.Unmarshal(data, &want), "Cannot unmarshal golden file %s", goldenPath)
	return want
}
