package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cargodocs/cargodocs/internal/config"
	"github.com/cargodocs/cargodocs/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()

	path := filepath.Join(dir, "cargodocs.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600), "Setup: cannot write config file")
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		content string
	}{
		"Valid config": {
			content: `{"allowList":["invoice","packing_list"],"templates":{"invoice":"/tpl/invoice.docx"}}`,
		},
		"Duplicates are dropped": {
			content: `{"allowList":["invoice","invoice","manifest"]}`,
		},
		"Reserved names are dropped": {
			content: `{"allowList":["version","metrics","process","invoice"]}`,
		},
		"Empty config": {
			content: `{}`,
		},
	}

	type loadResult struct {
		AllowList []string
		Templates map[string]string
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := writeConfig(t, t.TempDir(), tc.content)
			cm := config.New(path)
			require.NoError(t, cm.Load(), "Load should succeed")

			got := loadResult{AllowList: append([]string{}, cm.AllowList()...), Templates: make(map[string]string)}
			for _, doctype := range got.AllowList {
				if tpl := cm.TemplatePath(doctype); tpl != "" {
					got.Templates[doctype] = tpl
				}
			}

			want := testutils.LoadWithUpdateFromGoldenYAML(t, got)
			assert.Equal(t, want, got, "Loaded configuration should match golden file")
		})
	}
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		content string
		missing bool
	}{
		"Missing file":     {missing: true},
		"Undecodable JSON": {content: `not json`},
		"Wrong value type": {content: `{"allowList":"invoice"}`},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "cargodocs.json")
			if !tc.missing {
				require.NoError(t, os.WriteFile(path, []byte(tc.content), 0600), "Setup: cannot write config file")
			}

			require.Error(t, config.New(path).Load(), "Load should fail")
		})
	}
}

func TestIsAllowed(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, t.TempDir(), `{"allowList":["invoice"]}`)
	cm := config.New(path)

	assert.False(t, cm.IsAllowed("invoice"), "Nothing is allowed before the first load")

	require.NoError(t, cm.Load(), "Setup: Load should succeed")
	assert.True(t, cm.IsAllowed("invoice"), "Configured document type should be allowed")
	assert.False(t, cm.IsAllowed("manifest"), "Unknown document type should not be allowed")
	assert.False(t, cm.IsAllowed(""), "Empty document type should not be allowed")
}

func TestTemplatePath(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, t.TempDir(), `{"allowList":["invoice","manifest"],"templates":{"invoice":"/tpl/invoice.docx"}}`)
	cm := config.New(path)
	require.NoError(t, cm.Load(), "Setup: Load should succeed")

	assert.Equal(t, "/tpl/invoice.docx", cm.TemplatePath("invoice"), "Configured template should be returned")
	assert.Empty(t, cm.TemplatePath("manifest"), "Document types without a template return an empty path")
}

func TestWatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeConfig(t, dir, `{"allowList":["invoice"]}`)

	cm := config.New(path)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, watchErrs, err := cm.Watch(ctx)
	require.NoError(t, err, "Watch should start")
	assert.True(t, cm.IsAllowed("invoice"), "Watch should perform the initial load")

	// Rewrite the config and wait for the reload to land.
	require.NoError(t, os.WriteFile(path, []byte(`{"allowList":["manifest"]}`), 0600), "Cannot rewrite config file")

	select {
	case <-changes:
	case err := <-watchErrs:
		t.Fatalf("Watcher failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for configuration reload")
	}

	assert.True(t, cm.IsAllowed("manifest"), "Reloaded document type should be allowed")
	assert.False(t, cm.IsAllowed("invoice"), "Removed document type should no longer be allowed")
}

func TestWatchStops(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, t.TempDir(), `{"allowList":["invoice"]}`)
	cm := config.New(path)

	ctx, cancel := context.WithCancel(context.Background())
	changes, _, err := cm.Watch(ctx)
	require.NoError(t, err, "Watch should start")

	cancel()
	select {
	case _, ok := <-changes:
		assert.False(t, ok, "Changes channel should be closed after cancellation")
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for the watcher to stop")
	}
}

func TestWatchMissingDirectory(t *testing.T) {
	t.Parallel()

	cm := config.New(filepath.Join(t.TempDir(), "missing", "cargodocs.json"))
	_, _, err := cm.Watch(context.Background())
	require.Error(t, err, "Watch should fail when the config directory does not exist")
}
