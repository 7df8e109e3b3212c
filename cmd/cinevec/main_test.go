package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

const importJSON = `{
  "movies": [
    {"id": "603", "title": "The Matrix", "genres": ["Action", "Science Fiction"], "releaseYear": 1999},
    {"id": "13", "title": "Forrest Gump", "genres": ["Comedy", "Drama"], "releaseYear": 1994}
  ]
}`

// testApp returns the CLI wired to a config file under a temp dir.
func testApp(t *testing.T) (*cli.App, *bytes.Buffer, string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "cinevec.yaml")
	yaml := "index:\n" +
		"  backend: badger\n" +
		"  badger:\n" +
		"    path: " + filepath.Join(dir, "index") + "\n" +
		"    snapshot_dir: " + filepath.Join(dir, "snapshots") + "\n" +
		"catalog:\n" +
		"  path: " + filepath.Join(dir, "catalog.db") + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o644))

	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	out := &bytes.Buffer{}
	app := newApp()
	app.Writer = out
	app.ErrWriter = &bytes.Buffer{}
	app.ExitErrHandler = func(*cli.Context, error) {}
	return app, out, cfgPath
}

func TestParseLevel(t *testing.T) {
	for s, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := parseLevel(s)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := parseLevel("verbose")
	assert.ErrorContains(t, err, "invalid log level")
}

func TestCommands(t *testing.T) {
	app := newApp()
	var names []string
	for _, cmd := range app.Commands {
		names = append(names, cmd.Name)
	}
	assert.Equal(t, []string{"serve", "bootstrap-concepts", "reembed", "import", "snapshot"}, names)

	snapshot := app.Command("snapshot")
	require.NotNil(t, snapshot)
	var subs []string
	for _, cmd := range snapshot.Subcommands {
		subs = append(subs, cmd.Name)
	}
	assert.Equal(t, []string{"create", "list", "download", "restore"}, subs)
}

func TestImportCommand(t *testing.T) {
	app, out, cfgPath := testApp(t)
	file := filepath.Join(t.TempDir(), "movies.json")
	require.NoError(t, os.WriteFile(file, []byte(importJSON), 0o644))

	require.NoError(t, app.Run([]string{"cinevec", "--config", cfgPath, "import", file}))
	assert.Contains(t, out.String(), "Imported 2 movies and 0 favorites")

	t.Run("requires a file", func(t *testing.T) {
		err := app.Run([]string{"cinevec", "--config", cfgPath, "import"})
		require.Error(t, err)
		var exit cli.ExitCoder
		require.ErrorAs(t, err, &exit)
		assert.Equal(t, 2, exit.ExitCode())
	})

	t.Run("missing file", func(t *testing.T) {
		err := app.Run([]string{"cinevec", "--config", cfgPath, "import", filepath.Join(t.TempDir(), "nope.json")})
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestSnapshotListEmpty(t *testing.T) {
	app, out, cfgPath := testApp(t)
	require.NoError(t, app.Run([]string{"cinevec", "--config", cfgPath, "snapshot", "list"}))
	assert.Contains(t, out.String(), "COLLECTION")
	assert.NotContains(t, out.String(), ".snapshot")
}

func TestInvalidLogLevel(t *testing.T) {
	app, _, cfgPath := testApp(t)
	err := app.Run([]string{"cinevec", "--config", cfgPath, "--log-level", "loud", "snapshot", "list"})
	assert.ErrorContains(t, err, "invalid log level")
}

func TestMissingConfigFile(t *testing.T) {
	app, _, _ := testApp(t)
	err := app.Run([]string{"cinevec", "--config", filepath.Join(t.TempDir(), "absent.yaml"), "snapshot", "list"})
	assert.Error(t, err)
}
