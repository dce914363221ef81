package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/spotterhq/spotter/internal/config"
	"github.com/spotterhq/spotter/internal/geo"
	"github.com/spotterhq/spotter/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const candidatesJSON = `[
	{"id": "UAL123", "name": "UAL123", "category": "aircraft",
	 "position": {"lat": 40.0, "lon": -73.7655}, "height": 9000},
	{"id": "ESB", "name": "Empire State Building", "category": "landmark",
	 "position": {"lat": 40.7484, "lon": -73.9857}, "height": 443,
	 "attributes": {"wiki": "Empire_State_Building"}}
]`

const aircraftQuery = `{
	"id": "cli-1",
	"category": "aircraft",
	"metadata": {
		"observer": {"lat": 40.0, "lon": -74.0},
		"heading": 90,
		"image": {"width": 4032, "height": 3024},
		"zoomFactor": 1,
		"fieldOfView": 65,
		"gpsAccuracy": 5
	}
}`

type fixture struct {
	dir        string
	candidates string
	query      string
}

func newFixture(t *testing.T, source string) fixture {
	t.Helper()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	f := fixture{
		dir:        dir,
		candidates: filepath.Join(dir, "candidates.json"),
		query:      filepath.Join(dir, "query.json"),
	}
	require.NoError(t, os.WriteFile(f.candidates, []byte(candidatesJSON), 0644))
	require.NoError(t, os.WriteFile(f.query, []byte(aircraftQuery), 0644))

	cfg := map[string]any{
		"logsDir": filepath.Join(dir, "logs"),
		"source": map[string]any{
			"type":   source,
			"memory": map[string]any{"file": f.candidates},
			"sqlite": map[string]any{"path": filepath.Join(dir, "candidates.db")},
		},
	}
	body, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ConfigFileName), body, 0644))
	return f
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	a := newApp()
	a.stderr = io.Discard

	var out bytes.Buffer
	root := newRootCommand(a)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestResolveCommand_MemorySource(t *testing.T) {
	f := newFixture(t, "memory")

	out, err := execute(t, "resolve", "--config", f.dir, "--query", f.query)
	require.NoError(t, err)

	var res core.ResolutionResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "cli-1", res.QueryID)
	assert.Equal(t, core.ModeAutomatic, res.Mode)
	require.NotNil(t, res.Selected)
	assert.Equal(t, "UAL123", res.Selected.Object.ID)
	assert.Equal(t, core.MethodMatchedDatabase, res.Method)

	logs, err := filepath.Glob(filepath.Join(f.dir, "logs", "spotter.*.log"))
	require.NoError(t, err)
	assert.NotEmpty(t, logs)
}

func TestResolveCommand_InvalidQuery(t *testing.T) {
	f := newFixture(t, "memory")
	bad := filepath.Join(f.dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"category":"aircraft","metadata":{"heading":400}}`), 0644))

	_, err := execute(t, "resolve", "--config", f.dir, "--query", bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestResolveCommand_ObserverOverride(t *testing.T) {
	f := newFixture(t, "memory")

	// From east of the aircraft, a camera facing east sees nothing.
	out, err := execute(t, "resolve", "--config", f.dir, "--query", f.query, "--observer", "40.0,-73.5,120")
	require.NoError(t, err)

	var res core.ResolutionResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Nil(t, res.Selected)
	assert.Equal(t, core.MethodHeuristicProjection, res.Method)
	require.NotNil(t, res.EstimatedTarget)
	assert.Greater(t, res.EstimatedTarget.Longitude, -73.5)

	_, err = execute(t, "resolve", "--config", f.dir, "--query", f.query, "--observer", "north")
	require.Error(t, err)
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinates)
	assert.Contains(t, err.Error(), "invalid --observer")
}

func TestImportResolveHistory_SQLite(t *testing.T) {
	f := newFixture(t, "sqlite")

	out, err := execute(t, "import", "--config", f.dir, f.candidates)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 candidates")

	out, err = execute(t, "resolve", "--config", f.dir, "--query", f.query)
	require.NoError(t, err)
	var res core.ResolutionResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotNil(t, res.Selected)
	assert.Equal(t, "UAL123", res.Selected.Object.ID)

	out, err = execute(t, "history", "--config", f.dir, "-n", "5")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)

	var stored core.ResolutionResult
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &stored))
	assert.Equal(t, "cli-1", stored.QueryID)
	require.NotNil(t, stored.Selected)
	assert.Equal(t, "UAL123", stored.Selected.Object.ID)
}

func TestResolveCommand_UnknownSource(t *testing.T) {
	f := newFixture(t, "carrier-pigeon")

	_, err := execute(t, "resolve", "--config", f.dir, "--query", f.query)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown source type")
}

func TestHistoryCommand_NeedsDatabase(t *testing.T) {
	f := newFixture(t, "memory")

	_, err := execute(t, "history", "--config", f.dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite or postgres")
}
