package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MyCarrier-DevOps/cherry-harvest/cmd"
	"github.com/MyCarrier-DevOps/cherry-harvest/internal/domain"
	"github.com/MyCarrier-DevOps/cherry-harvest/internal/infrastructure/config"
	"github.com/MyCarrier-DevOps/cherry-harvest/internal/search"
)

func TestNewConfigTypeError(t *testing.T) {
	err := newConfigTypeError("*expected.Type")

	assert.NotNil(t, err)
	assert.IsType(t, &configTypeError{}, err)
}

func TestConfigTypeError_Error(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		want     string
	}{
		{
			name:     "ClickHouse config type",
			expected: "config.ClickHouseConfig",
			want:     "invalid configuration type: expected config.ClickHouseConfig",
		},
		{
			name:     "search config type",
			expected: "search.ApproximateConfig",
			want:     "invalid configuration type: expected search.ApproximateConfig",
		},
		{
			name:     "empty expected type",
			expected: "",
			want:     "invalid configuration type: expected ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &configTypeError{expected: tt.expected}
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestResolveLocation(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		location string
		want     string
	}{
		{"https URL", "https://github.com/o/r.git", "https://github.com/o/r.git"},
		{"ssh URL", "git@github.com:o/r.git", "git@github.com:o/r.git"},
		{"owner/repo shorthand", "owner/repo", "https://github.com/owner/repo.git"},
		{"existing local path", dir, dir},
		{"unknown", "not a repo", "not a repo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveLocation(tt.location))
		})
	}
}

func TestRunName(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "my-repo")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	assert.Equal(t, "owner/repo", runName("https://github.com/owner/repo.git"))
	assert.Equal(t, "owner/repo", runName("owner/repo"))
	assert.Equal(t, "my-repo", runName(dir))
}

func TestWorkerCount(t *testing.T) {
	assert.Equal(t, 3, workerCount(3))
	assert.Equal(t, runtime.NumCPU(), workerCount(0))
	assert.Equal(t, runtime.NumCPU(), workerCount(-1))
}

func TestToAppConfig(t *testing.T) {
	cfg := &config.Config{
		Search:      config.DefaultSearchConfig(),
		OutputDir:   "out",
		DBPath:      "db",
		GitHubToken: "tok",
		ClickHouse:  config.ClickHouseConfig{Addr: "localhost:9000"},
		LogLevel:    "info",
		LogAppName:  "app",
	}
	cfg.Search.Workers = 4

	app := toAppConfig(cfg)

	assert.Equal(t, cfg.Search.Methods, app.Methods)
	assert.Equal(t, 4, app.Workers)
	assert.IsType(t, search.ApproximateConfig{}, app.Search)
	assert.IsType(t, config.ClickHouseConfig{}, app.ClickHouse)
	assert.Equal(t, "tok", app.GitHubToken)
}

func TestDependencies_MethodsFactory(t *testing.T) {
	deps := newDependencies()
	app := toAppConfig(&config.Config{Search: config.DefaultSearchConfig()})

	methods, err := deps.MethodsFactory(app)

	require.NoError(t, err)
	require.Len(t, methods, 3)
	assert.Equal(t, search.ApproximateName, methods[2].Name())

	app.Search = "wrong"
	_, err = deps.MethodsFactory(app)
	assert.IsType(t, &configTypeError{}, err)
}

func TestDependencies_TrackerRequiresDB(t *testing.T) {
	deps := newDependencies()

	_, err := deps.TrackerFactory(context.Background(), &cmd.AppConfig{}, nil)

	assert.ErrorIs(t, err, errTrackerRequiresDB)
}

func TestNewSinks_StdoutAndDatabase(t *testing.T) {
	// Arrange
	ctx := context.Background()
	stores := &localStores{}
	dbPath := filepath.Join(t.TempDir(), "harvest.db")
	app := &cmd.AppConfig{DBPath: dbPath, ClickHouse: config.ClickHouseConfig{}}
	var stdout bytes.Buffer

	// Act
	sinks, err := newSinks(ctx, app, cmd.SinkOptions{Format: "json", Stdout: &stdout}, stores)
	require.NoError(t, err)
	tracker, err := stores.open(ctx, dbPath)
	require.NoError(t, err)

	// Assert
	require.Len(t, sinks, 2)
	assert.Same(t, tracker, sinks[1], "sink and tracker share the database")

	run := domain.RunInfo{Name: "owner/repo", StartedAt: time.Now()}
	require.NoError(t, sinks[0].Save(ctx, run, nil))
	assert.Contains(t, stdout.String(), `"repo_name": "owner/repo"`)

	for _, s := range sinks {
		require.NoError(t, s.Close())
	}
}

func TestNewSinks_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := newSinks(ctx, &cmd.AppConfig{ClickHouse: config.ClickHouseConfig{}},
		cmd.SinkOptions{Format: "xml"}, &localStores{})
	assert.Error(t, err)

	_, err = newSinks(ctx, &cmd.AppConfig{ClickHouse: "wrong"},
		cmd.SinkOptions{Format: "yaml", Stdout: &bytes.Buffer{}}, &localStores{})
	assert.IsType(t, &configTypeError{}, err)
}

func TestForkLister_LocalPathIsNotExpanded(t *testing.T) {
	dir := t.TempDir()
	f := &forkLister{}

	got, err := f.ForkNetwork(context.Background(), dir, -1)

	require.NoError(t, err)
	assert.Equal(t, []string{dir}, got)
}
