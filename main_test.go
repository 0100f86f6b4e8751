package main

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagecheck/config"
)

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagecheck.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: http://file.test\nengine: rod\ngrace_ms: 500\n"), 0o644))

	root := newRootCmd(context.Background(), &bytes.Buffer{})
	require.NoError(t, root.ParseFlags([]string{
		"--config", path,
		"--url", "http://flag.test:8080/login",
		"--grace", "750",
		"--chrome-mode", "ws://127.0.0.1:9222/devtools/browser/abc",
	}))

	cfg, err := loadConfig(root, rootOptionsOf(t, root))
	require.NoError(t, err)

	assert.Equal(t, "http://flag.test:8080/login", cfg.URL)
	assert.Equal(t, config.EngineRod, cfg.Engine, "unset flags keep the file value")
	assert.Equal(t, 750, cfg.Grace)
	assert.True(t, config.IsRemoteMode(cfg.ChromeMode))
	assert.Equal(t, "/tmp/login_page.png", cfg.Output)
}

func TestRootCmd_InvalidConfig(t *testing.T) {
	root := newRootCmd(context.Background(), &bytes.Buffer{})
	root.SetArgs([]string{"--engine", "firefox"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestRootCmd_RejectsArgs(t *testing.T) {
	root := newRootCmd(context.Background(), &bytes.Buffer{})
	root.SetArgs([]string{"http://example.com"})
	assert.Error(t, root.Execute())
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd(context.Background(), &out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "pagecheck dev\n", out.String())
}

func TestServeFixture_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	done := make(chan error, 1)
	go func() { done <- serveFixture(ctx, srv) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("fixture server did not stop")
	}
}

// rootOptionsOf reads the parsed flag values back off the command
func rootOptionsOf(t *testing.T, root *cobra.Command) *rootOptions {
	t.Helper()
	flags := root.Flags()
	opts := &rootOptions{}
	var err error
	opts.configPath, err = flags.GetString("config")
	require.NoError(t, err)
	opts.url, _ = flags.GetString("url")
	opts.output, _ = flags.GetString("output")
	opts.engine, _ = flags.GetString("engine")
	opts.chromeMode, _ = flags.GetString("chrome-mode")
	opts.storageKey, _ = flags.GetString("storage-key")
	opts.graceMs, _ = flags.GetInt("grace")
	opts.idleMs, _ = flags.GetInt("idle-timeout")
	opts.navMs, _ = flags.GetInt("nav-timeout")
	opts.logLevel, _ = flags.GetString("log-level")
	opts.logFile, _ = flags.GetString("log-file")
	return opts
}
