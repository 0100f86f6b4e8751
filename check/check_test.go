package check

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"pagecheck/browser"
	"pagecheck/config"
	"pagecheck/logger"
)

const loginHTML = `<html><head><title>Admin Console</title></head><body>
<div class="login" style="background-image: url(/bg.png)">
  <form class="login-form"><h3 class="title">Sign In</h3><input name="username"></form>
</div></body></html>`

// fakeSession records calls and replays canned engine answers
type fakeSession struct {
	console  browser.ConsoleFunc
	lines    int
	navErr   error
	idle     bool
	shot     []byte
	shotErr  error
	title    string
	html     string
	htmlErr  error
	item     browser.StorageItem
	itemErr  error
	calls    []string
	closed   int
	closeErr error
}

func (f *fakeSession) Navigate(ctx context.Context, url string) error {
	f.calls = append(f.calls, "navigate "+url)
	for i := 1; i <= f.lines; i++ {
		f.console("log", fmt.Sprintf("line %d", i))
	}
	return f.navErr
}

func (f *fakeSession) WaitIdle(ctx context.Context, timeout time.Duration) bool {
	f.calls = append(f.calls, "wait")
	return f.idle
}

func (f *fakeSession) Screenshot(ctx context.Context) ([]byte, error) {
	f.calls = append(f.calls, "screenshot")
	return f.shot, f.shotErr
}

func (f *fakeSession) Title(ctx context.Context) (string, error) {
	f.calls = append(f.calls, "title")
	return f.title, nil
}

func (f *fakeSession) HTML(ctx context.Context) (string, error) {
	f.calls = append(f.calls, "html")
	return f.html, f.htmlErr
}

func (f *fakeSession) LocalStorageItem(ctx context.Context, key string) (browser.StorageItem, error) {
	f.calls = append(f.calls, "storage "+key)
	return f.item, f.itemErr
}

func (f *fakeSession) Close() error {
	f.closed++
	return f.closeErr
}

func launcherFor(s *fakeSession) browser.Launcher {
	return browser.LauncherFunc(func(ctx context.Context, cfg *config.Config, console browser.ConsoleFunc) (browser.Session, error) {
		s.console = console
		return s, nil
	})
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	logger.Set(zaptest.NewLogger(t))

	cfg := config.Default()
	cfg.Output = filepath.Join(t.TempDir(), "login_page.png")
	cfg.Grace = 1
	cfg.IdleTimeout = 10
	return cfg
}

func loginSession() *fakeSession {
	return &fakeSession{
		idle:  true,
		shot:  []byte("\x89PNG fake image"),
		title: "Admin Console",
		html:  loginHTML,
		item:  browser.StorageItem{Found: true, Value: `{"title":"Sign In","background":"/bg.png"}`},
	}
}

func TestRun_LoginPage(t *testing.T) {
	cfg := testConfig(t)
	s := loginSession()
	s.lines = 12

	report, err := Run(context.Background(), launcherFor(s), cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"navigate http://localhost:80",
		"wait",
		"screenshot",
		"title",
		"html",
		"storage login_config",
	}, s.calls)
	assert.Equal(t, 1, s.closed)

	data, err := os.ReadFile(cfg.Output)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	assert.Equal(t, "Admin Console", report.Title)
	require.Len(t, report.Elements, 2)
	assert.Equal(t, "Sign In", report.Elements[0].Value)
	assert.Equal(t, "background-image: url(/bg.png)", report.Elements[1].Value)
	assert.True(t, report.Storage.Valid)
	assert.True(t, report.IdleReached)
	assert.NotEmpty(t, report.RunID)

	require.Len(t, report.Logs, LogTail)
	assert.Equal(t, "line 3", report.Logs[0].Text)
	assert.Equal(t, "line 12", report.Logs[LogTail-1].Text)

	var out bytes.Buffer
	_, err = report.WriteTo(&out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "- Login title: Sign In")
	assert.Contains(t, out.String(), `"title": "Sign In"`)
	assert.Contains(t, out.String(), "[log] line 12")
	assert.NotContains(t, out.String(), "[log] line 2\n")
}

func TestRun_NavigationError(t *testing.T) {
	cfg := testConfig(t)
	// Left over from an earlier run
	require.NoError(t, os.WriteFile(cfg.Output, []byte("old"), 0644))

	s := loginSession()
	s.navErr = errors.New("page load error net::ERR_CONNECTION_REFUSED")

	report, err := Run(context.Background(), launcherFor(s), cfg)
	assert.Nil(t, report)

	var navErr *NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.Equal(t, cfg.URL, navErr.URL)
	assert.ErrorIs(t, err, s.navErr)

	assert.NoFileExists(t, cfg.Output)
	assert.Equal(t, 1, s.closed, "session must be released after a failed navigation")
	assert.NotContains(t, s.calls, "screenshot")
}

func TestRun_LaunchError(t *testing.T) {
	cfg := testConfig(t)
	cause := errors.New("could not find Chrome executable")
	launcher := browser.LauncherFunc(func(ctx context.Context, cfg *config.Config, console browser.ConsoleFunc) (browser.Session, error) {
		return nil, cause
	})

	_, err := Run(context.Background(), launcher, cfg)

	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	assert.Equal(t, config.EngineChromedp, launchErr.Engine)
	assert.ErrorIs(t, err, cause)
	assert.NoFileExists(t, cfg.Output)
}

func TestRun_ArtifactErrors(t *testing.T) {
	t.Run("unwritable path", func(t *testing.T) {
		cfg := testConfig(t)
		blocker := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(blocker, nil, 0644))
		cfg.Output = filepath.Join(blocker, "shot.png")

		s := loginSession()
		_, err := Run(context.Background(), launcherFor(s), cfg)

		var artifactErr *ArtifactError
		require.ErrorAs(t, err, &artifactErr)
		assert.Equal(t, cfg.Output, artifactErr.Path)
		assert.Equal(t, 1, s.closed)
	})

	t.Run("empty capture", func(t *testing.T) {
		cfg := testConfig(t)
		s := loginSession()
		s.shot = nil

		_, err := Run(context.Background(), launcherFor(s), cfg)

		var artifactErr *ArtifactError
		require.ErrorAs(t, err, &artifactErr)
		assert.NoFileExists(t, cfg.Output)
		assert.Equal(t, 1, s.closed)
	})

	t.Run("capture failure", func(t *testing.T) {
		cfg := testConfig(t)
		s := loginSession()
		s.shotErr = errors.New("target closed")

		_, err := Run(context.Background(), launcherFor(s), cfg)

		var artifactErr *ArtifactError
		require.ErrorAs(t, err, &artifactErr)
		assert.ErrorIs(t, err, s.shotErr)
	})
}

func TestRun_StoredConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		item    browser.StorageItem
		itemErr error
		want    string
	}{
		{"absent", browser.StorageItem{}, nil, "not found"},
		{"json null", browser.StorageItem{Found: true, Value: "null"}, nil, "not found"},
		{"empty string", browser.StorageItem{Found: true, Value: ""}, nil, "not found"},
		{"empty object", browser.StorageItem{Found: true, Value: "{}"}, nil, "not found"},
		{"malformed", browser.StorageItem{Found: true, Value: "{oops"}, nil, "invalid JSON"},
		{"storage blocked", browser.StorageItem{Error: "SecurityError: access denied"}, nil, "unavailable: SecurityError"},
		{"evaluation failed", browser.StorageItem{}, errors.New("execution context destroyed"), "unavailable: execution context destroyed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			s := loginSession()
			s.item = tt.item
			s.itemErr = tt.itemErr

			report, err := Run(context.Background(), launcherFor(s), cfg)
			require.NoError(t, err)

			var out bytes.Buffer
			_, err = report.WriteTo(&out)
			require.NoError(t, err)
			assert.Contains(t, out.String(), tt.want)
		})
	}
}

func TestRun_MissingElementsAndIdleTimeout(t *testing.T) {
	cfg := testConfig(t)
	s := loginSession()
	s.html = "<html><body><p>maintenance</p></body></html>"
	s.idle = false

	report, err := Run(context.Background(), launcherFor(s), cfg)
	require.NoError(t, err)

	assert.False(t, report.IdleReached)
	for _, el := range report.Elements {
		assert.False(t, el.Found, el.Label)
		assert.NoError(t, el.Err)
	}
	assert.FileExists(t, cfg.Output)
}

func TestRun_HTMLFailureIsReported(t *testing.T) {
	cfg := testConfig(t)
	s := loginSession()
	s.htmlErr = errors.New("evaluate failed")

	report, err := Run(context.Background(), launcherFor(s), cfg)
	require.NoError(t, err)
	for _, el := range report.Elements {
		assert.ErrorIs(t, el.Err, s.htmlErr)
	}
}

func TestRun_CloseErrorDoesNotFailRun(t *testing.T) {
	cfg := testConfig(t)
	s := loginSession()
	s.closeErr = errors.New("browser already gone")

	_, err := Run(context.Background(), launcherFor(s), cfg)
	assert.NoError(t, err)
	assert.Equal(t, 1, s.closed)
}

func TestRun_CancelledDuringGrace(t *testing.T) {
	cfg := testConfig(t)
	cfg.Grace = 60000
	s := loginSession()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Run(ctx, launcherFor(s), cfg)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, s.closed)
	assert.NoFileExists(t, cfg.Output)
}
