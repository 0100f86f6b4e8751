// Package check runs the page verification routine: launch, navigate, wait,
// screenshot, read back DOM and storage, collect console logs, release.
package check

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pagecheck/browser"
	"pagecheck/config"
	"pagecheck/logger"
)

// Run performs one check against cfg.URL. It never retries; the first
// launch, navigation or screenshot failure aborts the run. The browser
// session is released on every path once it was acquired.
func Run(ctx context.Context, launcher browser.Launcher, cfg *config.Config) (*Report, error) {
	runID := uuid.New().String()
	log := logger.L().With(zap.String("run_id", runID), zap.String("url", cfg.URL))
	start := time.Now()

	// A stale screenshot from an earlier run must not pass for this one. An
	// unusable path surfaces later as an ArtifactError.
	if err := os.Remove(cfg.Output); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Failed to remove previous screenshot", zap.String("path", cfg.Output), zap.Error(err))
	}

	logs := NewBuffer()

	log.Info("Launching browser", zap.String("engine", cfg.Engine), zap.String("chrome_mode", cfg.ChromeMode))
	session, err := launcher.Launch(ctx, cfg, logs.Add)
	if err != nil {
		return nil, &LaunchError{Engine: cfg.Engine, Err: err}
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn("Failed to close browser session", zap.Error(err))
		}
		log.Debug("Browser session released")
	}()

	log.Info("Navigating to target page")
	if err := session.Navigate(ctx, cfg.URL); err != nil {
		return nil, &NavigationError{URL: cfg.URL, Err: err}
	}

	idle := session.WaitIdle(ctx, cfg.IdleTimeoutDuration())
	if !idle {
		log.Warn("Network did not go idle before timeout, continuing", zap.Duration("idle_timeout", cfg.IdleTimeoutDuration()))
	}
	if err := sleep(ctx, cfg.GraceDuration()); err != nil {
		return nil, err
	}

	if err := captureScreenshot(ctx, session, cfg.Output); err != nil {
		return nil, err
	}
	log.Info("Screenshot saved", zap.String("path", cfg.Output))

	report := &Report{
		RunID:       runID,
		URL:         cfg.URL,
		Engine:      cfg.Engine,
		IdleReached: idle,
		Screenshot:  cfg.Output,
	}

	report.Title, report.TitleErr = session.Title(ctx)
	if report.TitleErr != nil {
		log.Warn("Failed to read page title", zap.Error(report.TitleErr))
	}

	html, err := session.HTML(ctx)
	if err != nil {
		log.Warn("Failed to read page HTML", zap.Error(err))
		report.Elements = failedProbes(cfg.Probes, err)
	} else {
		report.Elements = probeElements(html, cfg.Probes)
	}

	item, err := session.LocalStorageItem(ctx, cfg.StorageKey)
	report.Storage = parseStored(cfg.StorageKey, item, err)
	if report.Storage.ParseError != nil {
		log.Warn("Stored configuration is not valid JSON", zap.String("key", cfg.StorageKey), zap.Error(report.Storage.ParseError))
	}

	report.Logs = logs.Tail(LogTail)
	report.Duration = time.Since(start)
	log.Info("Check completed", zap.Duration("elapsed", report.Duration), zap.Int("console_lines", logs.Len()))

	return report, nil
}

func captureScreenshot(ctx context.Context, session browser.Session, path string) error {
	buf, err := session.Screenshot(ctx)
	if err != nil {
		return &ArtifactError{Path: path, Err: fmt.Errorf("capture: %w", err)}
	}
	if len(buf) == 0 {
		return &ArtifactError{Path: path, Err: errors.New("capture returned no image data")}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &ArtifactError{Path: path, Err: err}
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return &ArtifactError{Path: path, Err: err}
	}
	return nil
}

func failedProbes(probes []config.Probe, err error) []ElementResult {
	results := make([]ElementResult, 0, len(probes))
	for _, p := range probes {
		results = append(results, ElementResult{Label: p.Label, Selector: p.Selector, Attr: p.Attr, Err: err})
	}
	return results
}

// sleep waits d, returning early only when ctx ends
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
