package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"pagecheck/config"
	"pagecheck/logger"
)

// chromeSession drives one Chrome tab through chromedp
type chromeSession struct {
	cfg           *config.Config
	ctx           context.Context
	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc
	console       ConsoleFunc
	idle          chan struct{}
	docker        bool
}

// newAllocator picks the Chrome implementation.
// Priority in auto mode: 1. Local Chrome, 2. Docker Chrome, 3. chromedp defaults
func newAllocator(ctx context.Context, cfg *config.Config) (context.Context, context.CancelFunc, bool, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(cfg.Viewport.Width, cfg.Viewport.Height),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Headless,
	)

	switch mode := cfg.ChromeMode; {
	case config.IsRemoteMode(mode):
		logger.S().Infof("Using remote Chrome at: %s", mode)
		allocCtx, cancel := chromedp.NewRemoteAllocator(ctx, mode)
		return allocCtx, cancel, false, nil

	case mode == config.ChromeModeDocker:
		dockerURL, err := startDockerChrome(ctx)
		if err != nil {
			return nil, nil, false, err
		}
		allocCtx, cancel := chromedp.NewRemoteAllocator(ctx, dockerURL)
		return allocCtx, cancel, true, nil

	case mode == config.ChromeModeLocal:
		execPath, err := FindChromeExecutable()
		if err != nil {
			return nil, nil, false, err
		}
		logger.S().Infof("Using local Chrome executable at: %s", execPath)
		allocCtx, cancel := chromedp.NewExecAllocator(ctx, append(opts, chromedp.ExecPath(execPath))...)
		return allocCtx, cancel, false, nil
	}

	execPath, err := FindChromeExecutable()
	if err == nil {
		logger.S().Infof("Using local Chrome executable at: %s", execPath)
		allocCtx, cancel := chromedp.NewExecAllocator(ctx, append(opts, chromedp.ExecPath(execPath))...)
		return allocCtx, cancel, false, nil
	}
	logger.S().Infof("Local Chrome not found: %v", err)

	logger.S().Infof("Attempting to use Docker Chrome...")
	dockerURL, err := startDockerChrome(ctx)
	if err == nil {
		logger.S().Infof("Using Docker Chrome at: %s", dockerURL)
		allocCtx, cancel := chromedp.NewRemoteAllocator(ctx, dockerURL)
		return allocCtx, cancel, true, nil
	}
	logger.S().Infof("Docker Chrome failed: %v", err)

	logger.S().Infof("Falling back to default Chrome settings")
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	return allocCtx, cancel, false, nil
}

func launchChromedp(ctx context.Context, cfg *config.Config, console ConsoleFunc) (Session, error) {
	allocCtx, cancelAlloc, docker, err := newAllocator(ctx, cfg)
	if err != nil {
		return nil, err
	}

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.S().Debugf),
		chromedp.WithErrorf(logger.S().Debugf),
	)

	s := &chromeSession{
		cfg:           cfg,
		ctx:           browserCtx,
		cancelAlloc:   cancelAlloc,
		cancelBrowser: cancelBrowser,
		console:       console,
		idle:          make(chan struct{}, 1),
		docker:        docker,
	}
	chromedp.ListenTarget(browserCtx, s.onEvent)

	// The first Run starts the browser
	if err := chromedp.Run(browserCtx,
		page.SetLifecycleEventsEnabled(true),
		chromedp.EmulateViewport(int64(cfg.Viewport.Width), int64(cfg.Viewport.Height)),
	); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, err
	}

	return s, nil
}

func (s *chromeSession) onEvent(ev interface{}) {
	switch ev := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		if s.console != nil {
			s.console(string(ev.Type), consoleText(ev.Args))
		}
	case *runtime.EventExceptionThrown:
		if s.console != nil && ev.ExceptionDetails != nil {
			text := ev.ExceptionDetails.Text
			if ev.ExceptionDetails.Exception != nil && ev.ExceptionDetails.Exception.Description != "" {
				text = ev.ExceptionDetails.Exception.Description
			}
			s.console("error", text)
		}
	case *page.EventLifecycleEvent:
		switch ev.Name {
		case "init":
			// A new document started loading, forget idleness of the old one
			select {
			case <-s.idle:
			default:
			}
		case "networkIdle":
			select {
			case s.idle <- struct{}{}:
			default:
			}
		}
	}
}

// scope derives a context from the browser context that also ends with ctx
func (s *chromeSession) scope(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	var c context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		c, cancel = context.WithTimeout(s.ctx, timeout)
	} else {
		c, cancel = context.WithCancel(s.ctx)
	}
	stop := context.AfterFunc(ctx, cancel)
	return c, func() {
		stop()
		cancel()
	}
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	if s.docker {
		url = rewriteForDocker(url)
	}

	select {
	case <-s.idle:
	default:
	}

	tctx, cancel := s.scope(ctx, s.cfg.NavTimeoutDuration())
	defer cancel()
	return chromedp.Run(tctx, chromedp.Navigate(url))
}

func (s *chromeSession) WaitIdle(ctx context.Context, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.idle:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *chromeSession) Screenshot(ctx context.Context) ([]byte, error) {
	// chromedp encodes PNG only at quality 100
	quality := 100
	if s.cfg.Format() == "jpeg" {
		quality = s.cfg.Quality
	}

	tctx, cancel := s.scope(ctx, s.cfg.NavTimeoutDuration())
	defer cancel()

	var buf []byte
	if err := chromedp.Run(tctx, chromedp.FullScreenshot(&buf, quality)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *chromeSession) Title(ctx context.Context) (string, error) {
	tctx, cancel := s.scope(ctx, s.cfg.NavTimeoutDuration())
	defer cancel()

	var title string
	err := chromedp.Run(tctx, chromedp.Title(&title))
	return title, err
}

func (s *chromeSession) HTML(ctx context.Context) (string, error) {
	tctx, cancel := s.scope(ctx, s.cfg.NavTimeoutDuration())
	defer cancel()

	var html string
	err := chromedp.Run(tctx, chromedp.Evaluate(`document.documentElement.outerHTML`, &html))
	return html, err
}

func (s *chromeSession) LocalStorageItem(ctx context.Context, key string) (StorageItem, error) {
	tctx, cancel := s.scope(ctx, s.cfg.NavTimeoutDuration())
	defer cancel()

	var item StorageItem
	if err := chromedp.Run(tctx, chromedp.Evaluate(storageScript(key), &item)); err != nil {
		return StorageItem{}, fmt.Errorf("evaluate localStorage read: %w", err)
	}
	return item, nil
}

func (s *chromeSession) Close() error {
	// Cancel closes the tab (and the browser when we launched it)
	err := chromedp.Cancel(s.ctx)
	s.cancelBrowser()
	s.cancelAlloc()
	return err
}
