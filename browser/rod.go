package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"pagecheck/config"
	"pagecheck/logger"
)

// rodSession drives one page through go-rod
type rodSession struct {
	cfg        *config.Config
	ctx        context.Context
	browser    *rod.Browser
	page       *rod.Page
	launcher   *launcher.Launcher // nil when attached to a remote browser
	docker     bool
	idle       chan struct{}
	idleCancel context.CancelFunc
}

// rodControlURL resolves the DevTools websocket url for the configured chrome mode
func rodControlURL(ctx context.Context, cfg *config.Config) (string, *launcher.Launcher, bool, error) {
	mode := cfg.ChromeMode
	switch {
	case strings.HasPrefix(mode, "ws://"), strings.HasPrefix(mode, "wss://"):
		return mode, nil, false, nil
	case config.IsRemoteMode(mode):
		u, err := launcher.ResolveURL(mode)
		return u, nil, false, err
	case mode == config.ChromeModeDocker:
		dockerURL, err := startDockerChrome(ctx)
		if err != nil {
			return "", nil, false, err
		}
		u, err := launcher.ResolveURL(dockerURL)
		return u, nil, true, err
	}

	l := launcher.New().
		Context(ctx).
		Headless(true).
		Set("no-sandbox").
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("window-size", fmt.Sprintf("%d,%d", cfg.Viewport.Width, cfg.Viewport.Height))

	if execPath, err := FindChromeExecutable(); err == nil {
		logger.S().Infof("Using local Chrome executable at: %s", execPath)
		l = l.Bin(execPath)
	} else if mode == config.ChromeModeLocal {
		return "", nil, false, err
	} else {
		logger.S().Infof("Local Chrome not found (%v), using the browser managed by rod", err)
	}

	u, err := l.Launch()
	if err != nil {
		return "", nil, false, fmt.Errorf("failed to launch browser: %w", err)
	}
	return u, l, false, nil
}

func launchRod(ctx context.Context, cfg *config.Config, console ConsoleFunc) (Session, error) {
	controlURL, l, docker, err := rodControlURL(ctx, cfg)
	if err != nil {
		return nil, err
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	p, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		closeRodBrowser(b, l)
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             cfg.Viewport.Width,
		Height:            cfg.Viewport.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		closeRodBrowser(b, l)
		return nil, fmt.Errorf("failed to set viewport: %w", err)
	}

	if console != nil {
		go p.EachEvent(
			func(e *proto.RuntimeConsoleAPICalled) {
				console(string(e.Type), rodConsoleText(e.Args))
			},
			func(e *proto.RuntimeExceptionThrown) {
				if e.ExceptionDetails == nil {
					return
				}
				text := e.ExceptionDetails.Text
				if e.ExceptionDetails.Exception != nil && e.ExceptionDetails.Exception.Description != "" {
					text = e.ExceptionDetails.Exception.Description
				}
				console("error", text)
			},
		)()
	}

	return &rodSession{
		cfg:      cfg,
		ctx:      ctx,
		browser:  b,
		page:     p,
		launcher: l,
		docker:   docker,
	}, nil
}

// scoped binds the page to ctx and bounds every CDP call by the navigation timeout
func (s *rodSession) scoped(ctx context.Context) *rod.Page {
	return s.page.Context(ctx).Timeout(s.cfg.NavTimeoutDuration())
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	if s.docker {
		url = rewriteForDocker(url)
	}

	// Arm the idle waiter before navigating so the event cannot be missed
	waitCtx, cancel := context.WithCancel(s.ctx)
	s.idleCancel = cancel
	s.idle = make(chan struct{})
	wait := s.page.Context(waitCtx).WaitNavigation(proto.PageLifecycleEventNameNetworkIdle)
	idle := s.idle
	go func() {
		wait()
		close(idle)
	}()

	p := s.scoped(ctx)
	if err := p.Navigate(url); err != nil {
		cancel()
		return err
	}
	if err := p.WaitLoad(); err != nil {
		cancel()
		return err
	}
	return nil
}

func (s *rodSession) WaitIdle(ctx context.Context, timeout time.Duration) bool {
	if s.idle == nil {
		return false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.idle:
		return true
	case <-timer.C:
	case <-ctx.Done():
	}
	s.idleCancel()
	return false
}

func (s *rodSession) Screenshot(ctx context.Context) ([]byte, error) {
	req := &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng}
	if s.cfg.Format() == "jpeg" {
		quality := s.cfg.Quality
		req.Format = proto.PageCaptureScreenshotFormatJpeg
		req.Quality = &quality
	}
	return s.scoped(ctx).Screenshot(true, req)
}

func (s *rodSession) Title(ctx context.Context) (string, error) {
	info, err := s.scoped(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

func (s *rodSession) HTML(ctx context.Context) (string, error) {
	return s.scoped(ctx).HTML()
}

func (s *rodSession) LocalStorageItem(ctx context.Context, key string) (StorageItem, error) {
	obj, err := s.scoped(ctx).Eval(rodStorageScript, key)
	if err != nil {
		return StorageItem{}, fmt.Errorf("evaluate localStorage read: %w", err)
	}

	var item StorageItem
	if err := json.Unmarshal([]byte(obj.Value.JSON("", "")), &item); err != nil {
		return StorageItem{}, fmt.Errorf("decode localStorage read: %w", err)
	}
	return item, nil
}

func (s *rodSession) Close() error {
	if s.idleCancel != nil {
		s.idleCancel()
	}
	if s.launcher == nil {
		// Attached to a browser we do not own, only close our tab
		return s.page.Close()
	}
	return closeRodBrowser(s.browser, s.launcher)
}

func closeRodBrowser(b *rod.Browser, l *launcher.Launcher) error {
	err := b.Close()
	if l != nil {
		l.Kill()
		l.Cleanup()
	}
	return err
}

// rodConsoleText renders console arguments like consoleText does for chromedp
func rodConsoleText(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == nil {
			continue
		}
		switch {
		case arg.Type == proto.RuntimeRemoteObjectTypeString:
			parts = append(parts, arg.Value.Str())
		case arg.UnserializableValue != "":
			parts = append(parts, string(arg.UnserializableValue))
		case arg.Type == proto.RuntimeRemoteObjectTypeUndefined:
			parts = append(parts, "undefined")
		case arg.Description != "":
			parts = append(parts, arg.Description)
		case !arg.Value.Nil():
			parts = append(parts, arg.Value.JSON("", ""))
		default:
			parts = append(parts, string(arg.Type))
		}
	}
	return strings.Join(parts, " ")
}
