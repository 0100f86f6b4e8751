// Package browser adapts browser automation engines (chromedp and rod) to the
// small Session surface the page check consumes.
package browser

import (
	"context"
	"fmt"
	"time"

	"pagecheck/config"
)

// ConsoleFunc receives one browser console line, e.g. level "log", "warning"
// or "error". It may be called from engine goroutines.
type ConsoleFunc func(level, text string)

// StorageItem is the result of reading one localStorage key in the page
type StorageItem struct {
	Found bool   `json:"found"`
	Value string `json:"value"`
	Error string `json:"error,omitempty"` // Set when localStorage itself is unavailable
}

// Session is one browser with one page, owned by a single check run
type Session interface {
	// Navigate loads url and waits for the load event
	Navigate(ctx context.Context, url string) error
	// WaitIdle blocks until the page reports network idle or timeout
	// elapses. It reports whether idle was observed.
	WaitIdle(ctx context.Context, timeout time.Duration) bool
	// Screenshot captures the whole document, not just the viewport
	Screenshot(ctx context.Context) ([]byte, error)
	Title(ctx context.Context) (string, error)
	// HTML returns the serialized rendered document
	HTML(ctx context.Context) (string, error)
	LocalStorageItem(ctx context.Context, key string) (StorageItem, error)
	Close() error
}

// Launcher starts browser sessions
type Launcher interface {
	Launch(ctx context.Context, cfg *config.Config, console ConsoleFunc) (Session, error)
}

// LauncherFunc adapts a function to the Launcher interface
type LauncherFunc func(ctx context.Context, cfg *config.Config, console ConsoleFunc) (Session, error)

func (f LauncherFunc) Launch(ctx context.Context, cfg *config.Config, console ConsoleFunc) (Session, error) {
	return f(ctx, cfg, console)
}

// NewLauncher returns the launcher for the named engine
func NewLauncher(engine string) (Launcher, error) {
	switch engine {
	case config.EngineChromedp, "":
		return LauncherFunc(launchChromedp), nil
	case config.EngineRod:
		return LauncherFunc(launchRod), nil
	default:
		return nil, fmt.Errorf("unsupported engine: %s", engine)
	}
}
