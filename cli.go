package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"pagecheck/browser"
	"pagecheck/check"
	"pagecheck/config"
	"pagecheck/fixture"
	"pagecheck/logger"
)

var version = "dev"

type rootOptions struct {
	configPath  string
	url         string
	output      string
	engine      string
	chromeMode  string
	storageKey  string
	graceMs     int
	idleMs      int
	navMs       int
	logLevel    string
	logFile     string
	fixtureAddr string
}

func newRootCmd(ctx context.Context, stdout io.Writer) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "pagecheck",
		Short: "pagecheck - verify a web page renders in a headless browser",
		Long: `pagecheck loads one page in headless Chrome, waits for the network to go
idle, saves a full-page screenshot and prints what it found.

Examples:
  pagecheck                                   # check http://localhost:80
  pagecheck --url http://localhost:8080/login
  pagecheck --engine rod --chrome-mode docker
  pagecheck --config pagecheck.yaml
  pagecheck fixture --addr :8080              # serve a sample login page`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer logger.Sync()
			return runCheck(ctx, cfg, stdout)
		},
	}

	flags := root.Flags()
	flags.StringVar(&opts.configPath, "config", "", "Path to a JSON or YAML configuration file")
	flags.StringVar(&opts.url, "url", "", "Page to check")
	flags.StringVar(&opts.output, "output", "", "Screenshot path (.png, .jpg or .jpeg)")
	flags.StringVar(&opts.engine, "engine", "", "Browser driver: chromedp or rod")
	flags.StringVar(&opts.chromeMode, "chrome-mode", "", "Chrome source: auto, local, docker or a DevTools URL")
	flags.StringVar(&opts.storageKey, "storage-key", "", "localStorage key holding the page configuration")
	flags.IntVar(&opts.graceMs, "grace", 0, "Extra wait after network idle, in milliseconds")
	flags.IntVar(&opts.idleMs, "idle-timeout", 0, "Maximum wait for network idle, in milliseconds")
	flags.IntVar(&opts.navMs, "nav-timeout", 0, "Navigation timeout, in milliseconds")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: DEBUG, INFO, WARN or ERROR")
	flags.StringVar(&opts.logFile, "log-file", "", "Write JSON logs to this file instead of stderr")

	root.AddCommand(newFixtureCmd(ctx, opts), newVersionCmd(stdout))
	return root
}

// loadConfig reads the file config and lets explicitly set flags win
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("url") {
		cfg.URL = opts.url
	}
	if flags.Changed("output") {
		cfg.Output = opts.output
	}
	if flags.Changed("engine") {
		cfg.Engine = opts.engine
	}
	if flags.Changed("chrome-mode") {
		cfg.ChromeMode = opts.chromeMode
	}
	if flags.Changed("storage-key") {
		cfg.StorageKey = opts.storageKey
	}
	if flags.Changed("grace") {
		cfg.Grace = opts.graceMs
	}
	if flags.Changed("idle-timeout") {
		cfg.IdleTimeout = opts.idleMs
	}
	if flags.Changed("nav-timeout") {
		cfg.NavTimeout = opts.navMs
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if flags.Changed("log-file") {
		cfg.LogFile = opts.logFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runCheck(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	launcher, err := browser.NewLauncher(cfg.Engine)
	if err != nil {
		return err
	}
	defer browser.StopDockerChrome()

	report, err := check.Run(ctx, launcher, cfg)
	if err != nil {
		return err
	}
	_, err = report.WriteTo(stdout)
	return err
}

func newFixtureCmd(ctx context.Context, root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixture",
		Short: "Serve a sample login page to check against",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := root.logLevel
			if level == "" {
				level = "INFO"
			}
			if err := logger.Init(level, root.logFile); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer logger.Sync()
			return serveFixture(ctx, fixture.NewServer(root.fixtureAddr))
		},
	}
	cmd.Flags().StringVar(&root.fixtureAddr, "addr", ":8080", "Listen address")
	cmd.Flags().StringVar(&root.logLevel, "log-level", "", "Log level: DEBUG, INFO, WARN or ERROR")
	cmd.Flags().StringVar(&root.logFile, "log-file", "", "Write JSON logs to this file instead of stderr")
	return cmd
}

// serveFixture runs srv until ctx is done, then shuts it down
func serveFixture(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		logger.S().Infof("Fixture listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "pagecheck %s\n", version)
		},
	}
}
