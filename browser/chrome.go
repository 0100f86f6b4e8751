package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"pagecheck/logger"
)

const (
	dockerContainerName = "pagecheck-chrome"
	dockerImage         = "browserless/chrome"
	dockerDevtoolsURL   = "http://localhost:9222"
	dockerHostAlias     = "host.docker.internal"
)

// dockerStarted is set once this process started the Chrome container
var dockerStarted atomic.Bool

// Paths probed per OS before falling back to PATH lookup
var chromeCandidates = map[string][]string{
	"darwin": {
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		"/Applications/Google Chrome Canary.app/Contents/MacOS/Google Chrome Canary",
		"/Applications/Chromium.app/Contents/MacOS/Chromium",
	},
	"windows": {
		filepath.Join(os.Getenv("ProgramFiles"), "Google/Chrome/Application/chrome.exe"),
		filepath.Join(os.Getenv("ProgramFiles(x86)"), "Google/Chrome/Application/chrome.exe"),
		filepath.Join(os.Getenv("LocalAppData"), "Google/Chrome/Application/chrome.exe"),
	},
	"linux": {
		"/usr/bin/google-chrome",
		"/usr/bin/chromium",
		"/usr/bin/chromium-browser",
		"/snap/bin/chromium",
		"/headless-shell/headless-shell",
	},
}

// FindChromeExecutable locates a Chrome or Chromium binary. CHROME_PATH wins
// when it points at an existing file.
func FindChromeExecutable() (string, error) {
	if envPath := os.Getenv("CHROME_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	for _, path := range chromeCandidates[runtime.GOOS] {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	for _, name := range []string{"google-chrome", "chromium", "chromium-browser"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("could not find Chrome executable")
}

// startDockerChrome starts a headless Chrome container unless one is running
// and returns its DevTools address once it answers.
func startDockerChrome(ctx context.Context) (string, error) {
	if _, err := exec.LookPath("docker"); err != nil {
		return "", fmt.Errorf("docker not installed: %w", err)
	}

	output, err := exec.CommandContext(ctx, "docker", "ps", "-q", "-f", "name="+dockerContainerName, "-f", "status=running").Output()
	if err != nil {
		return "", fmt.Errorf("failed to check for running chrome container: %w", err)
	}

	if len(output) > 0 {
		logger.S().Infof("Using existing Chrome container %s", dockerContainerName)
	} else {
		logger.S().Infof("Starting Chrome container %s...", dockerContainerName)
		cmd := exec.CommandContext(ctx, "docker", "run", "-d", "--rm",
			"--name", dockerContainerName,
			"--add-host", dockerHostAlias+":host-gateway",
			"-p", "9222:3000", dockerImage)
		if output, err := cmd.CombinedOutput(); err != nil {
			return "", fmt.Errorf("failed to start chrome container: %w, output: %s", err, string(output))
		}
		dockerStarted.Store(true)
	}

	if err := waitDevtools(ctx, dockerDevtoolsURL, 15*time.Second); err != nil {
		return "", fmt.Errorf("chrome container started but not responding: %w", err)
	}
	logger.S().Infof("Chrome container is ready at %s", dockerDevtoolsURL)
	return dockerDevtoolsURL, nil
}

// waitDevtools polls /json/version until the endpoint reports a debugger url
func waitDevtools(ctx context.Context, base string, maxWait time.Duration) error {
	client := &http.Client{Timeout: 2 * time.Second}

	probe := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/json/version", nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var data struct {
			WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
			return err
		}
		if data.WebSocketDebuggerURL == "" {
			return fmt.Errorf("empty webSocketDebuggerUrl")
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = maxWait

	return backoff.RetryNotify(probe, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		logger.S().Debugf("DevTools at %s not ready (%v), retrying in %v", base, err, next)
	})
}

// StopDockerChrome stops the Chrome container if this process started it
func StopDockerChrome() {
	if !dockerStarted.Load() {
		return
	}

	logger.S().Infof("Stopping Chrome Docker container...")
	if err := exec.Command("docker", "stop", dockerContainerName).Run(); err != nil {
		logger.S().Warnf("Failed to stop Chrome container: %v", err)
		return
	}
	dockerStarted.Store(false)
	logger.S().Infof("Chrome Docker container stopped")
}

// rewriteForDocker points loopback targets at the Docker host, since a
// containerised browser cannot reach the host's localhost.
func rewriteForDocker(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	host := u.Hostname()
	if host != "localhost" {
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			return rawURL
		}
	}

	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(dockerHostAlias, port)
	} else {
		u.Host = dockerHostAlias
	}
	return u.String()
}
