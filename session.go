package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

var (
	ErrBrowserNotFound  = errors.New("browser executable not found")
	ErrIncompatibleArch = errors.New("no browser build compatible with this CPU architecture")
)

// profilePrefix marks profile directories, and therefore browser processes,
// that belong to this tool.
const profilePrefix = "tiktok-automessage-profile-"

// SessionOpener runs fn against a freshly launched browser and always tears
// the browser down afterwards.
type SessionOpener interface {
	WithSession(ctx context.Context, fn func(ctx context.Context, page Page) error) error
}

type ChromeLauncher struct {
	config   *Config
	execPath string
}

func NewChromeLauncher(config *Config, execPath string) *ChromeLauncher {
	return &ChromeLauncher{config: config, execPath: execPath}
}

func (l *ChromeLauncher) WithSession(ctx context.Context, fn func(ctx context.Context, page Page) error) error {
	Log("info", "Initializing browser automation...")
	terminateLingeringProcesses()

	profileDir, err := newProfileDir()
	if err != nil {
		return fmt.Errorf("failed to create temporary user data directory: %w", err)
	}
	Logf("info", "Using temporary user data directory: %s", profileDir)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, l.allocatorOptions(profileDir)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer l.teardown(browserCtx, browserCancel, allocCancel, profileDir)

	Log("debug", "Starting Chrome browser process...")
	if err := chromedp.Run(browserCtx); err != nil {
		return classifyLaunchError(err)
	}
	Log("info", "Browser opened and managed by session.")

	return fn(browserCtx, &chromePage{})
}

func (l *ChromeLauncher) allocatorOptions(profileDir string) []chromedp.ExecAllocatorOption {
	if l.config.Headless {
		Log("info", "Running in HEADLESS mode.")
	} else {
		Log("info", "Running in standard (non-headless) mode.")
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.config.Headless),
		chromedp.UserDataDir(profileDir),
		chromedp.UserAgent(l.config.UserAgent),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("log-level", "3"),
		chromedp.WindowSize(1280, 900),
	)
	if l.execPath != "" {
		opts = append(opts, chromedp.ExecPath(l.execPath))
	}
	return opts
}

func (l *ChromeLauncher) teardown(browserCtx context.Context, browserCancel, allocCancel context.CancelFunc, profileDir string) {
	Log("info", "Entering cleanup phase...")

	if err := chromedp.Cancel(browserCtx); err != nil && !errors.Is(err, context.Canceled) {
		Logf("warn", "Error during browser shutdown (might be already closed): %v", err)
	}
	browserCancel()
	allocCancel()

	terminateLingeringProcesses()

	Logf("info", "Cleaning up temporary user data directory: %s", profileDir)
	if err := removeProfileDir(profileDir); err != nil {
		Logf("critical", "Failed to remove temp directory %s. This may cause issues on next run. Error: %v", profileDir, err)
		return
	}
	Logf("info", "Removed temporary user data directory: %s", profileDir)
}

func classifyLaunchError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "exec format error"):
		return fmt.Errorf("%w (%s/%s): %v", ErrIncompatibleArch, runtime.GOOS, runtime.GOARCH, err)
	case strings.Contains(msg, "executable file not found"), strings.Contains(msg, "no such file or directory"):
		return fmt.Errorf("%w: %v", ErrBrowserNotFound, err)
	}
	return fmt.Errorf("browser failed to start: %w", err)
}

// newProfileDir creates an empty, writable profile directory for one run.
func newProfileDir() (string, error) {
	dir, err := os.MkdirTemp("", profilePrefix+"*")
	if err != nil {
		return "", err
	}

	testFile := filepath.Join(dir, ".write_test")
	if err := os.WriteFile(testFile, []byte("test"), 0666); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("directory is not writable: %s: %w", dir, err)
	}
	os.Remove(testFile)
	return dir, nil
}

// removeProfileDir retries briefly because the browser may still hold
// files open for a moment after exit.
func removeProfileDir(dir string) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Second)
		}
		if err = os.RemoveAll(dir); err == nil {
			return nil
		}
	}
	return err
}

// terminateLingeringProcesses kills browser processes left behind by earlier
// runs. Only processes started with one of our profile directories match.
func terminateLingeringProcesses() {
	Log("info", "Searching for and terminating any lingering browser processes...")

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		script := fmt.Sprintf(
			"Get-CimInstance Win32_Process | Where-Object { $_.CommandLine -like '*%s*' } | ForEach-Object { Stop-Process -Id $_.ProcessId -Force }",
			profilePrefix)
		cmd = exec.Command("powershell", "-NoProfile", "-Command", script)
	} else {
		cmd = exec.Command("pkill", "-f", profilePrefix)
	}

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			Log("debug", "No lingering browser processes found.")
			return
		}
		Logf("debug", "Process termination command failed: %v", err)
		return
	}
	Log("info", "Process termination commands executed.")
}

// checkNetworkConnectivity verifies we can reach the site before launching
// a browser. Failure is only reported.
func checkNetworkConnectivity(ctx context.Context, siteRoot string) error {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, siteRoot, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("cannot reach %s: %w", siteRoot, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%s returned server error: %d", siteRoot, resp.StatusCode)
	}
	return nil
}
