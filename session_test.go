package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyLaunchError(t *testing.T) {
	err := classifyLaunchError(errors.New("fork/exec /usr/bin/chromium: exec format error"))
	assert.ErrorIs(t, err, ErrIncompatibleArch)

	err = classifyLaunchError(errors.New(`exec: "google-chrome": executable file not found in $PATH`))
	assert.ErrorIs(t, err, ErrBrowserNotFound)

	cause := errors.New("websocket url timeout reached")
	err = classifyLaunchError(cause)
	assert.ErrorIs(t, err, cause)
	assert.False(t, errors.Is(err, ErrIncompatibleArch))
}

func TestProfileDirLifecycle(t *testing.T) {
	dir, err := newProfileDir()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(dir), profilePrefix))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "Local State"), []byte("{}"), 0644))
	require.NoError(t, removeProfileDir(dir))
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func profileDirs(t *testing.T) map[string]bool {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(os.TempDir(), profilePrefix+"*"))
	require.NoError(t, err)
	dirs := make(map[string]bool, len(matches))
	for _, m := range matches {
		dirs[m] = true
	}
	return dirs
}

// fakeBrowser writes a shell script that records its arguments and exits
// without ever serving DevTools.
func fakeBrowser(t *testing.T) (execPath, argsPath string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	dir := t.TempDir()
	argsPath = filepath.Join(dir, "args.txt")
	execPath = filepath.Join(dir, "chrome")
	script := "#!/bin/sh\nprintf '%s\\n' \"$@\" > '" + argsPath + "'\nexit 1\n"
	require.NoError(t, os.WriteFile(execPath, []byte(script), 0755))
	return execPath, argsPath
}

func TestWithSession_LaunchFailureCleansUp(t *testing.T) {
	execPath, argsPath := fakeBrowser(t)
	before := profileDirs(t)

	called := false
	launcher := NewChromeLauncher(DefaultConfig(), execPath)
	err := launcher.WithSession(context.Background(), func(context.Context, Page) error {
		called = true
		return nil
	})

	require.Error(t, err)
	assert.False(t, called)

	for dir := range profileDirs(t) {
		assert.True(t, before[dir], "profile directory left behind: %s", dir)
	}

	data, err := os.ReadFile(argsPath)
	require.NoError(t, err)
	args := strings.Split(strings.TrimSpace(string(data)), "\n")

	var userDataDir string
	for _, arg := range args {
		if v, ok := strings.CutPrefix(arg, "--user-data-dir="); ok {
			userDataDir = v
		}
	}
	require.NotEmpty(t, userDataDir)
	assert.True(t, strings.HasPrefix(filepath.Base(userDataDir), profilePrefix))
	_, err = os.Stat(userDataDir)
	assert.True(t, os.IsNotExist(err))

	assert.NotContains(t, args, "--enable-automation")
	assert.Contains(t, args, "--disable-blink-features=AutomationControlled")
	assert.Contains(t, args, "--headless")
	for _, arg := range args {
		assert.False(t, strings.HasPrefix(arg, "--excludeSwitches"), arg)
	}
}

func TestCheckNetworkConnectivity(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()
	assert.NoError(t, checkNetworkConnectivity(context.Background(), ok.URL+"/"))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	assert.Error(t, checkNetworkConnectivity(context.Background(), down.URL+"/"))
}
