package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// ClockTime is a wall-clock hour and minute.
type ClockTime struct {
	Hour   int
	Minute int
}

func (t ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t ClockTime) valid() bool {
	return t.Hour >= 0 && t.Hour <= 23 && t.Minute >= 0 && t.Minute <= 59
}

type Config struct {
	TestMode        bool
	TargetUsers     []string
	MessageText     string
	TargetTime      ClockTime
	CookiesFilePath string
	LogFilePath     string
	UserAgent       string
	MessagesURL     string
	Headless        bool
}

// fileConfig is the on-disk shape of Config.
type fileConfig struct {
	TestMode         bool     `json:"TEST_MODE"`
	TargetUsers      []string `json:"TARGET_USERS"`
	MessageToSend    string   `json:"MESSAGE_TO_SEND"`
	TargetSendTimeHM [2]int   `json:"TARGET_SEND_TIME_HM"`
	CookiesFile      string   `json:"COOKIES_FILE"`
	LogFilename      string   `json:"LOG_FILENAME"`
	UserAgent        string   `json:"USER_AGENT"`
	MessagesURL      string   `json:"TIKTOK_MESSAGES_URL"`
	HeadlessMode     bool     `json:"HEADLESS_MODE"`
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36"

// DefaultConfig returns a fresh copy of the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		TestMode:        false,
		TargetUsers:     []string{"kullanici1", "kullanici2"},
		MessageText:     ".",
		TargetTime:      ClockTime{Hour: 0, Minute: 2},
		CookiesFilePath: "cookies.json",
		LogFilePath:     "tiktok_bot.txt",
		UserAgent:       defaultUserAgent,
		MessagesURL:     "https://www.tiktok.com/messages?lang=tr-TR",
		Headless:        true,
	}
}

type ConfigWriteError struct {
	Path string
	Err  error
}

func (e *ConfigWriteError) Error() string {
	return fmt.Sprintf("could not create configuration file '%s': %v", e.Path, e.Err)
}

func (e *ConfigWriteError) Unwrap() error { return e.Err }

type ConfigParseError struct {
	Path string
	Err  error
}

func (e *ConfigParseError) Error() string {
	return fmt.Sprintf("configuration file '%s' contains invalid JSON: %v", e.Path, e.Err)
}

func (e *ConfigParseError) Unwrap() error { return e.Err }

// LoadConfig reads the settings file at configPath. A missing file is created
// with the defaults, which are then returned as-is.
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if errors.Is(err, os.ErrNotExist) {
		Logf("warn", "Configuration file '%s' not found. Creating it with default values.", configPath)
		config := DefaultConfig()
		if err := writeConfig(configPath, config); err != nil {
			return nil, &ConfigWriteError{Path: configPath, Err: err}
		}
		Logf("info", "Default configuration file '%s' created successfully.", configPath)
		return config, nil
	}
	if err != nil {
		return nil, &ConfigParseError{Path: configPath, Err: err}
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigParseError{Path: configPath, Err: err}
	}
	if raw == nil {
		return nil, &ConfigParseError{Path: configPath, Err: errors.New("top-level value must be an object")}
	}

	config := mergeConfig(raw)
	Logf("info", "Configuration loaded successfully from existing '%s'.", configPath)
	return config, nil
}

// mergeConfig coerces each known key onto the defaults. Missing or
// unusable values keep their default.
func mergeConfig(raw map[string]any) *Config {
	config := DefaultConfig()

	if v, ok := lookup(raw, "TEST_MODE"); ok {
		if b, err := cast.ToBoolE(v); err == nil {
			config.TestMode = b
		} else {
			Logf("warn", "Invalid TEST_MODE %v, using default %v", v, config.TestMode)
		}
	}
	if v, ok := lookup(raw, "TARGET_USERS"); ok {
		if users, err := cast.ToStringSliceE(v); err == nil {
			config.TargetUsers = users
		} else {
			Logf("warn", "Invalid TARGET_USERS %v, using default %v", v, config.TargetUsers)
		}
	}
	config.MessageText = stringOr(raw, "MESSAGE_TO_SEND", config.MessageText)
	config.CookiesFilePath = stringOr(raw, "COOKIES_FILE", config.CookiesFilePath)
	config.LogFilePath = stringOr(raw, "LOG_FILENAME", config.LogFilePath)
	config.UserAgent = stringOr(raw, "USER_AGENT", config.UserAgent)
	config.MessagesURL = stringOr(raw, "TIKTOK_MESSAGES_URL", config.MessagesURL)
	if v, ok := lookup(raw, "HEADLESS_MODE"); ok {
		if b, err := cast.ToBoolE(v); err == nil {
			config.Headless = b
		} else {
			Logf("warn", "Invalid HEADLESS_MODE %v, using default %v", v, config.Headless)
		}
	}
	if v, ok := lookup(raw, "TARGET_SEND_TIME_HM"); ok {
		t, err := parseClockTime(v)
		if err != nil {
			Logf("error", "Invalid TARGET_SEND_TIME_HM format in config: %v. Error: %v. Using default %s.", v, err, config.TargetTime)
		} else {
			config.TargetTime = t
		}
	}

	if len(config.TargetUsers) == 0 {
		Log("warn", "TARGET_USERS list is empty in the configuration. The bot will run but won't send messages.")
	}
	return config
}

func lookup(raw map[string]any, key string) (any, bool) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func stringOr(raw map[string]any, key, fallback string) string {
	v, ok := lookup(raw, key)
	if !ok {
		return fallback
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		Logf("warn", "Invalid %s %v, using default '%s'", key, v, fallback)
		return fallback
	}
	return s
}

func parseClockTime(v any) (ClockTime, error) {
	parts, ok := v.([]any)
	if !ok || len(parts) != 2 {
		return ClockTime{}, errors.New("TARGET_SEND_TIME_HM must be a list of [hour, minute]")
	}
	hour, err := clockPart(parts[0])
	if err != nil {
		return ClockTime{}, fmt.Errorf("hour: %w", err)
	}
	minute, err := clockPart(parts[1])
	if err != nil {
		return ClockTime{}, fmt.Errorf("minute: %w", err)
	}
	t := ClockTime{Hour: hour, Minute: minute}
	if !t.valid() {
		return ClockTime{}, fmt.Errorf("%s is out of range", t)
	}
	return t, nil
}

// clockPart reads strings as decimal so "09" is 9, not invalid octal.
func clockPart(v any) (int, error) {
	if s, ok := v.(string); ok {
		return strconv.Atoi(strings.TrimSpace(s))
	}
	return cast.ToIntE(v)
}

func writeConfig(path string, config *Config) error {
	out := fileConfig{
		TestMode:         config.TestMode,
		TargetUsers:      config.TargetUsers,
		MessageToSend:    config.MessageText,
		TargetSendTimeHM: [2]int{config.TargetTime.Hour, config.TargetTime.Minute},
		CookiesFile:      config.CookiesFilePath,
		LogFilename:      config.LogFilePath,
		UserAgent:        config.UserAgent,
		MessagesURL:      config.MessagesURL,
		HeadlessMode:     config.Headless,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// ResolveBrowserPath picks the browser executable chromedp should launch.
// An empty result lets chromedp fall back to its own lookup.
func ResolveBrowserPath(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			if os.IsNotExist(err) {
				return "", fmt.Errorf("%w: Chrome executable not found at: %s", ErrBrowserNotFound, configured)
			}
			return "", fmt.Errorf("cannot access Chrome executable at %s: %w", configured, err)
		}
		return configured, nil
	}

	if path := findChromePath(); path != "" {
		return path, nil
	}

	if isARM() {
		return "", fmt.Errorf("%w: no Chrome/Chromium build found for %s/%s; install a native chromium package and set CHROME_PATH",
			ErrIncompatibleArch, runtime.GOOS, runtime.GOARCH)
	}
	return "", nil
}

func isARM() bool {
	return strings.HasPrefix(runtime.GOARCH, "arm")
}

// findChromePath attempts to locate a Chrome or Chromium executable on the system
func findChromePath() string {
	var paths []string
	switch runtime.GOOS {
	case "windows":
		paths = []string{
			"C:\\Program Files\\Google\\Chrome\\Application\\chrome.exe",
			"C:\\Program Files (x86)\\Google\\Chrome\\Application\\chrome.exe",
			filepath.Join(os.Getenv("LOCALAPPDATA"), "Google", "Chrome", "Application", "chrome.exe"),
		}
	case "darwin":
		paths = []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}
