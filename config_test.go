package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_CreatesDefaultsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), config)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n    \"TEST_MODE\": false")

	var written map[string]any
	require.NoError(t, json.Unmarshal(data, &written))
	assert.Equal(t, []any{float64(0), float64(2)}, written["TARGET_SEND_TIME_HM"])
	assert.Equal(t, "https://www.tiktok.com/messages?lang=tr-TR", written["TIKTOK_MESSAGES_URL"])
	assert.Len(t, written, 9)

	again, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config, again)
}

func TestLoadConfig_MissingKeysUseDefaults(t *testing.T) {
	path := writeFile(t, "config.json", `{"TARGET_USERS": ["alice"], "MESSAGE_TO_SEND": "hi"}`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	want := DefaultConfig()
	want.TargetUsers = []string{"alice"}
	want.MessageText = "hi"
	assert.Equal(t, want, config)
}

func TestLoadConfig_CoercesLooseValues(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"TEST_MODE": "true",
		"HEADLESS_MODE": "false",
		"TARGET_SEND_TIME_HM": ["9", 30.0]
	}`)

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, config.TestMode)
	assert.False(t, config.Headless)
	assert.Equal(t, ClockTime{Hour: 9, Minute: 30}, config.TargetTime)
}

func TestLoadConfig_ClockTimeStringsAreDecimal(t *testing.T) {
	config, err := LoadConfig(writeFile(t, "config.json", `{"TARGET_SEND_TIME_HM": ["09", "08"]}`))
	require.NoError(t, err)
	assert.Equal(t, ClockTime{Hour: 9, Minute: 8}, config.TargetTime)

	config, err = LoadConfig(writeFile(t, "config.json", `{"TARGET_SEND_TIME_HM": ["010", 5]}`))
	require.NoError(t, err)
	assert.Equal(t, ClockTime{Hour: 10, Minute: 5}, config.TargetTime)
}

func TestLoadConfig_BadValuesFallBack(t *testing.T) {
	defaults := DefaultConfig()

	tests := []struct {
		name string
		body string
	}{
		{"null values", `{"MESSAGE_TO_SEND": null, "TARGET_USERS": null, "TARGET_SEND_TIME_HM": null}`},
		{"hour out of range", `{"TARGET_SEND_TIME_HM": [24, 0]}`},
		{"minute out of range", `{"TARGET_SEND_TIME_HM": [9, 60]}`},
		{"wrong arity", `{"TARGET_SEND_TIME_HM": [9]}`},
		{"not a list", `{"TARGET_SEND_TIME_HM": "09:00"}`},
		{"non-numeric string", `{"TARGET_SEND_TIME_HM": ["nine", "00"]}`},
		{"uncoercible bool", `{"TEST_MODE": "maybe"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := LoadConfig(writeFile(t, "config.json", tt.body))
			require.NoError(t, err)
			assert.Equal(t, defaults, config)
		})
	}
}

func TestLoadConfig_EmptyTargetUsers(t *testing.T) {
	config, err := LoadConfig(writeFile(t, "config.json", `{"TARGET_USERS": []}`))
	require.NoError(t, err)
	assert.Empty(t, config.TargetUsers)
}

func TestLoadConfig_ParseErrors(t *testing.T) {
	for _, body := range []string{`{"TEST_MODE": tru`, `null`, `[1, 2]`} {
		_, err := LoadConfig(writeFile(t, "config.json", body))

		var parseErr *ConfigParseError
		require.True(t, errors.As(err, &parseErr), "body %q", body)
	}
}

func TestLoadConfig_WriteError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no-such-dir", "config.json")

	_, err := LoadConfig(path)

	var writeErr *ConfigWriteError
	require.True(t, errors.As(err, &writeErr))
	assert.Equal(t, path, writeErr.Path)
}

func TestResolveBrowserPath_Configured(t *testing.T) {
	path := writeFile(t, "chrome", "")

	got, err := ResolveBrowserPath(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	_, err = ResolveBrowserPath(filepath.Join(t.TempDir(), "missing-chrome"))
	assert.ErrorIs(t, err, ErrBrowserNotFound)
}

func TestClockTimeString(t *testing.T) {
	assert.Equal(t, "09:05", ClockTime{Hour: 9, Minute: 5}.String())
}
