package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"ardatatransfer-go/internal/ardatatransfer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	config := DefaultConfig()
	require.NoError(t, config.Validate())
	assert.Equal(t, ardatatransfer.DownloaderResumeTrue, config.Resume)
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
max_concurrent_downloads = 5
max_speed = 2048
retry_delay = "250ms"
timeout = "1m"
resume = "RESUME_FALSE"
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5, config.MaxConcurrentDownloads)
	assert.Equal(t, int64(2048), config.MaxSpeed)
	assert.Equal(t, 250*time.Millisecond, config.RetryDelay)
	assert.Equal(t, time.Minute, config.Timeout)
	assert.Equal(t, ardatatransfer.DownloaderResumeFalse, config.Resume)

	// untouched keys keep their defaults
	assert.Equal(t, 3, config.RetryAttempts)
	assert.Equal(t, DefaultUserAgent, config.UserAgent)
}

func TestLoadConfigResumeForms(t *testing.T) {
	tests := []struct {
		value string
		want  ardatatransfer.DownloaderResume
	}{
		{`"RESUME_TRUE"`, ardatatransfer.DownloaderResumeTrue},
		{`"false"`, ardatatransfer.DownloaderResumeFalse},
		{`"1"`, ardatatransfer.DownloaderResumeTrue},
	}

	for _, tc := range tests {
		config, err := LoadConfig(writeConfig(t, "resume = "+tc.value+"\n"))
		require.NoError(t, err, tc.value)
		assert.Equal(t, tc.want, config.Resume, tc.value)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		target  error
	}{
		{name: "bad resume text", content: `resume = "perhaps"`},
		{name: "unknown resume", content: `resume = "UNKNOWN"`, target: ardatatransfer.ErrInvalidResume},
		{name: "out of table resume", content: `resume = "9"`, target: ardatatransfer.ErrInvalidResume},
		{name: "too many downloads", content: `max_concurrent_downloads = 50`},
		{name: "short timeout", content: `timeout = "1s"`},
		{name: "unknown key", content: `chunk_size = 4`},
		{name: "syntax", content: `resume = `},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.content))
			require.Error(t, err)
			if tc.target != nil {
				assert.ErrorIs(t, err, tc.target)
			}
		})
	}
}

func TestValidateLeavesConfigUnchanged(t *testing.T) {
	config := DefaultConfig()
	config.UserAgent = "  "
	before := *config

	assert.Error(t, config.Validate())
	assert.Equal(t, before, *config)

	config.ApplyDefaults()
	assert.Equal(t, DefaultUserAgent, config.UserAgent)
	require.NoError(t, config.Validate())
}

func TestLoadConfigFillsBlankUserAgent(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, `user_agent = ""`))
	require.NoError(t, err)
	assert.Equal(t, DefaultUserAgent, config.UserAgent)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	config := DefaultConfig()
	config.Resume = ardatatransfer.DownloaderResumeFalse
	config.Timeout = 45 * time.Second
	config.MaxSpeed = 4096

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, SaveConfig(path, config))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `resume = "RESUME_FALSE"`)

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config, loaded)
}
