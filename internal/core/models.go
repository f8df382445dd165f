package core

import (
	"fmt"
	"os"
	"strings"
	"time"

	"ardatatransfer-go/internal/ardatatransfer"
	"ardatatransfer-go/internal/storage"

	"github.com/BurntSushi/toml"
)

// Use storage types
type Download = storage.Download
type DownloadStatus = storage.DownloadStatus

// Re-export constants
const (
	StatusPending     = storage.StatusPending
	StatusDownloading = storage.StatusDownloading
	StatusPaused      = storage.StatusPaused
	StatusCompleted   = storage.StatusCompleted
	StatusFailed      = storage.StatusFailed
	StatusCancelled   = storage.StatusCancelled
)

const DefaultUserAgent = "ardatatransfer-go/1.0"

type DownloadConfig struct {
	MaxConcurrentDownloads int                             `toml:"max_concurrent_downloads"`
	MaxSpeed               int64                           `toml:"max_speed"` // bytes per second, 0 for unlimited
	RetryAttempts          int                             `toml:"retry_attempts"`
	RetryDelay             time.Duration                   `toml:"retry_delay"`
	UserAgent              string                          `toml:"user_agent"`
	Timeout                time.Duration                   `toml:"timeout"`
	Resume                 ardatatransfer.DownloaderResume `toml:"resume"` // default for new downloads
}

func DefaultConfig() *DownloadConfig {
	return &DownloadConfig{
		MaxConcurrentDownloads: 3,
		MaxSpeed:               0, // unlimited
		RetryAttempts:          3,
		RetryDelay:             time.Second,
		UserAgent:              DefaultUserAgent,
		Timeout:                30 * time.Second,
		Resume:                 ardatatransfer.DownloaderResumeTrue,
	}
}

// LoadConfig reads a TOML file on top of DefaultConfig. Keys missing from the
// file keep their default value.
func LoadConfig(path string) (*DownloadConfig, error) {
	config := DefaultConfig()

	md, err := toml.DecodeFile(path, config)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// ApplyDefaults fills settings left blank.
func (c *DownloadConfig) ApplyDefaults() {
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = DefaultUserAgent
	}
}

// Validate checks the bounds also enforced by the settings window.
func (c *DownloadConfig) Validate() error {
	if c.MaxConcurrentDownloads < 1 || c.MaxConcurrentDownloads > 20 {
		return fmt.Errorf("max concurrent downloads must be between 1 and 20, got %d", c.MaxConcurrentDownloads)
	}
	if c.MaxSpeed < 0 {
		return fmt.Errorf("max speed must be a positive number or 0, got %d", c.MaxSpeed)
	}
	if c.RetryAttempts < 0 || c.RetryAttempts > 10 {
		return fmt.Errorf("retry attempts must be between 0 and 10, got %d", c.RetryAttempts)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay must not be negative, got %s", c.RetryDelay)
	}
	if c.Timeout < 5*time.Second || c.Timeout > 300*time.Second {
		return fmt.Errorf("timeout must be between 5s and 300s, got %s", c.Timeout)
	}
	if !c.Resume.IsKnown() {
		return fmt.Errorf("resume: %w: %s", ardatatransfer.ErrInvalidResume, c.Resume.Name())
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		return fmt.Errorf("user agent must not be empty")
	}
	return nil
}

// SaveConfig writes config to path as TOML.
func SaveConfig(path string, config *DownloadConfig) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if err := toml.NewEncoder(file).Encode(config); err != nil {
		file.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return file.Close()
}
