package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"ardatatransfer-go/internal/ardatatransfer"
	"ardatatransfer-go/internal/core"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	log "github.com/sirupsen/logrus"
)

// Configurer is the part of the download manager the settings window edits.
type Configurer interface {
	Config() core.DownloadConfig
	SetConfig(core.DownloadConfig) error
}

type SettingsWindow struct {
	app        fyne.App
	window     fyne.Window
	configurer Configurer
	configPath string

	// Settings widgets
	maxDownloadsEntry  *widget.Entry
	maxSpeedEntry      *widget.Entry
	retryAttemptsEntry *widget.Entry
	userAgentEntry     *widget.Entry
	timeoutEntry       *widget.Entry
	resumeCheck        *widget.Check
}

// NewSettingsWindow builds the settings window. When configPath is not empty,
// saved settings are also written there.
func NewSettingsWindow(app fyne.App, configurer Configurer, configPath string) *SettingsWindow {
	window := app.NewWindow("Settings")
	window.Resize(fyne.NewSize(500, 400))

	settings := &SettingsWindow{
		app:        app,
		window:     window,
		configurer: configurer,
		configPath: configPath,
	}

	settings.setupUI()
	settings.loadSettings(configurer.Config())

	return settings
}

func (sw *SettingsWindow) setupUI() {
	sw.maxDownloadsEntry = widget.NewEntry()
	sw.maxDownloadsEntry.SetPlaceHolder("3")

	sw.maxSpeedEntry = widget.NewEntry()
	sw.maxSpeedEntry.SetPlaceHolder("0 (unlimited)")

	sw.retryAttemptsEntry = widget.NewEntry()
	sw.retryAttemptsEntry.SetPlaceHolder("3")

	sw.userAgentEntry = widget.NewEntry()
	sw.userAgentEntry.SetPlaceHolder(core.DefaultUserAgent)

	sw.timeoutEntry = widget.NewEntry()
	sw.timeoutEntry.SetPlaceHolder("30")

	sw.resumeCheck = widget.NewCheck("Resume partial files", nil)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Max Concurrent Downloads:", Widget: sw.maxDownloadsEntry},
			{Text: "Max Speed (bytes/sec, 0=unlimited):", Widget: sw.maxSpeedEntry},
			{Text: "Retry Attempts:", Widget: sw.retryAttemptsEntry},
			{Text: "User Agent:", Widget: sw.userAgentEntry},
			{Text: "Connect/Idle Timeout (seconds):", Widget: sw.timeoutEntry},
			{Text: "New Downloads:", Widget: sw.resumeCheck},
		},
		OnSubmit:   sw.saveSettings,
		OnCancel:   func() { sw.window.Hide() },
		SubmitText: "Save",
		CancelText: "Cancel",
	}

	resetButton := widget.NewButton("Reset to Defaults", sw.resetToDefaults)
	resetButton.Importance = widget.MediumImportance

	content := container.NewVBox(
		widget.NewLabel("Download Manager Settings"),
		widget.NewSeparator(),
		form,
		widget.NewSeparator(),
		container.NewHBox(resetButton),
	)

	sw.window.SetContent(container.NewScroll(content))
}

func (sw *SettingsWindow) loadSettings(config core.DownloadConfig) {
	sw.maxDownloadsEntry.SetText(strconv.Itoa(config.MaxConcurrentDownloads))
	sw.maxSpeedEntry.SetText(strconv.FormatInt(config.MaxSpeed, 10))
	sw.retryAttemptsEntry.SetText(strconv.Itoa(config.RetryAttempts))
	sw.userAgentEntry.SetText(config.UserAgent)
	sw.timeoutEntry.SetText(strconv.FormatInt(int64(config.Timeout.Seconds()), 10))
	sw.resumeCheck.SetChecked(config.Resume.Bool())
}

// readForm returns the current configuration with the form values applied.
func (sw *SettingsWindow) readForm() (core.DownloadConfig, error) {
	config := sw.configurer.Config()

	maxDownloads, err := strconv.Atoi(strings.TrimSpace(sw.maxDownloadsEntry.Text))
	if err != nil {
		return config, fmt.Errorf("max downloads must be a number")
	}

	maxSpeed, err := strconv.ParseInt(strings.TrimSpace(sw.maxSpeedEntry.Text), 10, 64)
	if err != nil {
		return config, fmt.Errorf("max speed must be a number")
	}

	retryAttempts, err := strconv.Atoi(strings.TrimSpace(sw.retryAttemptsEntry.Text))
	if err != nil {
		return config, fmt.Errorf("retry attempts must be a number")
	}

	timeout, err := strconv.ParseInt(strings.TrimSpace(sw.timeoutEntry.Text), 10, 64)
	if err != nil {
		return config, fmt.Errorf("timeout must be a number of seconds")
	}

	config.MaxConcurrentDownloads = maxDownloads
	config.MaxSpeed = maxSpeed
	config.RetryAttempts = retryAttempts
	config.Timeout = time.Duration(timeout) * time.Second
	config.UserAgent = strings.TrimSpace(sw.userAgentEntry.Text)
	config.Resume = ardatatransfer.DownloaderResumeFromBool(sw.resumeCheck.Checked)
	config.ApplyDefaults()

	return config, config.Validate()
}

func (sw *SettingsWindow) apply() error {
	config, err := sw.readForm()
	if err != nil {
		return err
	}
	if err := sw.configurer.SetConfig(config); err != nil {
		return err
	}
	if sw.configPath != "" {
		if err := core.SaveConfig(sw.configPath, &config); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
		log.WithField("path", sw.configPath).Info("settings saved")
	}
	return nil
}

func (sw *SettingsWindow) saveSettings() {
	if err := sw.apply(); err != nil {
		dialog.ShowError(err, sw.window)
		return
	}

	dialog.ShowInformation("Settings Saved", "Settings have been saved successfully!", sw.window)
	sw.window.Hide()
}

func (sw *SettingsWindow) resetToDefaults() {
	dialog.ShowConfirm("Reset Settings",
		"Are you sure you want to reset all settings to default values?",
		func(confirmed bool) {
			if confirmed {
				sw.loadSettings(*core.DefaultConfig())
			}
		}, sw.window)
}

func (sw *SettingsWindow) Show() {
	sw.window.Show()
}
