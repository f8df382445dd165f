package ui

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"ardatatransfer-go/internal/ardatatransfer"
	"ardatatransfer-go/internal/core"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/test"
	"fyne.io/fyne/v2/widget"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeManager struct {
	config core.DownloadConfig
	added  []*core.Download
}

func (f *fakeManager) Config() core.DownloadConfig {
	return f.config
}

func (f *fakeManager) SetConfig(config core.DownloadConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	f.config = config
	return nil
}

func (f *fakeManager) AddDownload(_ context.Context, rawURL, dir string, resume ardatatransfer.DownloaderResume) (*core.Download, error) {
	d := &core.Download{ID: int64(len(f.added) + 1), URL: rawURL, Path: dir, Filename: filepath.Base(rawURL), Resume: resume}
	f.added = append(f.added, d)
	return d, nil
}

func TestSettingsWindowResumeFlag(t *testing.T) {
	app := test.NewApp()
	defer app.Quit()

	manager := &fakeManager{config: *core.DefaultConfig()}
	sw := NewSettingsWindow(app, manager, "")
	assert.True(t, sw.resumeCheck.Checked)

	test.Tap(sw.resumeCheck)
	require.NoError(t, sw.apply())
	assert.Equal(t, ardatatransfer.DownloaderResumeFalse, manager.config.Resume)

	test.Tap(sw.resumeCheck)
	require.NoError(t, sw.apply())
	assert.Equal(t, ardatatransfer.DownloaderResumeTrue, manager.config.Resume)
}

func TestSettingsWindowAppliesForm(t *testing.T) {
	app := test.NewApp()
	defer app.Quit()

	manager := &fakeManager{config: *core.DefaultConfig()}
	sw := NewSettingsWindow(app, manager, "")

	sw.maxDownloadsEntry.SetText("7")
	sw.timeoutEntry.SetText("60")
	sw.userAgentEntry.SetText("")
	require.NoError(t, sw.apply())

	assert.Equal(t, 7, manager.config.MaxConcurrentDownloads)
	assert.Equal(t, time.Minute, manager.config.Timeout)
	assert.Equal(t, core.DefaultUserAgent, manager.config.UserAgent)
}

func TestSettingsWindowRejectsInvalidValues(t *testing.T) {
	app := test.NewApp()
	defer app.Quit()

	manager := &fakeManager{config: *core.DefaultConfig()}
	sw := NewSettingsWindow(app, manager, "")

	sw.maxDownloadsEntry.SetText("0")
	assert.Error(t, sw.apply())

	sw.maxDownloadsEntry.SetText("abc")
	assert.Error(t, sw.apply())

	assert.Equal(t, 3, manager.config.MaxConcurrentDownloads)
}

func TestSettingsWindowSavesConfigFile(t *testing.T) {
	app := test.NewApp()
	defer app.Quit()

	path := filepath.Join(t.TempDir(), "config.toml")
	manager := &fakeManager{config: *core.DefaultConfig()}
	sw := NewSettingsWindow(app, manager, path)

	test.Tap(sw.resumeCheck)
	require.NoError(t, sw.apply())

	loaded, err := core.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ardatatransfer.DownloaderResumeFalse, loaded.Resume)
}

func TestAddDownloadDialogResumeFlag(t *testing.T) {
	app := test.NewApp()
	defer app.Quit()

	config := *core.DefaultConfig()
	config.Resume = ardatatransfer.DownloaderResumeFalse
	manager := &fakeManager{config: config}

	add := NewAddDownloadDialog(app.NewWindow("test"), manager, nil)
	assert.False(t, add.resumeCheck.Checked, "seeded from config")

	dir := t.TempDir()
	add.urlEntry.SetText("http://example.com/flight.pud")
	add.pathEntry.SetText(dir)
	test.Tap(add.resumeCheck)

	d, err := add.submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ardatatransfer.DownloaderResumeTrue, d.Resume)
	assert.Equal(t, dir, d.Path)
}

func TestAddDownloadDialogValidatesURL(t *testing.T) {
	app := test.NewApp()
	defer app.Quit()

	manager := &fakeManager{config: *core.DefaultConfig()}
	add := NewAddDownloadDialog(app.NewWindow("test"), manager, nil)

	_, err := add.submit(context.Background())
	assert.Error(t, err)

	add.urlEntry.SetText("ftp://example.com/file")
	_, err = add.submit(context.Background())
	assert.Error(t, err)

	assert.Empty(t, manager.added)
}

func TestUpdateDownloadItem(t *testing.T) {
	app := test.NewApp()
	defer app.Quit()

	mw := &MainWindow{}
	item := mw.createDownloadItem()
	updateDownloadItem(item, &core.Download{
		Filename:   "video.mp4",
		URL:        "http://example.com/video.mp4",
		Size:       2048,
		Downloaded: 1024,
		Progress:   50,
		Status:     core.StatusPaused,
		Resume:     ardatatransfer.DownloaderResumeTrue,
	})

	box := item.(*fyne.Container)
	assert.Equal(t, "video.mp4", box.Objects[0].(*widget.Label).Text)
	assert.Equal(t, 0.5, box.Objects[2].(*widget.ProgressBar).Value)

	info := box.Objects[3].(*fyne.Container)
	assert.Equal(t, "1.0 KB / 2.0 KB", info.Objects[0].(*widget.Label).Text)
	assert.Equal(t, "Paused", info.Objects[2].(*widget.Label).Text)
	assert.Equal(t, "RESUME_TRUE", info.Objects[3].(*widget.Label).Text)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.0 KB", formatBytes(1024))
	assert.Equal(t, "1.5 MB", formatBytes(1536*1024))
}
