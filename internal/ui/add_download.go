package ui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ardatatransfer-go/internal/ardatatransfer"
	"ardatatransfer-go/internal/core"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
)

// DownloadAdder registers new downloads.
type DownloadAdder interface {
	Config() core.DownloadConfig
	AddDownload(ctx context.Context, rawURL, dir string, resume ardatatransfer.DownloaderResume) (*core.Download, error)
}

type AddDownloadDialog struct {
	parent      fyne.Window
	dialog      dialog.Dialog
	urlEntry    *widget.Entry
	pathEntry   *widget.Entry
	resumeCheck *widget.Check
	adder       DownloadAdder
	callback    func(*core.Download)
}

func NewAddDownloadDialog(parent fyne.Window, adder DownloadAdder, callback func(*core.Download)) *AddDownloadDialog {
	add := &AddDownloadDialog{
		parent:   parent,
		adder:    adder,
		callback: callback,
	}

	add.createDialog()
	return add
}

func (add *AddDownloadDialog) createDialog() {
	add.urlEntry = widget.NewEntry()
	add.urlEntry.SetPlaceHolder("Enter download URL...")

	add.pathEntry = widget.NewEntry()
	add.pathEntry.SetText(getDefaultDownloadPath())

	browseButton := widget.NewButton("Browse", func() {
		dialog.ShowFolderOpen(func(folder fyne.ListableURI, err error) {
			if err == nil && folder != nil {
				add.pathEntry.SetText(folder.Path())
			}
		}, add.parent)
	})

	pathContainer := container.NewBorder(nil, nil, nil, browseButton, add.pathEntry)

	add.resumeCheck = widget.NewCheck("Resume partial file", nil)
	add.resumeCheck.SetChecked(add.adder.Config().Resume.Bool())

	addButton := widget.NewButton("Add Download", add.addDownload)
	addButton.Importance = widget.HighImportance

	cancelButton := widget.NewButton("Cancel", func() {
		add.dialog.Hide()
	})

	buttons := container.NewHBox(cancelButton, addButton)

	form := container.NewVBox(
		widget.NewLabel("Download URL:"),
		add.urlEntry,
		widget.NewSeparator(),
		widget.NewLabel("Download Path:"),
		pathContainer,
		widget.NewSeparator(),
		add.resumeCheck,
		widget.NewSeparator(),
		buttons,
	)

	add.dialog = dialog.NewCustomWithoutButtons("Add New Download", form, add.parent)
	add.dialog.Resize(fyne.NewSize(500, 300))
}

func (add *AddDownloadDialog) resumeFlag() ardatatransfer.DownloaderResume {
	return ardatatransfer.DownloaderResumeFromBool(add.resumeCheck.Checked)
}

// submit validates the form and registers the download.
func (add *AddDownloadDialog) submit(ctx context.Context) (*core.Download, error) {
	url := strings.TrimSpace(add.urlEntry.Text)
	path := strings.TrimSpace(add.pathEntry.Text)

	if url == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("invalid URL format")
	}

	if path == "" {
		path = getDefaultDownloadPath()
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create download directory: %w", err)
	}

	return add.adder.AddDownload(ctx, url, path, add.resumeFlag())
}

func (add *AddDownloadDialog) addDownload() {
	download, err := add.submit(context.Background())
	if err != nil {
		dialog.ShowError(err, add.parent)
		return
	}

	add.dialog.Hide()

	if add.callback != nil {
		add.callback(download)
	}

	dialog.ShowInformation("Success",
		fmt.Sprintf("Download added successfully!\nFile: %s\nResume: %s", download.Filename, download.Resume.Name()),
		add.parent)
}

func (add *AddDownloadDialog) Show() {
	add.dialog.Show()
}

func getDefaultDownloadPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, "Downloads")
}
