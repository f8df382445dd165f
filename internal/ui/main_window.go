package ui

import (
	"fmt"
	"sync"

	"ardatatransfer-go/internal/core"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

type MainWindow struct {
	app             fyne.App
	window          fyne.Window
	downloadManager *core.DownloadManager
	configPath      string
	downloadsList   *widget.List
	statusBar       *widget.Label

	mutex     sync.Mutex
	downloads []*core.Download
	selected  widget.ListItemID
}

func NewMainWindow(app fyne.App, dm *core.DownloadManager, configPath string) *MainWindow {
	window := app.NewWindow("ARDataTransfer Downloader")
	window.Resize(fyne.NewSize(800, 600))
	window.SetMaster()

	mw := &MainWindow{
		app:             app,
		window:          window,
		downloadManager: dm,
		configPath:      configPath,
		statusBar:       widget.NewLabel("Ready"),
		selected:        -1,
	}

	mw.setupUI()
	mw.loadDownloads()

	dm.AddCallback(mw.onDownloadUpdate)

	return mw
}

func (mw *MainWindow) setupUI() {
	toolbar := mw.createToolbar()
	mw.createDownloadsList()

	statusContainer := container.NewBorder(nil, nil, mw.statusBar, nil)

	content := container.NewBorder(
		toolbar,          // top
		statusContainer,  // bottom
		nil,              // left
		nil,              // right
		mw.downloadsList, // center
	)

	mw.window.SetContent(content)
	mw.updateStatusBar()
}

func (mw *MainWindow) createToolbar() *widget.Toolbar {
	return widget.NewToolbar(
		widget.NewToolbarAction(theme.ContentAddIcon(), mw.showAddDownloadDialog),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.MediaPlayIcon(), mw.startSelectedDownload),
		widget.NewToolbarAction(theme.MediaPauseIcon(), mw.pauseSelectedDownload),
		widget.NewToolbarAction(theme.MediaStopIcon(), mw.cancelSelectedDownload),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.DeleteIcon(), mw.deleteSelectedDownload),
		widget.NewToolbarAction(theme.ViewRefreshIcon(), mw.refreshDownloads),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.SettingsIcon(), mw.showSettings),
	)
}

func (mw *MainWindow) createDownloadsList() {
	mw.downloadsList = widget.NewList(
		func() int {
			mw.mutex.Lock()
			defer mw.mutex.Unlock()
			return len(mw.downloads)
		},
		func() fyne.CanvasObject {
			return mw.createDownloadItem()
		},
		func(id widget.ListItemID, item fyne.CanvasObject) {
			if download := mw.downloadAt(id); download != nil {
				updateDownloadItem(item, download)
			}
		},
	)
	mw.downloadsList.OnSelected = func(id widget.ListItemID) {
		mw.mutex.Lock()
		mw.selected = id
		mw.mutex.Unlock()
	}
	mw.downloadsList.OnUnselected = func(widget.ListItemID) {
		mw.mutex.Lock()
		mw.selected = -1
		mw.mutex.Unlock()
	}
}

func (mw *MainWindow) downloadAt(id widget.ListItemID) *core.Download {
	mw.mutex.Lock()
	defer mw.mutex.Unlock()

	if id < 0 || id >= len(mw.downloads) {
		return nil
	}
	return mw.downloads[id]
}

func (mw *MainWindow) selectedDownload() *core.Download {
	mw.mutex.Lock()
	selected := mw.selected
	mw.mutex.Unlock()
	return mw.downloadAt(selected)
}

func (mw *MainWindow) createDownloadItem() fyne.CanvasObject {
	filename := widget.NewLabel("")
	filename.TextStyle.Bold = true

	url := widget.NewLabel("")
	url.Truncation = fyne.TextTruncateEllipsis

	progress := widget.NewProgressBar()

	size := widget.NewLabel("")
	speed := widget.NewLabel("")
	status := widget.NewLabel("")
	resume := widget.NewLabel("")

	infoContainer := container.NewHBox(size, speed, status, resume)

	return container.NewVBox(
		filename,
		url,
		progress,
		infoContainer,
	)
}

func updateDownloadItem(item fyne.CanvasObject, download *core.Download) {
	box := item.(*fyne.Container)

	filename := box.Objects[0].(*widget.Label)
	url := box.Objects[1].(*widget.Label)
	progress := box.Objects[2].(*widget.ProgressBar)
	infoContainer := box.Objects[3].(*fyne.Container)

	size := infoContainer.Objects[0].(*widget.Label)
	speed := infoContainer.Objects[1].(*widget.Label)
	status := infoContainer.Objects[2].(*widget.Label)
	resume := infoContainer.Objects[3].(*widget.Label)

	filename.SetText(download.Filename)
	url.SetText(download.URL)
	status.SetText(download.Status.String())
	resume.SetText(download.Resume.Name())

	progress.SetValue(download.Progress / 100.0)

	if download.Size > 0 {
		size.SetText(fmt.Sprintf("%s / %s", formatBytes(download.Downloaded), formatBytes(download.Size)))
	} else {
		size.SetText(formatBytes(download.Downloaded))
	}

	if download.Status == core.StatusDownloading && download.Speed > 0 {
		speed.SetText(fmt.Sprintf("%s/s", formatBytes(download.Speed)))
	} else {
		speed.SetText("")
	}

	switch download.Status {
	case core.StatusCompleted:
		status.Importance = widget.SuccessImportance
	case core.StatusFailed:
		status.Importance = widget.DangerImportance
	default:
		status.Importance = widget.MediumImportance
	}
	status.Refresh()
}

func (mw *MainWindow) showAddDownloadDialog() {
	dialog := NewAddDownloadDialog(mw.window, mw.downloadManager, mw.onDownloadAdded)
	dialog.Show()
}

func (mw *MainWindow) onDownloadAdded(*core.Download) {
	mw.loadDownloads()
}

func (mw *MainWindow) startSelectedDownload() {
	if download := mw.selectedDownload(); download != nil {
		if err := mw.downloadManager.StartDownload(download.ID); err != nil {
			dialog.ShowError(err, mw.window)
		}
	}
}

func (mw *MainWindow) pauseSelectedDownload() {
	if download := mw.selectedDownload(); download != nil {
		if err := mw.downloadManager.PauseDownload(download.ID); err != nil {
			dialog.ShowError(err, mw.window)
		}
	}
}

func (mw *MainWindow) cancelSelectedDownload() {
	download := mw.selectedDownload()
	if download == nil {
		return
	}

	dialog.ShowConfirm("Cancel Download",
		"Are you sure you want to cancel this download?",
		func(confirmed bool) {
			if confirmed {
				if err := mw.downloadManager.CancelDownload(download.ID); err != nil {
					dialog.ShowError(err, mw.window)
				}
			}
		}, mw.window)
}

func (mw *MainWindow) deleteSelectedDownload() {
	download := mw.selectedDownload()
	if download == nil {
		return
	}

	dialog.ShowConfirm("Delete Download",
		"Are you sure you want to delete this download from the list?",
		func(confirmed bool) {
			if confirmed {
				if err := mw.downloadManager.DeleteDownload(download.ID); err != nil {
					dialog.ShowError(err, mw.window)
				}
				mw.downloadsList.UnselectAll()
				mw.loadDownloads()
			}
		}, mw.window)
}

func (mw *MainWindow) refreshDownloads() {
	mw.loadDownloads()
}

func (mw *MainWindow) showSettings() {
	settings := NewSettingsWindow(mw.app, mw.downloadManager, mw.configPath)
	settings.Show()
}

func (mw *MainWindow) loadDownloads() {
	downloads, err := mw.downloadManager.GetDownloads()
	if err != nil {
		dialog.ShowError(err, mw.window)
		return
	}

	mw.mutex.Lock()
	mw.downloads = downloads
	mw.mutex.Unlock()

	mw.downloadsList.Refresh()
	mw.updateStatusBar()
}

func (mw *MainWindow) onDownloadUpdate(download *core.Download) {
	mw.mutex.Lock()
	found := false
	for i, d := range mw.downloads {
		if d.ID == download.ID {
			mw.downloads[i] = download
			found = true
			break
		}
	}
	mw.mutex.Unlock()

	if !found {
		mw.loadDownloads()
		return
	}
	mw.downloadsList.Refresh()
	mw.updateStatusBar()
}

func (mw *MainWindow) updateStatusBar() {
	mw.mutex.Lock()
	total := len(mw.downloads)
	downloading, completed, failed := 0, 0, 0
	for _, download := range mw.downloads {
		switch download.Status {
		case core.StatusDownloading:
			downloading++
		case core.StatusCompleted:
			completed++
		case core.StatusFailed:
			failed++
		}
	}
	mw.mutex.Unlock()

	mw.statusBar.SetText(fmt.Sprintf("Downloads: %d | Active: %d | Completed: %d | Failed: %d",
		total, downloading, completed, failed))
}

func (mw *MainWindow) ShowAndRun() {
	mw.window.ShowAndRun()
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
