package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ardatatransfer-go/internal/ardatatransfer"
	"ardatatransfer-go/internal/storage"

	log "github.com/sirupsen/logrus"
)

var (
	ErrDownloadNotFound = errors.New("download not found")
	ErrAlreadyRunning   = errors.New("download already in progress")
)

const progressInterval = 500 * time.Millisecond

// stopReason tells executeDownload why a job context was cancelled.
type stopReason int32

const (
	stopNone stopReason = iota
	stopPause
	stopCancel
	stopDelete
)

type DownloadManager struct {
	db              *sql.DB
	logger          *log.Logger
	config          DownloadConfig
	downloads       map[int64]*DownloadJob
	queue           *Queue
	activeDownloads int32
	mutex           sync.RWMutex
	callbacks       []func(*Download)
	wg              sync.WaitGroup

	clientMutex   sync.Mutex
	client        *http.Client
	clientTimeout time.Duration
}

type DownloadJob struct {
	download   *Download
	ctx        context.Context
	cancel     context.CancelFunc
	stop       int32
	done       chan struct{}
	mutex      sync.Mutex
	lastUpdate time.Time
	lastBytes  int64
}

func NewDownloadManager(db *sql.DB, config *DownloadConfig, logger *log.Logger) *DownloadManager {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = log.StandardLogger()
	}

	return &DownloadManager{
		db:        db,
		logger:    logger,
		config:    *config,
		downloads: make(map[int64]*DownloadJob),
		queue:     NewQueue(),
	}
}

// Config returns a copy of the current configuration.
func (dm *DownloadManager) Config() DownloadConfig {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()
	return dm.config
}

// SetConfig fills defaults, validates and applies config. Running downloads
// keep the settings they started with.
func (dm *DownloadManager) SetConfig(config DownloadConfig) error {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return err
	}

	dm.mutex.Lock()
	dm.config = config
	dm.mutex.Unlock()

	dm.logger.WithFields(log.Fields{
		"maxConcurrent": config.MaxConcurrentDownloads,
		"maxSpeed":      config.MaxSpeed,
		"resume":        config.Resume.Name(),
	}).Info("download configuration updated")
	return nil
}

// httpClient returns the shared client for timeout, rebuilding it when the
// configured timeout changed.
func (dm *DownloadManager) httpClient(timeout time.Duration) *http.Client {
	dm.clientMutex.Lock()
	defer dm.clientMutex.Unlock()

	if dm.client == nil || dm.clientTimeout != timeout {
		if dm.client != nil {
			dm.client.CloseIdleConnections()
		}
		dm.client = newHTTPClient(timeout)
		dm.clientTimeout = timeout
	}
	return dm.client
}

// newHTTPClient bounds dialing, the TLS handshake and the wait for response
// headers by timeout. The body has no overall deadline; fetch stops a
// transfer that stays silent for longer than timeout.
func newHTTPClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   timeout,
			ResponseHeaderTimeout: timeout,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// AddDownload registers rawURL for download into dir and queues it.
func (dm *DownloadManager) AddDownload(ctx context.Context, rawURL, dir string, resume ardatatransfer.DownloaderResume) (*Download, error) {
	config := dm.Config()

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q", parsed.Scheme)
	}

	ctx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", config.UserAgent)

	resp, err := dm.httpClient(config.Timeout).Do(req)
	if err != nil {
		return nil, fmt.Errorf("head %s: %w", rawURL, err)
	}
	resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("head %s: unexpected status %s", rawURL, resp.Status)
	}

	download := &Download{
		URL:       rawURL,
		Filename:  filenameFor(parsed, resp.Header.Get("Content-Disposition")),
		Path:      dir,
		Status:    StatusPending,
		CreatedAt: time.Now(),
		Resume:    resume,
	}
	if resp.ContentLength > 0 {
		download.Size = resp.ContentLength
	}

	id, err := storage.SaveDownload(dm.db, download)
	if err != nil {
		return nil, fmt.Errorf("save download: %w", err)
	}
	download.ID = id

	dm.logger.WithFields(log.Fields{
		"id":     id,
		"url":    rawURL,
		"size":   download.Size,
		"resume": resume.Name(),
	}).Info("download added")

	dm.queue.Add(download)
	dm.notifyCallbacks(download)

	return download, nil
}

func filenameFor(u *url.URL, disposition string) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := filepath.Base(params["filename"]); name != "." && name != "/" && name != "" {
				return name
			}
		}
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "download"
	}
	return name
}

// StartDownload runs the download with the given id in the background.
func (dm *DownloadManager) StartDownload(id int64) error {
	download, err := storage.GetDownload(dm.db, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrDownloadNotFound, id)
		}
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &DownloadJob{
		download:   download,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		lastUpdate: time.Now(),
		lastBytes:  download.Downloaded,
	}

	dm.mutex.Lock()
	if _, running := dm.downloads[id]; running {
		dm.mutex.Unlock()
		cancel()
		return fmt.Errorf("%w: %d", ErrAlreadyRunning, id)
	}
	dm.downloads[id] = job
	dm.wg.Add(1)
	dm.mutex.Unlock()

	dm.queue.Remove(id)
	atomic.AddInt32(&dm.activeDownloads, 1)

	go dm.executeDownload(job)

	return nil
}

func (dm *DownloadManager) executeDownload(job *DownloadJob) {
	defer dm.wg.Done()
	defer atomic.AddInt32(&dm.activeDownloads, -1)
	defer close(job.done)

	download := job.download
	entry := dm.logger.WithFields(log.Fields{
		"id":     download.ID,
		"url":    download.URL,
		"resume": download.Resume.Name(),
	})

	job.mutex.Lock()
	download.Status = StatusDownloading
	download.Error = ""
	now := time.Now()
	download.StartedAt = &now
	job.mutex.Unlock()

	dm.persist(job)
	entry.Info("download started")

	err := dm.fetchWithRetry(job, entry)
	reason := stopReason(atomic.LoadInt32(&job.stop))

	job.mutex.Lock()
	switch {
	case err == nil:
		download.Status = StatusCompleted
		completed := time.Now()
		download.CompletedAt = &completed
		download.Progress = 100.0
		download.Speed = 0
		entry.WithField("bytes", download.Downloaded).Info("download completed")
	case reason == stopPause:
		download.Status = StatusPaused
		download.Speed = 0
		entry.WithField("bytes", download.Downloaded).Info("download paused")
	case reason == stopCancel || reason == stopDelete:
		download.Status = StatusCancelled
		download.Speed = 0
		download.Downloaded = 0
		download.Progress = 0
		entry.Info("download cancelled")
	default:
		download.Status = StatusFailed
		download.Error = err.Error()
		download.Speed = 0
		entry.WithError(err).Error("download failed")
	}
	job.mutex.Unlock()

	if download.Status == StatusCancelled {
		if err := os.Remove(localPath(download)); err != nil && !os.IsNotExist(err) {
			entry.WithError(err).Warn("failed to remove partial file")
		}
	}

	dm.mutex.Lock()
	delete(dm.downloads, download.ID)
	dm.mutex.Unlock()

	// DeleteDownload drops the row once the job is done
	if reason != stopDelete {
		dm.persist(job)
	}
	job.cancel()
}

func (dm *DownloadManager) fetchWithRetry(job *DownloadJob, entry *log.Entry) error {
	config := dm.Config()

	for attempt := 0; ; attempt++ {
		err := dm.fetch(job, config)
		if err == nil || job.ctx.Err() != nil || !isRetryable(err) || attempt >= config.RetryAttempts {
			return err
		}

		entry.WithError(err).WithField("attempt", attempt+1).Warn("download attempt failed, retrying")

		select {
		case <-job.ctx.Done():
			return job.ctx.Err()
		case <-time.After(config.RetryDelay * time.Duration(attempt+1)):
		}
	}
}

type statusError struct {
	url    string
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("get %s: unexpected status %d %s", e.url, e.status, http.StatusText(e.status))
}

var (
	errRangeMismatch = errors.New("local file does not match remote range")
	errIdleTimeout   = errors.New("no data received within timeout")
)

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.status >= http.StatusInternalServerError ||
			se.status == http.StatusRequestTimeout ||
			se.status == http.StatusTooManyRequests
	}
	return true
}

func localPath(download *Download) string {
	return filepath.Join(download.Path, download.Filename)
}

// fetch performs one GET. With DownloaderResumeTrue an existing partial file
// is continued with a Range request, otherwise the file is rewritten.
func (dm *DownloadManager) fetch(job *DownloadJob, config DownloadConfig) error {
	download := job.download
	fullPath := localPath(download)

	var offset int64
	if download.Resume.Bool() {
		if info, err := os.Stat(fullPath); err == nil && info.Mode().IsRegular() {
			offset = info.Size()
		}
	}

	ctx, cancel := context.WithCancel(job.ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, download.URL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", config.UserAgent)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := dm.httpClient(config.Timeout).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	flags := os.O_WRONLY | os.O_CREATE
	switch {
	case resp.StatusCode == http.StatusPartialContent && offset > 0:
		start, total, ok := parseContentRange(resp.Header.Get("Content-Range"))
		switch {
		case ok && start == offset:
			flags |= os.O_APPEND
		case ok && start == 0:
			offset = 0
			flags |= os.O_TRUNC
		default:
			if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
				return err
			}
			return errRangeMismatch
		}
		if total >= 0 {
			dm.setSize(job, total)
		} else if resp.ContentLength >= 0 {
			dm.setSize(job, offset+resp.ContentLength)
		}
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && offset > 0:
		if total, ok := parseUnsatisfiedRange(resp.Header.Get("Content-Range")); ok && total == offset {
			dm.setProgress(job, offset, total)
			return nil
		}
		if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
			return err
		}
		return errRangeMismatch
	case resp.StatusCode == http.StatusOK:
		offset = 0
		flags |= os.O_TRUNC
		if resp.ContentLength >= 0 {
			dm.setSize(job, resp.ContentLength)
		}
	default:
		return &statusError{url: download.URL, status: resp.StatusCode}
	}

	if err := os.MkdirAll(download.Path, 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(fullPath, flags, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	dm.setProgress(job, offset, -1)

	body := newIdleTimeoutReader(resp.Body, config.Timeout, cancel)
	defer body.Stop()

	var reader io.Reader = body
	if config.MaxSpeed > 0 {
		reader = newRateLimitedReader(job.ctx, body, config.MaxSpeed)
	}

	buffer := make([]byte, copyBufferSize)
	written := offset
	for {
		n, readErr := reader.Read(buffer)
		if n > 0 {
			if _, err := file.Write(buffer[:n]); err != nil {
				return err
			}
			written += int64(n)
			dm.setProgress(job, written, -1)
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}

	return file.Sync()
}

// parseContentRange reads a "bytes start-end/total" header. total is -1 when
// the server sent "*".
func parseContentRange(header string) (start, total int64, ok bool) {
	rest, ok := strings.CutPrefix(header, "bytes ")
	if !ok {
		return 0, 0, false
	}
	span, size, ok := strings.Cut(rest, "/")
	if !ok {
		return 0, 0, false
	}
	first, last, ok := strings.Cut(span, "-")
	if !ok {
		return 0, 0, false
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false
	}
	end, err := strconv.ParseInt(last, 10, 64)
	if err != nil || end < start {
		return 0, 0, false
	}

	if size == "*" {
		return start, -1, true
	}
	total, err = strconv.ParseInt(size, 10, 64)
	if err != nil || total <= end {
		return 0, 0, false
	}
	return start, total, true
}

// parseUnsatisfiedRange reads the total size from a "bytes */N" header.
func parseUnsatisfiedRange(header string) (int64, bool) {
	rest, ok := strings.CutPrefix(header, "bytes */")
	if !ok {
		return 0, false
	}
	total, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return total, true
}

func (dm *DownloadManager) setSize(job *DownloadJob, size int64) {
	job.mutex.Lock()
	job.download.Size = size
	job.mutex.Unlock()
}

// setProgress records bytes written and, at most every progressInterval,
// persists and publishes the download. A negative size leaves Size alone.
func (dm *DownloadManager) setProgress(job *DownloadJob, downloaded, size int64) {
	job.mutex.Lock()
	download := job.download
	if size >= 0 {
		download.Size = size
	}
	download.Downloaded = downloaded
	if download.Size > 0 {
		download.Progress = float64(downloaded) / float64(download.Size) * 100
	}

	now := time.Now()
	elapsed := now.Sub(job.lastUpdate)
	if elapsed < progressInterval {
		job.mutex.Unlock()
		return
	}
	download.Speed = int64(float64(downloaded-job.lastBytes) / elapsed.Seconds())
	job.lastUpdate = now
	job.lastBytes = downloaded
	job.mutex.Unlock()

	dm.persist(job)
}

// persist writes a snapshot of the job's download and notifies callbacks.
func (dm *DownloadManager) persist(job *DownloadJob) {
	job.mutex.Lock()
	snapshot := *job.download
	job.mutex.Unlock()

	if err := storage.UpdateDownload(dm.db, &snapshot); err != nil {
		dm.logger.WithError(err).WithField("id", snapshot.ID).Warn("failed to persist download")
	}
	dm.notifyCallbacks(&snapshot)
}

// stopDownload cancels the running job for id and returns it, or nil when
// nothing runs under id.
func (dm *DownloadManager) stopDownload(id int64, reason stopReason) *DownloadJob {
	dm.mutex.RLock()
	job, exists := dm.downloads[id]
	dm.mutex.RUnlock()

	if !exists {
		return nil
	}

	atomic.StoreInt32(&job.stop, int32(reason))
	job.cancel()
	return job
}

// PauseDownload stops a running download and keeps its partial file so a
// later start with DownloaderResumeTrue continues from there.
func (dm *DownloadManager) PauseDownload(id int64) error {
	if dm.stopDownload(id, stopPause) == nil {
		return fmt.Errorf("%w: %d is not running", ErrDownloadNotFound, id)
	}
	return nil
}

// CancelDownload stops the download if it runs and removes its partial file.
func (dm *DownloadManager) CancelDownload(id int64) error {
	if dm.stopDownload(id, stopCancel) != nil {
		return nil
	}

	download, err := storage.GetDownload(dm.db, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrDownloadNotFound, id)
		}
		return err
	}
	dm.queue.Remove(id)

	download.Status = StatusCancelled
	download.Downloaded = 0
	download.Progress = 0
	if err := storage.UpdateDownload(dm.db, download); err != nil {
		return err
	}
	dm.notifyCallbacks(download)

	if err := os.Remove(localPath(download)); err != nil && !os.IsNotExist(err) {
		dm.logger.WithError(err).WithField("id", id).Warn("failed to remove partial file")
	}
	return nil
}

// DeleteDownload removes the download from the store. A running download is
// stopped, and its partial file removed, before the row goes away.
func (dm *DownloadManager) DeleteDownload(id int64) error {
	if job := dm.stopDownload(id, stopDelete); job != nil {
		<-job.done
	}
	dm.queue.Remove(id)
	return storage.DeleteDownload(dm.db, id)
}

// Enqueue puts a stored download back in the queue as pending.
func (dm *DownloadManager) Enqueue(id int64) error {
	download, err := storage.GetDownload(dm.db, id)
	if err != nil {
		return err
	}

	download.Status = StatusPending
	download.Error = ""
	if err := storage.UpdateDownload(dm.db, download); err != nil {
		return err
	}

	dm.queue.Add(download)
	dm.notifyCallbacks(download)
	return nil
}

func (dm *DownloadManager) GetDownloads() ([]*Download, error) {
	return storage.GetAllDownloads(dm.db)
}

func (dm *DownloadManager) ActiveDownloads() int {
	return int(atomic.LoadInt32(&dm.activeDownloads))
}

func (dm *DownloadManager) AddCallback(callback func(*Download)) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()
	dm.callbacks = append(dm.callbacks, callback)
}

func (dm *DownloadManager) notifyCallbacks(download *Download) {
	dm.mutex.RLock()
	callbacks := make([]func(*Download), len(dm.callbacks))
	copy(callbacks, dm.callbacks)
	dm.mutex.RUnlock()

	for _, callback := range callbacks {
		snapshot := *download
		callback(&snapshot)
	}
}

// Run starts queued downloads while fewer than MaxConcurrentDownloads are
// active. It returns when ctx is done.
func (dm *DownloadManager) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		dm.startQueued()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (dm *DownloadManager) startQueued() {
	limit := dm.Config().MaxConcurrentDownloads
	for dm.ActiveDownloads() < limit {
		download := dm.queue.Next()
		if download == nil {
			return
		}
		if err := dm.StartDownload(download.ID); err != nil {
			dm.logger.WithError(err).WithField("id", download.ID).Warn("failed to start queued download")
		}
	}
}

// Wait blocks until every running download has finished.
func (dm *DownloadManager) Wait() {
	dm.wg.Wait()
}

// Shutdown pauses every running download and waits for them to stop.
func (dm *DownloadManager) Shutdown() {
	dm.mutex.RLock()
	ids := make([]int64, 0, len(dm.downloads))
	for id := range dm.downloads {
		ids = append(ids, id)
	}
	dm.mutex.RUnlock()

	for _, id := range ids {
		dm.stopDownload(id, stopPause)
	}
	dm.Wait()
}
