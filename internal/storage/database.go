package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ardatatransfer-go/internal/ardatatransfer"

	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("download not found")

// DownloadStatus represents the status of a download
type DownloadStatus int

const (
	StatusPending DownloadStatus = iota
	StatusDownloading
	StatusPaused
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s DownloadStatus) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusDownloading:
		return "Downloading"
	case StatusPaused:
		return "Paused"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Download represents a download item
type Download struct {
	ID          int64                           `json:"id"`
	URL         string                          `json:"url"`
	Filename    string                          `json:"filename"`
	Path        string                          `json:"path"`
	Size        int64                           `json:"size"`
	Downloaded  int64                           `json:"downloaded"`
	Status      DownloadStatus                  `json:"status"`
	Speed       int64                           `json:"speed"`
	Progress    float64                         `json:"progress"`
	CreatedAt   time.Time                       `json:"created_at"`
	StartedAt   *time.Time                      `json:"started_at,omitempty"`
	CompletedAt *time.Time                      `json:"completed_at,omitempty"`
	Error       string                          `json:"error,omitempty"`
	Resume      ardatatransfer.DownloaderResume `json:"resume"`
}

// InitDB opens the sqlite database at path and creates the schema.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS downloads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL,
		filename TEXT NOT NULL,
		path TEXT NOT NULL,
		size INTEGER DEFAULT 0,
		downloaded INTEGER DEFAULT 0,
		status INTEGER DEFAULT 0,
		speed INTEGER DEFAULT 0,
		progress REAL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		started_at DATETIME,
		completed_at DATETIME,
		error TEXT NOT NULL DEFAULT '',
		resume INTEGER NOT NULL DEFAULT 0
	);`

	_, err := db.Exec(query)
	return err
}

func SaveDownload(db *sql.DB, download *Download) (int64, error) {
	query := `
	INSERT INTO downloads (url, filename, path, size, downloaded, status, resume, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := db.Exec(query,
		download.URL,
		download.Filename,
		download.Path,
		download.Size,
		download.Downloaded,
		int(download.Status),
		download.Resume.Value(),
		download.CreatedAt,
	)
	if err != nil {
		return 0, err
	}

	return result.LastInsertId()
}

func UpdateDownload(db *sql.DB, download *Download) error {
	query := `
	UPDATE downloads
	SET size = ?, downloaded = ?, status = ?, speed = ?, progress = ?, started_at = ?, completed_at = ?, error = ?, resume = ?
	WHERE id = ?`

	result, err := db.Exec(query,
		download.Size,
		download.Downloaded,
		int(download.Status),
		download.Speed,
		download.Progress,
		download.StartedAt,
		download.CompletedAt,
		download.Error,
		download.Resume.Value(),
		download.ID,
	)
	if err != nil {
		return err
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update %d: %w", download.ID, ErrNotFound)
	}
	return nil
}

const selectColumns = `
	SELECT id, url, filename, path, size, downloaded, status, speed, progress,
	       created_at, started_at, completed_at, error, resume
	FROM downloads`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDownload(row rowScanner) (*Download, error) {
	download := &Download{}
	var startedAt, completedAt sql.NullTime
	var resume sql.NullInt32

	err := row.Scan(
		&download.ID,
		&download.URL,
		&download.Filename,
		&download.Path,
		&download.Size,
		&download.Downloaded,
		(*int)(&download.Status),
		&download.Speed,
		&download.Progress,
		&download.CreatedAt,
		&startedAt,
		&completedAt,
		&download.Error,
		&resume,
	)
	if err != nil {
		return nil, err
	}

	if startedAt.Valid {
		download.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		download.CompletedAt = &completedAt.Time
	}

	download.Resume = ardatatransfer.DownloaderResumeUnknown
	if resume.Valid {
		download.Resume = ardatatransfer.DownloaderResumeFromValue(resume.Int32)
	}

	return download, nil
}

func GetDownload(db *sql.DB, id int64) (*Download, error) {
	download, err := scanDownload(db.QueryRow(selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return download, nil
}

func GetAllDownloads(db *sql.DB) ([]*Download, error) {
	rows, err := db.Query(selectColumns + ` ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var downloads []*Download

	for rows.Next() {
		download, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		downloads = append(downloads, download)
	}

	return downloads, rows.Err()
}

func DeleteDownload(db *sql.DB, id int64) error {
	query := "DELETE FROM downloads WHERE id = ?"
	_, err := db.Exec(query, id)
	return err
}
