package main

import (
	"context"
	"errors"
	"os"

	"ardatatransfer-go/internal/core"
	"ardatatransfer-go/internal/storage"
	"ardatatransfer-go/internal/ui"

	"fyne.io/fyne/v2/app"
	log "github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"
)

var logger = log.New()

type config struct {
	ConfigPath string
	DBPath     string
	Debug      bool
}

func main() {
	config := config{}

	c := cli.NewApp()
	c.Name = "ardatatransfer"
	c.Usage = "Desktop downloader with resumable transfers"
	c.Version = "1.0.0"

	c.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to the TOML settings file",
			Value:       "ardatatransfer.toml",
			Destination: &config.ConfigPath,
			EnvVars:     []string{"ARDATATRANSFER_CONFIG"},
		},
		&cli.StringFlag{
			Name:        "db",
			Usage:       "Path to the sqlite download database",
			Value:       "downloads.db",
			Destination: &config.DBPath,
			EnvVars:     []string{"ARDATATRANSFER_DB"},
		},
		&cli.BoolFlag{
			Name:        "debug",
			Aliases:     []string{"d"},
			Usage:       "Enable debug-level logging",
			Destination: &config.Debug,
			EnvVars:     []string{"DEBUG"},
		},
	}

	c.Before = func(c *cli.Context) error {
		logLevel := log.InfoLevel
		if config.Debug {
			logLevel = log.DebugLevel
		}
		logger.SetLevel(logLevel)
		return nil
	}

	c.Action = func(c *cli.Context) error {
		return run(c.Context, &config)
	}

	err := c.Run(os.Args)
	if err != nil {
		logger.Errorf("%v", err)
		log.Exit(1)
	}
}

func loadDownloadConfig(path string) (*core.DownloadConfig, error) {
	downloadConfig, err := core.LoadConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.WithField("path", path).Debug("no settings file, using defaults")
		return core.DefaultConfig(), nil
	}
	return downloadConfig, err
}

func run(ctx context.Context, config *config) error {
	downloadConfig, err := loadDownloadConfig(config.ConfigPath)
	if err != nil {
		return err
	}

	db, err := storage.InitDB(config.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	downloadManager := core.NewDownloadManager(db, downloadConfig, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go downloadManager.Run(ctx)

	logger.WithFields(log.Fields{
		"db":     config.DBPath,
		"resume": downloadConfig.Resume.Name(),
	}).Info("starting downloader")

	myApp := app.NewWithID("com.example.ardatatransfer")
	mainWindow := ui.NewMainWindow(myApp, downloadManager, config.ConfigPath)
	mainWindow.ShowAndRun()

	cancel()
	downloadManager.Shutdown()
	return nil
}
