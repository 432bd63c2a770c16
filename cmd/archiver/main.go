package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/andresuchdata/video-archiver/internal/archive"
	"github.com/andresuchdata/video-archiver/internal/config"
	"github.com/andresuchdata/video-archiver/internal/inventory"
	"github.com/andresuchdata/video-archiver/internal/library"
	"github.com/andresuchdata/video-archiver/internal/source"
	"github.com/andresuchdata/video-archiver/internal/storage"
	"github.com/andresuchdata/video-archiver/pkg/logger"
)

func newVideoIDFlag() *cli.StringSliceFlag {
	return &cli.StringSliceFlag{
		Name:     "video-id",
		Usage:    "Video id to operate on (repeatable)",
		Required: true,
	}
}

func main() {
	app := &cli.App{
		Name:  "archiver",
		Usage: "Migrate converted video content to the long-term archive",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (trace, debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "formats",
				Usage:  "List the converted formats available per video id",
				Action: runFormats,
			},
			{
				Name:   "legacy",
				Usage:  "List video ids that still have legacy-style converted content",
				Action: runLegacy,
			},
			{
				Name:   "missing",
				Usage:  "List the required formats still missing per catalog video",
				Action: runMissing,
			},
			{
				Name:  "upload",
				Usage: "Transfer converted content to the archive and verify it landed",
				Flags: []cli.Flag{
					newVideoIDFlag(),
					&cli.StringSliceFlag{
						Name:  "format",
						Usage: "Format to upload (repeatable, defaults to the required set)",
					},
				},
				Action: runUpload,
			},
			{
				Name:  "migrate-legacy",
				Usage: "Copy legacy-style converted content to the current naming scheme",
				Flags: []cli.Flag{
					newVideoIDFlag(),
				},
				Action: runMigrateLegacy,
			},
			{
				Name:  "source-url",
				Usage: "Print the unconverted source URL for a video, creating it if needed",
				Flags: []cli.Flag{
					newVideoIDFlag(),
				},
				Action: runSourceURL,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) (*config.Config, zerolog.Logger) {
	cfg := config.Load()
	level := cfg.LogLevel
	if c.String("log-level") != "" {
		level = c.String("log-level")
	}
	return cfg, logger.New(level)
}

func storageClientConfig(cfg *config.Config) storage.ClientConfig {
	return storage.ClientConfig{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Region:    cfg.Storage.Region,
		UseSSL:    cfg.Storage.UseSSL,
	}
}

func archiveClientConfig(cfg *config.Config) storage.ClientConfig {
	return storage.ClientConfig{
		Endpoint:  cfg.Archive.Endpoint,
		AccessKey: cfg.Archive.AccessKey,
		SecretKey: cfg.Archive.SecretKey,
		UseSSL:    cfg.Archive.UseSSL,
	}
}

func pipelineOptions(cfg *config.Config) archive.Options {
	return archive.Options{
		FreshnessWindow:   cfg.Archiver.FreshnessWindow,
		UploadMaxAttempts: cfg.Archiver.UploadMaxAttempts,
		VerifyMaxAttempts: cfg.Archiver.VerifyMaxAttempts,
		VerifyRetryDelay:  cfg.Archiver.VerifyRetryDelay,
		PropagationDelay:  cfg.Archiver.PropagationDelay,
		TransferTimeout:   cfg.Archiver.TransferTimeout,
		BucketPrefix:      cfg.Archive.BucketPrefix,
	}
}

func runFormats(c *cli.Context) error {
	cfg, log := setup(c)
	converted, err := storage.NewMinioBucket(storageClientConfig(cfg), cfg.Storage.ConvertedBucket)
	if err != nil {
		return err
	}

	listing, err := converted.List(c.Context, "", false)
	if err != nil {
		return err
	}

	formats := inventory.Formats(listing, log)
	for _, videoID := range sortedKeys(formats) {
		fmt.Printf("%s: %s\n", videoID, strings.Join(formats[videoID].Sorted(), ","))
	}
	return nil
}

func runLegacy(c *cli.Context) error {
	cfg, _ := setup(c)
	converted, err := storage.NewMinioBucket(storageClientConfig(cfg), cfg.Storage.ConvertedBucket)
	if err != nil {
		return err
	}

	listing, err := converted.List(c.Context, "", false)
	if err != nil {
		return err
	}

	ids := make([]string, 0)
	for id := range inventory.LegacyVideoIDs(listing) {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func runMissing(c *cli.Context) error {
	cfg, log := setup(c)
	converted, err := storage.NewMinioBucket(storageClientConfig(cfg), cfg.Storage.ConvertedBucket)
	if err != nil {
		return err
	}
	catalog := library.NewClient(cfg.Library.BaseURL, cfg.Library.Timeout)

	listing, err := converted.List(c.Context, "", false)
	if err != nil {
		return err
	}
	playlists, err := catalog.GetLibrary(c.Context)
	if err != nil {
		return err
	}

	required := inventory.NewFormatSet(cfg.Archiver.RequiredFormats...)
	missing := inventory.Missing(required, listing, playlists, log)
	for _, videoID := range sortedKeys(missing) {
		if len(missing[videoID]) == 0 {
			continue
		}
		fmt.Printf("%s: %s\n", videoID, strings.Join(missing[videoID].Sorted(), ","))
	}
	return nil
}

func runUpload(c *cli.Context) error {
	cfg, log := setup(c)
	converted, err := storage.NewMinioBucket(storageClientConfig(cfg), cfg.Storage.ConvertedBucket)
	if err != nil {
		return err
	}
	archiveStore, err := storage.NewMinioArchive(archiveClientConfig(cfg))
	if err != nil {
		return err
	}
	catalog := library.NewClient(cfg.Library.BaseURL, cfg.Library.Timeout)

	formats := c.StringSlice("format")
	if len(formats) == 0 {
		formats = cfg.Archiver.RequiredFormats
	}
	videoIDs := c.StringSlice("video-id")

	pipeline := archive.New(converted, archiveStore, catalog, pipelineOptions(cfg), log)

	// Distinct video ids never contend, so they may run concurrently; runs
	// for one id stay serialized within a single pipeline call.
	g, ctx := errgroup.WithContext(c.Context)
	g.SetLimit(cfg.Archiver.UploadConcurrency)

	var mu sync.Mutex
	results := make(map[string]archive.Result)
	for _, videoID := range videoIDs {
		videoID := videoID
		g.Go(func() error {
			report, err := pipeline.Archive(ctx, videoID, formats)
			if err != nil {
				return fmt.Errorf("archive %s: %w", videoID, err)
			}
			mu.Lock()
			results[videoID] = report.Result
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := 0
	for _, videoID := range sortedKeys(results) {
		result := results[videoID]
		if result == archive.Success {
			log.Info().Str("video_id", videoID).Msg("archive upload succeeded")
		} else {
			failed++
			log.Error().Str("video_id", videoID).Stringer("result", result).Msg("archive upload failed")
		}
		fmt.Printf("%s: %s\n", videoID, result)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d videos failed to archive", failed, len(videoIDs))
	}
	return nil
}

func runMigrateLegacy(c *cli.Context) error {
	cfg, log := setup(c)
	converted, err := storage.NewMinioBucket(storageClientConfig(cfg), cfg.Storage.ConvertedBucket)
	if err != nil {
		return err
	}

	for _, videoID := range c.StringSlice("video-id") {
		if err := archive.MigrateLegacy(c.Context, converted, videoID, log); err != nil {
			return err
		}
	}
	return nil
}

func runSourceURL(c *cli.Context) error {
	cfg, log := setup(c)
	unconverted, err := storage.NewMinioBucket(storageClientConfig(cfg), cfg.Storage.UnconvertedBucket)
	if err != nil {
		return err
	}

	downloader := &source.ExecDownloader{
		Binary: cfg.Archiver.DownloaderBin,
		Dir:    cfg.Archiver.DownloadDir,
	}
	store := source.NewStore(unconverted, cfg.Storage.UnconvertedBucket, downloader, log)

	for _, videoID := range c.StringSlice("video-id") {
		url, err := store.EnsureSourceURL(c.Context, videoID)
		if err != nil {
			return err
		}
		fmt.Println(url)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
