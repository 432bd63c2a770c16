package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Storage  StorageConfig
	Archive  ArchiveConfig
	Library  LibraryConfig
	Archiver ArchiverConfig
	LogLevel string
}

// StorageConfig covers the internal S3-compatible endpoint that holds both
// the converted and unconverted buckets.
type StorageConfig struct {
	Endpoint          string
	AccessKey         string
	SecretKey         string
	Region            string
	UseSSL            bool
	ConvertedBucket   string
	UnconvertedBucket string
}

// ArchiveConfig covers the public long-term archive endpoint. Buckets there
// are per-video: BucketPrefix + video id, auto-created on first write.
type ArchiveConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	BucketPrefix string
}

type LibraryConfig struct {
	BaseURL string
	Timeout time.Duration
}

type ArchiverConfig struct {
	RequiredFormats   []string
	FreshnessWindow   time.Duration
	UploadMaxAttempts int
	VerifyMaxAttempts int
	VerifyRetryDelay  time.Duration
	PropagationDelay  time.Duration
	TransferTimeout   time.Duration
	UploadConcurrency int
	DownloaderBin     string
	DownloadDir       string
}

// Load reads configuration from the environment (and a .env file when
// present). It returns a fresh value on every call; callers pass it down
// explicitly.
func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Set default values
	viper.SetDefault("S3_ENDPOINT", "s3.amazonaws.com")
	viper.SetDefault("S3_ACCESS_KEY", "")
	viper.SetDefault("S3_SECRET_KEY", "")
	viper.SetDefault("S3_REGION", "us-east-1")
	viper.SetDefault("S3_USE_SSL", true)
	viper.SetDefault("CONVERTED_BUCKET", "KA-youtube-converted")
	viper.SetDefault("UNCONVERTED_BUCKET", "KA-youtube-unconverted")
	viper.SetDefault("ARCHIVE_ENDPOINT", "s3.us.archive.org")
	viper.SetDefault("ARCHIVE_ACCESS_KEY", "")
	viper.SetDefault("ARCHIVE_SECRET_KEY", "")
	viper.SetDefault("ARCHIVE_USE_SSL", false)
	viper.SetDefault("ARCHIVE_BUCKET_PREFIX", "KA-converted-")
	viper.SetDefault("LIBRARY_API_URL", "http://localhost:8080")
	viper.SetDefault("LIBRARY_API_TIMEOUT", "30s")
	viper.SetDefault("REQUIRED_FORMATS", []string{"mp4", "m3u8"})
	viper.SetDefault("FRESHNESS_WINDOW", "1h")
	viper.SetDefault("UPLOAD_MAX_ATTEMPTS", 10)
	viper.SetDefault("VERIFY_MAX_ATTEMPTS", 5)
	viper.SetDefault("VERIFY_RETRY_DELAY", "10s")
	viper.SetDefault("PROPAGATION_DELAY", "10s")
	viper.SetDefault("TRANSFER_TIMEOUT", "30m")
	viper.SetDefault("UPLOAD_CONCURRENCY", 4)
	viper.SetDefault("DOWNLOADER_BIN", "yt-dlp")
	viper.SetDefault("DOWNLOAD_DIR", "./data/downloads")
	viper.SetDefault("LOG_LEVEL", "info")

	// Read from environment variables
	viper.AutomaticEnv()

	return &Config{
		Storage: StorageConfig{
			Endpoint:          viper.GetString("S3_ENDPOINT"),
			AccessKey:         viper.GetString("S3_ACCESS_KEY"),
			SecretKey:         viper.GetString("S3_SECRET_KEY"),
			Region:            viper.GetString("S3_REGION"),
			UseSSL:            viper.GetBool("S3_USE_SSL"),
			ConvertedBucket:   viper.GetString("CONVERTED_BUCKET"),
			UnconvertedBucket: viper.GetString("UNCONVERTED_BUCKET"),
		},
		Archive: ArchiveConfig{
			Endpoint:     viper.GetString("ARCHIVE_ENDPOINT"),
			AccessKey:    viper.GetString("ARCHIVE_ACCESS_KEY"),
			SecretKey:    viper.GetString("ARCHIVE_SECRET_KEY"),
			UseSSL:       viper.GetBool("ARCHIVE_USE_SSL"),
			BucketPrefix: viper.GetString("ARCHIVE_BUCKET_PREFIX"),
		},
		Library: LibraryConfig{
			BaseURL: viper.GetString("LIBRARY_API_URL"),
			Timeout: viper.GetDuration("LIBRARY_API_TIMEOUT"),
		},
		Archiver: ArchiverConfig{
			RequiredFormats:   viper.GetStringSlice("REQUIRED_FORMATS"),
			FreshnessWindow:   viper.GetDuration("FRESHNESS_WINDOW"),
			UploadMaxAttempts: viper.GetInt("UPLOAD_MAX_ATTEMPTS"),
			VerifyMaxAttempts: viper.GetInt("VERIFY_MAX_ATTEMPTS"),
			VerifyRetryDelay:  viper.GetDuration("VERIFY_RETRY_DELAY"),
			PropagationDelay:  viper.GetDuration("PROPAGATION_DELAY"),
			TransferTimeout:   viper.GetDuration("TRANSFER_TIMEOUT"),
			UploadConcurrency: viper.GetInt("UPLOAD_CONCURRENCY"),
			DownloaderBin:     viper.GetString("DOWNLOADER_BIN"),
			DownloadDir:       viper.GetString("DOWNLOAD_DIR"),
		},
		LogLevel: viper.GetString("LOG_LEVEL"),
	}
}
