package asf

import (
	"github.com/example/go-sarslide/asf/download"
)

type downloadConfig struct {
	concurrency int
	verify      bool
	preferS3    bool
	overwrite   bool
	progress    download.ProgressFunc
	downloader  download.Manager
}

// DownloadOption customises how product files are downloaded.
type DownloadOption func(*downloadConfig)

// WithDownloadConcurrency specifies the number of files to fetch in parallel.
func WithDownloadConcurrency(n int) DownloadOption {
	return func(cfg *downloadConfig) {
		if n > 0 {
			cfg.concurrency = n
		}
	}
}

// WithProgress registers a callback to receive download progress notifications.
func WithProgress(fn download.ProgressFunc) DownloadOption {
	return func(cfg *downloadConfig) {
		cfg.progress = fn
	}
}

// WithoutChecksum disables checksum verification after downloads.
func WithoutChecksum() DownloadOption {
	return func(cfg *downloadConfig) {
		cfg.verify = false
	}
}

// WithS3 fetches files from their s3:// location when the product lists one with the same
// name. Direct S3 access only works from inside the bucket region.
func WithS3() DownloadOption {
	return func(cfg *downloadConfig) {
		cfg.preferS3 = true
	}
}

// WithOverwrite re-downloads files already present in the destination directory.
func WithOverwrite() DownloadOption {
	return func(cfg *downloadConfig) {
		cfg.overwrite = true
	}
}

// WithDownloader allows providing a custom download.Manager implementation.
func WithDownloader(m download.Manager) DownloadOption {
	return func(cfg *downloadConfig) {
		if m != nil {
			cfg.downloader = m
		}
	}
}

func newDownloadConfig(opts []DownloadOption) *downloadConfig {
	cfg := &downloadConfig{verify: true}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.concurrency <= 0 {
		cfg.concurrency = 2
	}
	return cfg
}

func (c *downloadConfig) ensureDefaults(client *Client) {
	if c.downloader == nil {
		c.downloader = download.NewManager(download.Config{
			Concurrency: c.concurrency,
			Verify:      c.verify,
			Progress:    c.progress,
			BasicAuth:   client.basicAuth,
			S3:          client.s3,
			Retry:       client.retry,
			Overwrite:   c.overwrite,
		})
	}
}
