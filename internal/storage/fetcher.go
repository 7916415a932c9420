package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"schematic-service/internal/logger"
	"schematic-service/internal/metrics"
)

// Downloader streams one named artifact of a completed renderer run.
type Downloader interface {
	Download(ctx context.Context, runHandle, remoteName string) (io.ReadCloser, error)
}

// Fetcher downloads renderer artifacts into local storage and hands back the
// storable relative path for each.
type Fetcher struct {
	paths     Paths
	client    Downloader
	collector *metrics.Collector
	log       *logger.Logger
}

// NewFetcher creates a Fetcher writing under the given storage paths.
func NewFetcher(paths Paths, client Downloader, collector *metrics.Collector, log *logger.Logger) *Fetcher {
	return &Fetcher{paths: paths, client: client, collector: collector, log: log}
}

// Fetch streams the remote artifact to destDir/localName, creating destDir if
// absent, and returns the path relative to the storage root. Any failure is
// fatal to the caller's ingestion run; a partially written file is removed.
func (f *Fetcher) Fetch(ctx context.Context, runHandle, remoteName, destDir, localName string) (string, error) {
	start := time.Now()
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", errors.Wrap(err, "could not create artifact directory")
	}
	body, err := f.client.Download(ctx, runHandle, remoteName)
	if err != nil {
		return "", errors.Wrapf(err, "fetch failed for %s", remoteName)
	}
	defer body.Close()

	target := filepath.Join(destDir, localName)
	out, err := os.Create(target)
	if err != nil {
		return "", errors.Wrapf(err, "could not create local artifact %s", localName)
	}
	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		os.Remove(target)
		return "", errors.Wrapf(err, "fetch failed for %s", remoteName)
	}
	if err := out.Close(); err != nil {
		os.Remove(target)
		return "", errors.Wrapf(err, "could not finish writing %s", localName)
	}

	f.collector.ObserveArtifactFetch(localName, time.Since(start))
	f.log.Debug("fetched artifact",
		"run", runHandle, "remote", remoteName, "local", localName)
	return f.paths.Storable(target), nil
}
