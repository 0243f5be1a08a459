package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ttctransit-data/internal/common/logger"
	"github.com/ttctransit-data/pkg/gtfs-static/models"
)

const (
	httpTimeout = 30 * time.Second
	userAgent   = "ttctransit-data/1.0"
)

// HTTPMetadataFetcher reads bundle metadata from response headers without
// downloading the body.
type HTTPMetadataFetcher struct {
	client *http.Client
	logger logger.Logger
}

func NewHTTPMetadataFetcher(logger logger.Logger) *HTTPMetadataFetcher {
	return &HTTPMetadataFetcher{
		client: &http.Client{
			Timeout: httpTimeout,
		},
		logger: logger,
	}
}

func (f *HTTPMetadataFetcher) FetchMetadata(ctx context.Context, url string) (*models.FeedMetadata, error) {
	f.logger.Debug("Fetching metadata", "url", url)

	resp, err := f.do(ctx, http.MethodHead, url)
	if err != nil {
		return nil, err
	}
	// Some file hosts refuse HEAD; the headers of a GET are just as good.
	if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
		resp.Body.Close()
		f.logger.Debug("HEAD not supported, retrying with GET", "url", url, "status_code", resp.StatusCode)
		if resp, err = f.do(ctx, http.MethodGet, url); err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Error("Server returned error status", "status_code", resp.StatusCode, "url", url)
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	meta := &models.FeedMetadata{
		URL:           url,
		ETag:          strings.Trim(strings.TrimPrefix(resp.Header.Get("ETag"), "W/"), `"`),
		ContentLength: resp.ContentLength,
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			meta.LastModified = t
		} else {
			f.logger.Warn("Unparseable Last-Modified header", "value", lm)
		}
	}

	f.logger.Info("Metadata fetched successfully",
		"url", url,
		"etag", meta.ETag,
		"last_modified", meta.LastModified,
		"content_length", meta.ContentLength)

	return meta, nil
}

func (f *HTTPMetadataFetcher) do(ctx context.Context, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Error("Failed to execute request", "url", url, "method", method, "error", err)
		return nil, fmt.Errorf("executing request to %s: %w", url, err)
	}
	return resp, nil
}
