package models

import "time"

// FeedMetadata describes a downloadable schedule bundle as reported by its server.
type FeedMetadata struct {
	URL           string
	LastModified  time.Time
	ETag          string
	ContentLength int64
}

// VersionName identifies the bundle contents. The ETag is preferred because
// some servers rewrite Last-Modified on every deploy.
func (m FeedMetadata) VersionName() string {
	if m.ETag != "" {
		return "etag:" + m.ETag
	}
	if !m.LastModified.IsZero() {
		return "modified:" + m.LastModified.UTC().Format(time.RFC3339)
	}
	return "import:" + time.Now().UTC().Format(time.RFC3339)
}

type VersionInfo struct {
	VersionID   int       `json:"version_id"`
	VersionName string    `json:"version_name"`
	CreatedAt   time.Time `json:"created_at"`
	IsActive    bool      `json:"is_active"`
	SourceURL   string    `json:"source_url"`
}
