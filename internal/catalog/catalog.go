// Package catalog stores metadata for uploaded videos.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/jun/vidshare/internal/apperr"
	"github.com/jun/vidshare/internal/kv"
	"github.com/jun/vidshare/internal/model"
)

// Catalog reads and writes VideoRecords.
type Catalog struct {
	table kv.Table
	now   func() time.Time
}

// New creates a Catalog over table.
func New(table kv.Table) *Catalog {
	return &Catalog{table: table, now: time.Now}
}

// Get returns the video, or an error wrapping kv.ErrNotFound.
func (c *Catalog) Get(ctx context.Context, videoID string) (*model.VideoRecord, error) {
	v, err := kv.Load[model.VideoRecord](ctx, c.table, videoID)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// List yields every video in the catalog.
func (c *Catalog) List(ctx context.Context) iter.Seq2[model.VideoRecord, error] {
	return kv.All[model.VideoRecord](ctx, c.table)
}

// Register records metadata for a video whose object is already in the bucket.
func (c *Catalog) Register(ctx context.Context, v model.VideoRecord) (*model.VideoRecord, error) {
	v.VideoID = strings.TrimSpace(v.VideoID)
	v.FileName = strings.TrimSpace(v.FileName)
	v.Title = strings.TrimSpace(v.Title)
	switch {
	case v.VideoID == "":
		return nil, apperr.Validation("videoId is required")
	case v.FileName == "":
		return nil, apperr.Validation("fileName is required")
	case v.Title == "":
		return nil, apperr.Validation("title is required")
	case v.FileSize < 0:
		return nil, apperr.Validation("fileSize must not be negative")
	}
	if v.UploadDate.IsZero() {
		v.UploadDate = c.now().UTC()
	}
	v.DownloadCount = 0

	item, err := kv.Encode(v)
	if err != nil {
		return nil, err
	}
	version, err := c.table.Create(ctx, v.VideoID, item)
	if err != nil {
		if errors.Is(err, kv.ErrAlreadyExists) {
			return nil, apperr.Validation(fmt.Sprintf("video %s is already registered", v.VideoID))
		}
		return nil, apperr.Upstream("failed to register video", err)
	}
	v.Version = version
	return &v, nil
}

// IncrementDownloads adds one to the video's download count, re-reading and
// retrying on version conflicts up to attempts times.
func (c *Catalog) IncrementDownloads(ctx context.Context, videoID string, attempts int) error {
	for range max(attempts, 1) {
		v, err := c.Get(ctx, videoID)
		if err != nil {
			return err
		}
		v.DownloadCount++

		item, err := kv.Encode(v)
		if err != nil {
			return err
		}
		_, err = c.table.Update(ctx, videoID, item, v.Version)
		if errors.Is(err, kv.ErrVersionConflict) {
			continue
		}
		return err
	}
	return fmt.Errorf("video %s: %w after %d attempts", videoID, kv.ErrVersionConflict, attempts)
}
