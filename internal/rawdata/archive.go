// Package rawdata archives the source payloads an import was built from.
// Bodies go inline into the rawdata table or, when a blob store is
// configured, into object storage with only the key kept in the row.
package rawdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/models"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/store"
	"github.com/sirupsen/logrus"
)

// BlobStore holds payload bodies
type BlobStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Payload is a fetched source document
type Payload struct {
	Type            string
	Source          string
	SourceInterface string
	SourceID        string
	SourceURL       string
	License         string
	Format          string // e.g. "geojson", "json"
	Body            []byte
}

// Archiver writes payloads to the rawdata table
type Archiver struct {
	store  *store.Store
	blobs  BlobStore
	now    func() time.Time
	logger logrus.FieldLogger
}

// NewArchiver creates an archiver. blobs may be nil to keep bodies inline.
func NewArchiver(st *store.Store, blobs BlobStore, logger logrus.FieldLogger) *Archiver {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Archiver{store: st, blobs: blobs, now: time.Now, logger: logger}
}

// Archive stores p and returns the id of its rawdata row
func (a *Archiver) Archive(ctx context.Context, p Payload) (int64, error) {
	now := a.now().UTC()
	rd := &models.RawData{
		Type:            p.Type,
		DataSource:      strings.ToLower(p.Source),
		SourceInterface: p.SourceInterface,
		SourceID:        p.SourceID,
		SourceURL:       p.SourceURL,
		ImportDate:      now,
		License:         p.License,
		RawFormat:       p.Format,
	}

	if a.blobs != nil {
		key := blobKey(rd.DataSource, p.Format, now)
		if err := a.blobs.Put(ctx, key, p.Body, contentType(p.Format)); err != nil {
			return 0, err
		}
		rd.BlobKey = key
	} else {
		rd.Raw = string(p.Body)
	}

	if err := a.store.InsertRawData(ctx, rd); err != nil {
		return 0, err
	}
	a.logger.WithFields(logrus.Fields{
		"id":     rd.ID,
		"source": rd.DataSource,
		"bytes":  len(p.Body),
		"blob":   rd.BlobKey,
	}).Info("archived raw data")
	return rd.ID, nil
}

// Load returns an archived row together with its body
func (a *Archiver) Load(ctx context.Context, id int64) (*models.RawData, []byte, error) {
	rd, err := a.store.GetRawData(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if rd.BlobKey == "" {
		return rd, []byte(rd.Raw), nil
	}
	if a.blobs == nil {
		return rd, nil, fmt.Errorf("raw data %d is stored in object storage, which is not configured", id)
	}
	body, err := a.blobs.Get(ctx, rd.BlobKey)
	if err != nil {
		return rd, nil, err
	}
	return rd, body, nil
}

// blobKey lays objects out as <source>/<yyyy>/<mm>/<dd>/<uuid>.<format>
func blobKey(source, format string, t time.Time) string {
	if source == "" {
		source = "unknown"
	}
	ext := format
	if ext == "" {
		ext = "raw"
	}
	return fmt.Sprintf("%s/%s/%s.%s", source, t.Format("2006/01/02"), uuid.NewString(), ext)
}

func contentType(format string) string {
	switch strings.ToLower(format) {
	case "geojson":
		return "application/geo+json"
	case "json":
		return "application/json"
	case "xml":
		return "application/xml"
	}
	return "application/octet-stream"
}
