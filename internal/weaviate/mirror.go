package weaviate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/models"
	"github.com/sirupsen/logrus"
)

// Mirror writes records into one Weaviate class per kind
type Mirror struct {
	client ClientInterface
	logger logrus.FieldLogger

	mu      sync.Mutex
	classes map[string]bool
}

// NewMirror creates a mirror on top of client
func NewMirror(client ClientInterface, logger logrus.FieldLogger) *Mirror {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Mirror{client: client, logger: logger, classes: make(map[string]bool)}
}

// ClassName returns the index class of a kind
func ClassName(kind models.Kind) string {
	switch kind {
	case models.KindSpatialData:
		return "SpatialData"
	case models.KindActivityPoi:
		return "OdhActivityPoi"
	case models.KindMarket:
		return "Market"
	}
	s := string(kind)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ObjectID derives the stable object id of a storage key
func ObjectID(kind models.Kind, key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("geosync:"+string(kind)+"/"+key)).String()
}

func classSchema(kind models.Kind) *Class {
	off := false
	text := []string{"text"}
	return &Class{
		Class:       ClassName(kind),
		Description: fmt.Sprintf("Mirrored %s records", kind),
		Properties: []*Property{
			{Name: "odhId", DataType: text},
			{Name: "kind", DataType: text},
			{Name: "shortname", DataType: text},
			{Name: "source", DataType: text},
			{Name: "active", DataType: []string{"boolean"}},
			{Name: "accessRoles", DataType: []string{"text[]"}},
			{Name: "publishedOn", DataType: []string{"text[]"}},
			{Name: "lastChange", DataType: []string{"date"}},
			{Name: "document", DataType: text, IndexSearchable: &off},
		},
	}
}

// EnsureClass creates the class of kind unless it exists
func (m *Mirror) EnsureClass(ctx context.Context, kind models.Kind) error {
	name := ClassName(kind)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.classes[name] {
		return nil
	}

	existing, err := m.client.GetClasses(ctx)
	if err != nil {
		return err
	}
	for _, c := range existing {
		if strings.EqualFold(c, name) {
			m.classes[name] = true
			return nil
		}
	}
	if err := m.client.CreateClass(ctx, classSchema(kind)); err != nil {
		return fmt.Errorf("failed to create class %s: %w", name, err)
	}
	m.logger.WithField("class", name).Info("created index class")
	m.classes[name] = true
	return nil
}

// Put creates or replaces the object of the record stored under key
func (m *Mirror) Put(ctx context.Context, key string, rec models.Record) error {
	kind := rec.Kind()
	if err := m.EnsureClass(ctx, kind); err != nil {
		return err
	}
	props, err := properties(key, rec)
	if err != nil {
		return err
	}
	obj := &Object{ID: ObjectID(kind, key), Class: ClassName(kind), Properties: props}

	_, err = m.client.GetObject(ctx, obj.Class, obj.ID)
	switch {
	case errors.Is(err, ErrObjectNotFound):
		err = m.client.CreateObject(ctx, obj)
	case err == nil:
		err = m.client.UpdateObject(ctx, obj)
	}
	if err != nil {
		return fmt.Errorf("failed to index %s %s: %w", kind, key, err)
	}
	m.logger.WithFields(logrus.Fields{"kind": kind, "id": key}).Debug("indexed record")
	return nil
}

// Remove deletes the object of key. Missing objects are not an error.
func (m *Mirror) Remove(ctx context.Context, kind models.Kind, key string) error {
	err := m.client.DeleteObject(ctx, ClassName(kind), ObjectID(kind, key))
	if err != nil && !errors.Is(err, ErrObjectNotFound) {
		return fmt.Errorf("failed to remove %s %s from index: %w", kind, key, err)
	}
	return nil
}

// Count returns the number of indexed records of kind
func (m *Mirror) Count(ctx context.Context, kind models.Kind) (int, error) {
	return m.client.GetClassCount(ctx, ClassName(kind))
}

func properties(key string, rec models.Record) (map[string]interface{}, error) {
	doc, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	b := rec.Core()
	props := map[string]interface{}{
		"odhId":       key,
		"kind":        string(rec.Kind()),
		"shortname":   b.Shortname,
		"source":      b.Source,
		"active":      b.Active,
		"accessRoles": nonNil(b.AccessRoles),
		"document":    string(doc),
	}
	if p, ok := rec.(models.PublishedOnAware); ok {
		props["publishedOn"] = nonNil(p.Channels())
	}
	if b.LastChange != nil {
		props["lastChange"] = b.LastChange.UTC().Format(time.RFC3339Nano)
	}
	return props, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
