// Package upsert implements the record write engine: id normalization,
// metadata assignment, permission checks, change detection, single and
// batch writes, deletes and the audit trail.
package upsert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/ident"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/models"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/notify"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/store"
	"github.com/sirupsen/logrus"
)

// Notifier receives change notifications for records with publication channels
type Notifier interface {
	Notify(ctx context.Context, n notify.Notification) error
}

// Mirror keeps a secondary copy of every written record, e.g. a search
// index. Records are addressed by their storage key.
type Mirror interface {
	Put(ctx context.Context, key string, rec models.Record) error
	Remove(ctx context.Context, kind models.Kind, key string) error
}

// Recorder observes engine outcomes
type Recorder interface {
	ObserveItem(kind models.Kind, operation, outcome string)
	ObserveBatch(kind models.Kind, mode string, took time.Duration)
	ObserveSideEffectFailure(kind models.Kind, effect string)
}

// Options configures a Service. Zero fields get defaults.
type Options struct {
	Rules    *models.Rules
	Clock    func() time.Time
	NewID    ident.Generator
	Notifier Notifier
	Mirror   Mirror
	Recorder Recorder
	Retry    *RetryPolicy
	Logger   logrus.FieldLogger
}

// Service writes records of one kind
type Service[T models.Record] struct {
	store     *store.Store
	kind      models.Kind
	desc      models.Descriptor
	newRecord func() T
	caps      capabilities[T]

	rules    models.Rules
	now      func() time.Time
	newID    ident.Generator
	notifier Notifier
	mirror   Mirror
	recorder Recorder
	retry    RetryPolicy
	logger   logrus.FieldLogger
}

// New creates a Service for the kind produced by newRecord
func New[T models.Record](st *store.Store, newRecord func() T, opts Options) (*Service[T], error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	kind := newRecord().Kind()
	desc, err := kind.Descriptor()
	if err != nil {
		return nil, err
	}

	s := &Service[T]{
		store:     st,
		kind:      kind,
		desc:      desc,
		newRecord: newRecord,
		caps:      capabilitiesOf[T](),
		rules:     models.DefaultRules(),
		now:       time.Now,
		newID:     ident.NewUUID,
		notifier:  opts.Notifier,
		mirror:    opts.Mirror,
		recorder:  opts.Recorder,
		retry:     DefaultRetryPolicy(),
		logger:    opts.Logger,
	}
	if opts.Rules != nil {
		s.rules = *opts.Rules
	}
	if opts.Clock != nil {
		s.now = opts.Clock
	}
	if opts.NewID != nil {
		s.newID = opts.NewID
	}
	if opts.Retry != nil {
		s.retry = *opts.Retry
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		s.logger = l
	}
	return s, nil
}

// Kind returns the record kind written by the service
func (s *Service[T]) Kind() models.Kind {
	return s.kind
}

// table returns the table a request targets
func (s *Service[T]) table(info models.DataInfo) string {
	if info.Table != "" {
		return info.Table
	}
	return s.desc.Table
}

// key returns the storage key of id
func (s *Service[T]) key(id string, reduced bool) (string, error) {
	return ident.Normalize(s.kind, id, reduced)
}

// lookup reads and decodes the stored record under key, honoring roles
func (s *Service[T]) lookup(ctx context.Context, rec *store.Records, table, key string, roles []string) (T, bool, error) {
	var zero T
	data, err := rec.Get(ctx, table, key, roles)
	if errors.Is(err, store.ErrNotFound) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	r, err := s.decode(data)
	if err != nil {
		return zero, false, err
	}
	return r, true, nil
}

func (s *Service[T]) decode(data []byte) (T, error) {
	r := s.newRecord()
	if err := json.Unmarshal(data, r); err != nil {
		var zero T
		return zero, fmt.Errorf("failed to decode %s: %w", s.kind, err)
	}
	return r, nil
}

// Get returns the record stored under id when visible to roles
func (s *Service[T]) Get(ctx context.Context, id string, reduced bool, roles []string) (T, error) {
	var zero T
	key, err := s.key(id, reduced)
	if err != nil {
		return zero, err
	}
	r, found, err := s.lookup(ctx, s.store.Records(), s.desc.Table, key, roles)
	if err != nil {
		return zero, err
	}
	if !found {
		return zero, store.ErrNotFound
	}
	return r, nil
}

// Changes returns the audit trail of a record, newest first
func (s *Service[T]) Changes(ctx context.Context, id string, limit int) ([]*models.RawChange, error) {
	key, err := s.key(id, false)
	if err != nil {
		return nil, err
	}
	return s.store.ListChanges(ctx, key, limit)
}

// capabilities holds accessors for the optional record capabilities of T,
// resolved once per service
type capabilities[T models.Record] struct {
	gallery     func(T) []models.ImageGallery
	channels    func(T) []string
	setChannels func(T, []string)
}

func capabilitiesOf[T models.Record]() capabilities[T] {
	var c capabilities[T]
	var zero T
	if _, ok := any(zero).(models.ImageGalleryAware); ok {
		c.gallery = func(r T) []models.ImageGallery { return any(r).(models.ImageGalleryAware).Gallery() }
	}
	if _, ok := any(zero).(models.PublishedOnAware); ok {
		c.channels = func(r T) []string { return any(r).(models.PublishedOnAware).Channels() }
		c.setChannels = func(r T, ch []string) { any(r).(models.PublishedOnAware).SetChannels(ch) }
	}
	return c
}

func (c capabilities[T]) channelsOf(r T) []string {
	if c.channels == nil {
		return []string{}
	}
	ch := c.channels(r)
	if ch == nil {
		return []string{}
	}
	return append([]string{}, ch...)
}

// isNil reports whether a record value is absent
func isNil[T models.Record](r T) bool {
	v := reflect.ValueOf(r)
	return !v.IsValid() || (v.Kind() == reflect.Pointer && v.IsNil())
}

type nopRecorder struct{}

func (nopRecorder) ObserveItem(models.Kind, string, string)         {}
func (nopRecorder) ObserveBatch(models.Kind, string, time.Duration) {}
func (nopRecorder) ObserveSideEffectFailure(models.Kind, string)    {}
