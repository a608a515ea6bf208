package upsert

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/models"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/notify"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/store"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []notify.Notification
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return r.err
}

type recordingMirror struct {
	mu      sync.Mutex
	put     []string
	removed []string
	err     error
}

func (m *recordingMirror) Put(_ context.Context, key string, _ models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put = append(m.put, key)
	return m.err
}

func (m *recordingMirror) Remove(_ context.Context, _ models.Kind, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, key)
	return m.err
}

type recordingRecorder struct {
	mu       sync.Mutex
	failures []string
}

func (r *recordingRecorder) ObserveItem(models.Kind, string, string)         {}
func (r *recordingRecorder) ObserveBatch(models.Kind, string, time.Duration) {}

func (r *recordingRecorder) ObserveSideEffectFailure(_ models.Kind, effect string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, effect)
}

type fixture struct {
	store    *store.Store
	clock    *fakeClock
	notifier *recordingNotifier
	mirror   *recordingMirror
	recorder *recordingRecorder
	svc      *Service[*models.SpatialData]
}

// newTestStore creates a new sqlite store in a temp directory for testing.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Initialize(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    newTestStore(t),
		clock:    &fakeClock{now: t0},
		notifier: &recordingNotifier{},
		mirror:   &recordingMirror{},
		recorder: &recordingRecorder{},
	}
	svc, err := New(f.store, models.NewSpatialData, Options{
		Clock:    f.clock.Now,
		Notifier: f.notifier,
		Mirror:   f.mirror,
		Recorder: f.recorder,
		NewID:    func(models.Kind) string { return "Generated-1" },
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func trail(id string) *models.SpatialData {
	return &models.SpatialData{
		Base: models.Base{ID: id, Active: true, Shortname: "Trail " + id, Source: "digiway"},
		Detail: map[string]models.Detail{
			"de": {Title: "Weg"},
		},
		Geo: map[string]models.GeoInfo{
			"position": {Latitude: 46.5, Longitude: 11.3, Default: true},
		},
		ImageGallery: []models.ImageGallery{{ImageURL: "https://img/1.jpg"}},
		PublishedOn:  []string{"idm-marketplace"},
		LicenseInfo:  &models.LicenseInfo{License: "CC0"},
	}
}

func writeRequest() Request {
	return Request{
		Info:    models.DataInfo{Operation: models.OperationCreateAndUpdate, SaveChangesToDB: true},
		Edit:    models.EditInfo{Editor: "tester", Source: "digiway.import"},
		Compare: models.CompareConfig{CompareData: true, CompareImages: true},
	}
}
