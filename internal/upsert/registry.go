package upsert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/models"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/store"
)

// ErrInvalidRecord marks request bodies that do not decode into the kind's
// record type
var ErrInvalidRecord = errors.New("invalid record")

// Handler is a Service with the record type erased. Records travel as JSON.
type Handler interface {
	Kind() models.Kind
	GetRecord(ctx context.Context, id string, reduced bool, roles []string) (models.Record, error)
	UpsertJSON(ctx context.Context, body []byte, req Request) (Result, error)
	UpsertBatchJSON(ctx context.Context, body []byte, req Request, mode Mode) (BatchResult, error)
	Delete(ctx context.Context, id string, req DeleteRequest) (Result, error)
	Changes(ctx context.Context, id string, limit int) ([]*models.RawChange, error)
	Sweep(ctx context.Context, req SweepRequest) (UpdateDetail, error)
}

var (
	_ Handler = (*Service[*models.SpatialData])(nil)
	_ Handler = (*Service[*models.ActivityPoi])(nil)
	_ Handler = (*Service[*models.Market])(nil)
)

// GetRecord is Get returning the record as models.Record
func (s *Service[T]) GetRecord(ctx context.Context, id string, reduced bool, roles []string) (models.Record, error) {
	r, err := s.Get(ctx, id, reduced, roles)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// UpsertJSON decodes a single record and upserts it. An empty or null
// body yields a "No Data" result.
func (s *Service[T]) UpsertJSON(ctx context.Context, body []byte, req Request) (Result, error) {
	data, err := s.decodeBody(body)
	if err != nil {
		return Result{}, err
	}
	return s.Upsert(ctx, data, req)
}

// UpsertBatchJSON decodes a JSON array of records and upserts them
func (s *Service[T]) UpsertBatchJSON(ctx context.Context, body []byte, req Request, mode Mode) (BatchResult, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return BatchResult{}, fmt.Errorf("%w: %s batch: %v", ErrInvalidRecord, s.kind, err)
	}
	items := make([]T, len(raw))
	for i, r := range raw {
		data, err := s.decodeBody(r)
		if err != nil {
			return BatchResult{}, fmt.Errorf("item %d: %w", i, err)
		}
		items[i] = data
	}
	return s.UpsertBatch(ctx, items, req, mode)
}

func (s *Service[T]) decodeBody(body []byte) (T, error) {
	var zero T
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return zero, nil
	}
	data, err := s.decode(trimmed)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return data, nil
}

// Registry holds one Handler per record kind
type Registry struct {
	handlers map[models.Kind]Handler
}

// NewRegistry builds services for every supported kind sharing opts
func NewRegistry(st *store.Store, opts Options) (*Registry, error) {
	spatial, err := New(st, models.NewSpatialData, opts)
	if err != nil {
		return nil, err
	}
	pois, err := New(st, models.NewActivityPoi, opts)
	if err != nil {
		return nil, err
	}
	markets, err := New(st, models.NewMarket, opts)
	if err != nil {
		return nil, err
	}
	r := &Registry{handlers: make(map[models.Kind]Handler)}
	r.Register(spatial)
	r.Register(pois)
	r.Register(markets)
	return r, nil
}

// Register adds or replaces the handler of h.Kind()
func (r *Registry) Register(h Handler) {
	if r.handlers == nil {
		r.handlers = make(map[models.Kind]Handler)
	}
	r.handlers[h.Kind()] = h
}

// Lookup resolves a kind name case-insensitively
func (r *Registry) Lookup(name string) (Handler, error) {
	kind, err := models.ParseKind(name)
	if err != nil {
		return nil, err
	}
	h, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("no handler for kind %s", kind)
	}
	return h, nil
}

// Kinds returns the registered kinds sorted by name
func (r *Registry) Kinds() []models.Kind {
	kinds := make([]models.Kind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
