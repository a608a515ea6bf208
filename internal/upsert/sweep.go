package upsert

import (
	"context"
	"fmt"
	"strings"

	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/ident"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/models"
)

// SweepMode selects what happens to records a source no longer delivers
type SweepMode string

const (
	SweepNone    SweepMode = "none"
	SweepDisable SweepMode = "disable"
	SweepDelete  SweepMode = "delete"
)

// ParseSweepMode resolves a sweep mode name, defaulting to SweepNone
func ParseSweepMode(s string) (SweepMode, error) {
	switch SweepMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", SweepNone:
		return SweepNone, nil
	case SweepDisable:
		return SweepDisable, nil
	case SweepDelete:
		return SweepDelete, nil
	}
	return "", fmt.Errorf("unknown sweep mode %q", s)
}

// SweepRequest configures a sweep
type SweepRequest struct {
	Source  string
	SeenIDs []string
	Mode    SweepMode
	// ClearPublishedOn removes the publication channels of disabled records
	ClearPublishedOn bool
	Edit             models.EditInfo
}

// Sweep handles the stored records of a source that are missing from the
// ids of its latest import: they are deactivated or deleted. Reduced
// variants are removed together with their full record on delete and left
// alone otherwise.
func (s *Service[T]) Sweep(ctx context.Context, req SweepRequest) (UpdateDetail, error) {
	var detail UpdateDetail
	if req.Mode == "" || req.Mode == SweepNone {
		return detail, nil
	}
	source := s.rules.NormalizeSource(req.Source)
	if source == "" {
		return detail, fmt.Errorf("sweep requires a source")
	}

	seen := make(map[string]bool, len(req.SeenIDs))
	for _, id := range req.SeenIDs {
		key, err := s.key(id, false)
		if err != nil {
			return detail, err
		}
		seen[strings.ToLower(key)] = true
	}

	ids, err := s.store.Records().IDsBySource(ctx, s.desc.Table, source)
	if err != nil {
		return detail, fmt.Errorf("failed to list records of %s: %w", source, err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return detail, err
		}
		if ident.IsReduced(id) || seen[strings.ToLower(id)] {
			continue
		}

		var res Result
		switch req.Mode {
		case SweepDelete:
			res, err = s.Delete(ctx, id, DeleteRequest{
				Info:           models.DataInfo{Operation: models.OperationDelete},
				Edit:           req.Edit,
				IncludeReduced: true,
			})
		case SweepDisable:
			res, err = s.disable(ctx, id, req)
		default:
			return detail, fmt.Errorf("unknown sweep mode %q", req.Mode)
		}
		if err != nil {
			return detail, err
		}
		if res.ID == "" {
			continue
		}
		detail.Add(res)
	}

	s.logger.WithField("source", source).WithField("mode", req.Mode).
		Infof("sweep: %d disabled or updated, %d deleted, %d errors", detail.Updated, detail.Deleted, detail.Errors)
	return detail, nil
}

// disable marks a stored record inactive. Records that are already inactive
// (and need no channel cleanup) are skipped with an empty Result.
func (s *Service[T]) disable(ctx context.Context, id string, req SweepRequest) (Result, error) {
	rec, err := s.Get(ctx, id, false, nil)
	if err != nil {
		return Result{}, err
	}
	b := rec.Core()
	clearChannels := req.ClearPublishedOn && s.caps.setChannels != nil && len(s.caps.channelsOf(rec)) > 0
	if !b.Active && !clearChannels {
		return Result{}, nil
	}
	b.Active = false
	if clearChannels {
		s.caps.setChannels(rec, []string{})
	}
	return s.Upsert(ctx, rec, Request{
		Info:    models.DataInfo{Operation: models.OperationUpdate, ErrorWhenDataIsNew: true, SaveChangesToDB: true},
		Edit:    req.Edit,
		Compare: models.CompareConfig{CompareData: true, CompareImages: true},
	})
}
