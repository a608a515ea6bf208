package upsert

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/constraint"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/ident"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/models"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/store"
	"github.com/sirupsen/logrus"
)

// Upsert creates or updates a single record. The record is written even
// when it is unchanged, refreshing its metadata. State errors (permission,
// existence) are reported in the Result; the error return is reserved for
// storage failures.
func (s *Service[T]) Upsert(ctx context.Context, data T, req Request) (Result, error) {
	if isNil(data) {
		res := errorResult("", s.desc.Type, string(req.Info.Operation), ReasonNoData)
		s.observe("upsert", res)
		return res, nil
	}
	key, err := s.assignKey(data, req.Reduced)
	if err != nil {
		return Result{}, err
	}
	table := s.table(req.Info)
	rec := s.store.Records()

	var item PreparedItem[T]
	res, err := s.retry.attempt(ctx, func() (Result, bool, error) {
		stored, exists, err := s.lookup(ctx, rec, table, key, req.lookupRoles())
		if err != nil {
			return Result{}, false, err
		}
		item = s.prepare(PreparedItem[T]{Key: key, Data: data, Stored: stored, Exists: exists}, req)
		if item.Err != nil {
			return *item.Err, false, nil
		}
		n, err := s.write(ctx, rec, table, item, req.RawDataID)
		if err != nil {
			return Result{}, false, err
		}
		if n == 0 {
			return errorResult(data.Core().ID, s.desc.Type, operationOf(item), ReasonInternalError), true, nil
		}
		return s.resultOf(item, req.Compare.CompareData, true), false, nil
	})
	if err != nil {
		s.recorder.ObserveItem(s.kind, "upsert", "error")
		return Result{}, fmt.Errorf("failed to upsert %s %s: %w", s.kind, key, err)
	}

	if !res.Failed() {
		s.afterWrite(ctx, item, req)
	}
	s.observe("upsert", res)
	s.logger.WithFields(logrus.Fields{
		"kind":      s.kind,
		"id":        key,
		"operation": res.Operation,
		"error":     res.ErrorReason,
	}).Debug("upsert")
	return res, nil
}

// DeleteRequest configures a delete
type DeleteRequest struct {
	Info        models.DataInfo
	Edit        models.EditInfo
	Constraints models.CRUDConstraints
	// Reduced targets the reduced variant of the id
	Reduced bool
	// IncludeReduced also removes the reduced variant of a full record
	IncludeReduced bool
}

// Delete removes a single record. The publication channels of the stored
// record are reported so that subscribers can be told about the removal.
func (s *Service[T]) Delete(ctx context.Context, id string, req DeleteRequest) (Result, error) {
	if strings.TrimSpace(id) == "" {
		res := errorResult(id, s.desc.Type, string(models.OperationDelete), ReasonBadRequest)
		s.observe("delete", res)
		return res, nil
	}
	key, err := s.key(id, req.Reduced)
	if err != nil {
		return Result{}, err
	}
	table := s.table(req.Info)
	rec := s.store.Records()

	op := string(models.OperationDelete)
	res, err := s.retry.attempt(ctx, func() (Result, bool, error) {
		stored, exists, err := s.lookup(ctx, rec, table, key, req.Constraints.AccessRoles)
		if err != nil {
			return Result{}, false, err
		}
		if !exists {
			return errorResult(key, s.desc.Type, op, ReasonNotFound), false, nil
		}
		if !constraint.Allowed(stored, req.Constraints.Condition) {
			return errorResult(key, s.desc.Type, op, ReasonNotAllowed), false, nil
		}
		channels := s.caps.channelsOf(stored)

		n, err := rec.Delete(ctx, table, key)
		if err != nil {
			return Result{}, false, err
		}
		if n == 0 {
			return errorResult(key, s.desc.Type, op, ReasonInternalError), true, nil
		}
		return Result{ID: key, Type: s.desc.Type, Operation: op, Deleted: 1, PushChannels: channels}, false, nil
	})
	if err != nil {
		s.recorder.ObserveItem(s.kind, "delete", "error")
		return Result{}, fmt.Errorf("failed to delete %s %s: %w", s.kind, key, err)
	}
	if res.Failed() {
		s.observe("delete", res)
		return res, nil
	}

	if req.IncludeReduced && !ident.IsReduced(key) {
		reducedKey, _ := s.key(key, true)
		n, err := rec.Delete(ctx, table, reducedKey)
		if err != nil {
			s.logger.WithError(err).WithField("id", reducedKey).Warn("failed to delete reduced record")
		} else if n > 0 {
			res.Deleted += int(n)
			s.mirrorRemove(ctx, reducedKey)
		}
	}
	s.publish(ctx, key, res.PushChannels, false, true, req.Edit.Source)
	s.mirrorRemove(ctx, key)
	s.observe("delete", res)
	s.logger.WithFields(logrus.Fields{"kind": s.kind, "id": key}).Debug("delete")
	return res, nil
}

// write stores a prepared item and returns the number of rows affected
func (s *Service[T]) write(ctx context.Context, rec *store.Records, table string, item PreparedItem[T], rawDataID *int64) (int64, error) {
	doc, err := json.Marshal(item.Data)
	if err != nil {
		return 0, fmt.Errorf("failed to encode %s: %w", item.Key, err)
	}
	row := store.Row{ID: item.Key, Data: doc, AccessRoles: item.Data.Core().AccessRoles, RawDataID: rawDataID}
	if item.IsCreate {
		return rec.Insert(ctx, table, row)
	}
	return rec.Update(ctx, table, row)
}

// resultOf reports a prepared item. written is false for unchanged items a
// batch skipped.
func (s *Service[T]) resultOf(item PreparedItem[T], compared, written bool) Result {
	r := Result{
		ID:                 item.Data.Core().ID,
		Type:               s.desc.Type,
		Operation:          operationOf(item),
		CompareObject:      compared,
		ObjectChanged:      item.ObjectChanged,
		ObjectImageChanged: item.ObjectImageChanged,
		Changes:            item.Changes,
		PushChannels:       item.PushChannels,
	}
	if r.PushChannels == nil {
		r.PushChannels = []string{}
	}
	switch {
	case item.IsCreate:
		r.Created = 1
	case written:
		r.Updated = 1
	}
	return r
}

func operationOf[T models.Record](item PreparedItem[T]) string {
	if item.IsCreate {
		return string(models.OperationCreate)
	}
	return string(models.OperationUpdate)
}

// observe records the outcome class of a result
func (s *Service[T]) observe(operation string, r Result) {
	outcome := "updated"
	switch {
	case r.Failed():
		outcome = "error"
	case r.Created > 0:
		outcome = "created"
	case r.Deleted > 0:
		outcome = "deleted"
	case r.Unchanged():
		outcome = "unchanged"
	}
	s.recorder.ObserveItem(s.kind, operation, outcome)
}
