package upsert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/store"
	"github.com/sirupsen/logrus"
)

// Mode selects how a batch treats failing items
type Mode string

const (
	// BestEffort writes every valid item and reports failures per item
	BestEffort Mode = "besteffort"
	// Transactional writes all items in one transaction or none of them
	Transactional Mode = "transactional"
)

// ParseMode resolves a batch mode name, defaulting to BestEffort
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", BestEffort:
		return BestEffort, nil
	case Transactional:
		return Transactional, nil
	}
	return "", fmt.Errorf("unknown batch mode %q", s)
}

// UpsertBatch creates or updates many records with one bulk lookup.
// Unchanged records are not written. In Transactional mode any failing item
// rolls the batch back and a *BatchValidationError is returned.
func (s *Service[T]) UpsertBatch(ctx context.Context, items []T, req Request, mode Mode) (BatchResult, error) {
	if len(items) == 0 {
		return BatchResult{Success: true}, nil
	}
	start := time.Now()
	var (
		res BatchResult
		err error
	)
	if mode == Transactional {
		res, err = s.batchTransactional(ctx, items, req)
	} else {
		res, err = s.batchBestEffort(ctx, items, req)
	}
	s.recorder.ObserveBatch(s.kind, string(mode), time.Since(start))

	entry := s.logger.WithFields(logrus.Fields{
		"kind":      s.kind,
		"mode":      mode,
		"total":     res.TotalProcessed,
		"created":   res.Created,
		"updated":   res.Updated,
		"unchanged": res.Unchanged,
		"errors":    res.Errors,
	})
	if err != nil {
		entry.WithError(err).Warn("batch upsert failed")
	} else {
		entry.Info("batch upsert")
	}
	return res, err
}

// prepareAll normalizes ids, reads every visible stored record in one query
// and prepares each item
func (s *Service[T]) prepareAll(ctx context.Context, rec *store.Records, table string, items []T, req Request) ([]PreparedItem[T], error) {
	prepared := make([]PreparedItem[T], len(items))
	keys := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))

	for i, data := range items {
		p := PreparedItem[T]{Index: i, Data: data}
		if isNil(data) {
			r := errorResult("", s.desc.Type, "", ReasonNoData)
			p.Err = &r
			prepared[i] = p
			continue
		}
		key, err := s.assignKey(data, req.Reduced)
		if err != nil {
			return nil, err
		}
		p.Key = key
		lower := strings.ToLower(key)
		if seen[lower] {
			r := errorResult(data.Core().ID, s.desc.Type, "", ReasonDuplicateInBulk)
			p.Err = &r
			prepared[i] = p
			continue
		}
		seen[lower] = true
		keys = append(keys, key)
		prepared[i] = p
	}

	docs, err := rec.GetMany(ctx, table, keys, req.lookupRoles())
	if err != nil {
		return nil, err
	}

	for i := range prepared {
		p := prepared[i]
		if p.Err != nil {
			continue
		}
		if doc, ok := docs[strings.ToLower(p.Key)]; ok {
			stored, err := s.decode(doc)
			if err != nil {
				r := errorResult(p.Data.Core().ID, s.desc.Type, "", err.Error())
				p.Err = &r
				prepared[i] = p
				continue
			}
			p.Stored = stored
			p.Exists = true
		}
		prepared[i] = s.prepare(p, req)
	}
	return prepared, nil
}

func (s *Service[T]) batchBestEffort(ctx context.Context, items []T, req Request) (BatchResult, error) {
	table := s.table(req.Info)
	rec := s.store.Records()

	prepared, err := s.prepareAll(ctx, rec, table, items, req)
	if err != nil {
		return BatchResult{Success: false, ErrorMessage: err.Error(), TotalProcessed: len(items)},
			fmt.Errorf("failed to prepare batch: %w", err)
	}

	results := make([]Result, len(prepared))
	written := make([]bool, len(prepared))

	for i, item := range prepared {
		switch {
		case item.Err != nil:
			results[i] = *item.Err
		case item.Unchanged():
			results[i] = s.resultOf(item, req.Compare.CompareData, false)
		}
	}

	// creates first, then updates
	for i, item := range prepared {
		if item.Err != nil || !item.IsCreate {
			continue
		}
		if _, err := s.write(ctx, rec, table, item, req.RawDataID); err != nil {
			if ctx.Err() != nil {
				return BatchResult{Success: false, ErrorMessage: ctx.Err().Error(), TotalProcessed: len(items)}, ctx.Err()
			}
			results[i] = errorResult(item.Data.Core().ID, s.desc.Type, operationOf(item),
				fmt.Sprintf("Insert failed for ID '%s': %v", item.Key, err))
			continue
		}
		results[i] = s.resultOf(item, req.Compare.CompareData, true)
		written[i] = true
	}

	for i, item := range prepared {
		if item.Err != nil || item.IsCreate || item.Unchanged() {
			continue
		}
		n, err := s.write(ctx, rec, table, item, req.RawDataID)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return BatchResult{Success: false, ErrorMessage: ctx.Err().Error(), TotalProcessed: len(items)}, ctx.Err()
			}
			results[i] = errorResult(item.Data.Core().ID, s.desc.Type, operationOf(item),
				fmt.Sprintf("Update failed for ID '%s': %v", item.Key, err))
		case n == 0 && s.retry.MaxRetries > 0:
			// the row changed since the bulk read; redo this item on its own
			r, err := s.Upsert(ctx, item.Data, req)
			if err != nil {
				r = errorResult(item.Data.Core().ID, s.desc.Type, operationOf(item), err.Error())
			}
			results[i] = r
			continue
		case n == 0:
			results[i] = errorResult(item.Data.Core().ID, s.desc.Type, operationOf(item), ReasonInternalError)
		default:
			results[i] = s.resultOf(item, req.Compare.CompareData, true)
			written[i] = true
		}
	}

	for i, item := range prepared {
		if written[i] {
			s.afterWrite(ctx, item, req)
		}
	}
	return s.summarize(results), nil
}

func (s *Service[T]) batchTransactional(ctx context.Context, items []T, req Request) (BatchResult, error) {
	table := s.table(req.Info)
	failed := func(err error, errors int) (BatchResult, error) {
		return BatchResult{Success: false, ErrorMessage: err.Error(), TotalProcessed: len(items), Errors: errors}, err
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return failed(err, 0)
	}
	defer tx.Rollback()

	prepared, err := s.prepareAll(ctx, tx.Records, table, items, req)
	if err != nil {
		return failed(fmt.Errorf("failed to prepare batch: %w", err), 0)
	}

	invalid := make(map[string]string)
	for _, item := range prepared {
		if item.Err != nil {
			invalid[indexKey(item.Index)] = item.Err.ErrorReason
		}
	}
	if len(invalid) > 0 {
		return failed(&BatchValidationError{Errors: invalid}, len(invalid))
	}

	for _, item := range prepared {
		if !item.IsCreate {
			continue
		}
		if _, err := s.write(ctx, tx.Records, table, item, req.RawDataID); err != nil {
			if ctx.Err() != nil {
				return failed(ctx.Err(), 0)
			}
			return failed(&BatchValidationError{Errors: map[string]string{
				indexKey(item.Index): fmt.Sprintf("Insert failed for ID '%s': %v", item.Key, err),
			}}, 1)
		}
	}
	for _, item := range prepared {
		if item.IsCreate || item.Unchanged() {
			continue
		}
		n, err := s.write(ctx, tx.Records, table, item, req.RawDataID)
		if err != nil && ctx.Err() != nil {
			return failed(ctx.Err(), 0)
		}
		if err != nil || n == 0 {
			reason := fmt.Sprintf("Update failed for ID '%s' - no rows affected", item.Key)
			if err != nil {
				reason = fmt.Sprintf("Update failed for ID '%s': %v", item.Key, err)
			}
			return failed(&BatchValidationError{Errors: map[string]string{indexKey(item.Index): reason}}, 1)
		}
	}

	if err := tx.Commit(); err != nil {
		return failed(fmt.Errorf("failed to commit batch: %w", err), 0)
	}

	results := make([]Result, len(prepared))
	for i, item := range prepared {
		unchanged := item.Unchanged()
		results[i] = s.resultOf(item, req.Compare.CompareData, !unchanged)
		if !unchanged {
			s.afterWrite(ctx, item, req)
		}
	}
	return s.summarize(results), nil
}

// summarize counts per-item results
func (s *Service[T]) summarize(results []Result) BatchResult {
	b := BatchResult{Success: true, TotalProcessed: len(results), Results: results}
	for _, r := range results {
		switch {
		case r.Failed():
			b.Errors++
		case r.Created > 0:
			b.Created++
		case r.Unchanged() && r.Updated == 0:
			b.Unchanged++
		default:
			b.Updated++
		}
		s.observe("batch", r)
	}
	return b
}
