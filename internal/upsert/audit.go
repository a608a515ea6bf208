package upsert

import (
	"context"

	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/models"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/notify"
	"github.com/sirupsen/logrus"
)

// afterWrite runs the side effects of a successful write. Failures are
// logged and never change the outcome of the write.
func (s *Service[T]) afterWrite(ctx context.Context, item PreparedItem[T], req Request) {
	changed := item.ObjectChanged != nil && *item.ObjectChanged > 0
	imagesChanged := item.ObjectImageChanged != nil && *item.ObjectImageChanged > 0

	if changed && req.Info.SaveChangesToDB {
		s.saveChanges(ctx, item, req.Edit)
	}
	if changed || imagesChanged {
		s.publish(ctx, item.Data.Core().ID, item.PushChannels, imagesChanged, false, req.Edit.Source)
	}
	if item.ObjectChanged == nil || changed {
		s.mirrorPut(ctx, item.Key, item.Data)
	}
}

// saveChanges appends an audit trail entry for a changed record
func (s *Service[T]) saveChanges(ctx context.Context, item PreparedItem[T], edit models.EditInfo) {
	b := item.Data.Core()
	patch, err := item.Changes.JSON()
	if err != nil {
		s.logger.WithError(err).WithField("id", b.ID).Warn("failed to encode change patch")
		patch = nil
	}

	change := &models.RawChange{
		EditSource: edit.Source,
		EditedBy:   edit.Editor,
		Date:       s.now().UTC(),
		Changes:    patch,
		SourceID:   b.ID,
		Type:       s.desc.Type,
		License:    models.LicenseClass(item.Data),
	}
	if b.Meta != nil {
		change.DataSource = b.Meta.Source
		if b.Meta.LastUpdate != nil {
			change.Date = *b.Meta.LastUpdate
		}
	}

	if err := s.store.InsertChange(ctx, change); err != nil {
		s.recorder.ObserveSideEffectFailure(s.kind, "audit")
		s.logger.WithError(err).WithFields(logrus.Fields{
			"kind": s.kind,
			"id":   b.ID,
		}).Warn("failed to save change audit")
	}
}

// publish notifies subscribers of a changed or deleted record
func (s *Service[T]) publish(ctx context.Context, id string, channels []string, imagesChanged, deleted bool, origin string) {
	if s.notifier == nil || len(channels) == 0 {
		return
	}
	n := notify.Notification{
		ID:            id,
		Type:          s.desc.Type,
		Origin:        origin,
		PushChannels:  channels,
		ImagesChanged: imagesChanged,
		Deleted:       deleted,
		Time:          s.now().UTC(),
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.recorder.ObserveSideEffectFailure(s.kind, "notify")
		s.logger.WithError(err).WithField("id", id).Warn("failed to send change notification")
	}
}

func (s *Service[T]) mirrorPut(ctx context.Context, key string, data T) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Put(ctx, key, data); err != nil {
		s.recorder.ObserveSideEffectFailure(s.kind, "mirror")
		s.logger.WithError(err).WithField("id", key).Warn("failed to mirror record")
	}
}

func (s *Service[T]) mirrorRemove(ctx context.Context, key string) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Remove(ctx, s.kind, key); err != nil {
		s.recorder.ObserveSideEffectFailure(s.kind, "mirror")
		s.logger.WithError(err).WithField("id", key).Warn("failed to remove mirrored record")
	}
}
