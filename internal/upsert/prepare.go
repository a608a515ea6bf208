package upsert

import (
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/compare"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/constraint"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/models"
)

// Request configures a write
type Request struct {
	Info    models.DataInfo
	Edit    models.EditInfo
	Create  models.CRUDConstraints // applies when no stored record is visible
	Update  models.CRUDConstraints // applies when a stored record is visible
	Compare models.CompareConfig
	Reduced bool
	// RawDataID links the written rows to an archived source payload
	RawDataID *int64
}

// lookupRoles returns the visibility filter of the pre-write lookup
func (r Request) lookupRoles() []string {
	return constraint.MergeAccessRoles(r.Create, r.Update)
}

// PreparedItem is a record ready to be written. Err is set when the item
// must not be written; the other outcome fields are then meaningless.
type PreparedItem[T models.Record] struct {
	Index  int
	Key    string
	Data   T
	Stored T
	Exists bool

	IsCreate           bool
	PushChannels       []string
	ObjectChanged      *int // nil when comparison is disabled
	ObjectImageChanged *int
	Changes            compare.Patch

	Err *Result
}

// Unchanged reports whether an existing record is semantically identical to
// the stored one
func (p PreparedItem[T]) Unchanged() bool {
	return !p.IsCreate && p.ObjectChanged != nil && *p.ObjectChanged == 0
}

// assignKey gives data an id when it has none, canonicalizes it and returns
// the storage key
func (s *Service[T]) assignKey(data T, reduced bool) (string, error) {
	b := data.Core()
	if b.ID == "" {
		b.ID = s.newID(s.kind)
	}
	id, err := s.key(b.ID, false)
	if err != nil {
		return "", err
	}
	b.ID = id
	return s.key(id, reduced)
}

// prepare assigns metadata, checks constraints and detects changes. It
// performs no I/O: item.Stored and item.Exists come from the caller's lookup.
func (s *Service[T]) prepare(item PreparedItem[T], req Request) PreparedItem[T] {
	data := item.Data
	b := data.Core()
	now := s.now().UTC()

	meta, err := models.BuildMetadata(data, req.Reduced, s.rules, now)
	if err != nil {
		return s.fail(item, ReasonInternalError)
	}
	meta.UpdateInfo = &models.UpdateInfo{UpdatedBy: req.Edit.Editor, UpdateSource: req.Edit.Source}
	if item.Exists {
		meta.AppendHistory(item.Stored.Core().Meta, s.rules.MaxUpdateHistory())
	}
	b.Meta = meta
	if b.FirstImport == nil {
		b.FirstImport = &now
	}
	b.LastChange = &now
	if len(b.AccessRoles) == 0 {
		b.AccessRoles = s.rules.AccessRoles(licenseOf(data))
	}

	cons := req.Create
	if item.Exists {
		cons = req.Update
	}
	if !constraint.Allowed(data, cons.Condition) {
		return s.fail(item, ReasonNotAllowed)
	}

	if !item.Exists {
		if req.Info.ErrorWhenDataIsNew {
			return s.fail(item, ReasonUpdateNotFound)
		}
		item.IsCreate = true
		item.PushChannels = s.caps.channelsOf(data)
		if req.Compare.CompareData {
			item.ObjectChanged = intPtr(1)
			item.ObjectImageChanged = intPtr(1)
		}
		return item
	}

	if req.Info.ErrorWhenDataExists {
		return s.fail(item, ReasonExistsAlready)
	}

	stored := item.Stored.Core()
	if stored.FirstImport != nil {
		b.FirstImport = stored.FirstImport
	}
	if req.Compare.CompareData {
		if stored.LastChange != nil {
			b.LastChange = stored.LastChange
		}
		ignore := append(append([]string{}, models.DefaultIgnoredFields...), req.Compare.FieldsToIgnore...)
		res := compare.Records(item.Stored, data, ignore, true)
		if res.Equal {
			item.ObjectChanged = intPtr(0)
		} else {
			item.ObjectChanged = intPtr(1)
			item.Changes = res.Patch
			b.LastChange = &now
		}
	}
	if req.Compare.CompareImages && s.caps.gallery != nil {
		if compare.ImageGallery(s.caps.gallery(item.Stored), s.caps.gallery(data), nil) {
			item.ObjectImageChanged = intPtr(0)
		} else {
			item.ObjectImageChanged = intPtr(1)
		}
	}

	item.PushChannels = union(s.caps.channelsOf(data), s.caps.channelsOf(item.Stored))
	return item
}

func (s *Service[T]) fail(item PreparedItem[T], reason string) PreparedItem[T] {
	op := string(models.OperationUpdate)
	if !item.Exists {
		op = string(models.OperationCreate)
	}
	r := errorResult(item.Data.Core().ID, s.desc.Type, op, reason)
	item.Err = &r
	return item
}

func licenseOf(r models.Record) *models.LicenseInfo {
	if la, ok := r.(models.LicenseAware); ok {
		return la.License()
	}
	return nil
}
