package upsert

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/compare"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/models"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==================== Upsert Tests ====================

func TestUpsert_CreateAssignsMetadata(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Upsert(ctx, trail("Trail-1"), writeRequest())
	require.NoError(t, err)
	assert.False(t, res.Failed())
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, "trail-1", res.ID)
	assert.Equal(t, "Create", res.Operation)
	require.NotNil(t, res.ObjectChanged)
	assert.Equal(t, 1, *res.ObjectChanged)
	assert.Equal(t, 1, *res.ObjectImageChanged)
	assert.Equal(t, []string{"idm-marketplace"}, res.PushChannels)

	got, err := f.svc.Get(ctx, "TRAIL-1", false, nil)
	require.NoError(t, err)
	require.NotNil(t, got.Meta)
	assert.Equal(t, "trail-1", got.Meta.ID)
	assert.Equal(t, "spatialdata", got.Meta.Type)
	assert.Equal(t, "digiway", got.Meta.Source)
	assert.False(t, got.Meta.Reduced)
	assert.Equal(t, &models.UpdateInfo{UpdatedBy: "tester", UpdateSource: "digiway.import"}, got.Meta.UpdateInfo)
	assert.Empty(t, got.Meta.UpdateHistory)
	assert.Equal(t, []string{"ANONYMOUS", "IDM"}, got.AccessRoles)
	assert.True(t, t0.Equal(*got.FirstImport))
	assert.True(t, t0.Equal(*got.LastChange))

	changes, err := f.svc.Changes(ctx, "trail-1", 0)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Nil(t, changes[0].Changes)
	assert.Equal(t, "tester", changes[0].EditedBy)
	assert.Equal(t, "open", changes[0].License)

	require.Len(t, f.notifier.notes, 1)
	assert.Equal(t, "trail-1", f.notifier.notes[0].ID)
	assert.Equal(t, []string{"trail-1"}, f.mirror.put)
}

func TestUpsert_UnchangedRecordKeepsLastChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Upsert(ctx, trail("trail-1"), writeRequest())
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	res, err := f.svc.Upsert(ctx, trail("TRAIL-1"), writeRequest())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 1, res.Updated, "a single upsert always writes")
	assert.Equal(t, 0, *res.ObjectChanged)
	assert.Equal(t, 0, *res.ObjectImageChanged)
	assert.Nil(t, res.Changes)
	assert.True(t, res.Unchanged())

	got, err := f.svc.Get(ctx, "trail-1", false, nil)
	require.NoError(t, err)
	assert.True(t, t0.Equal(*got.LastChange))
	assert.True(t, t0.Equal(*got.FirstImport))
	assert.True(t, t0.Add(time.Hour).Equal(*got.Meta.LastUpdate))
	assert.Len(t, got.Meta.UpdateHistory, 1)

	changes, err := f.svc.Changes(ctx, "trail-1", 0)
	require.NoError(t, err)
	assert.Len(t, changes, 1, "unchanged writes leave no audit entry")
	assert.Len(t, f.notifier.notes, 1)
	assert.Len(t, f.mirror.put, 1)
}

func TestUpsert_ChangeDetected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Upsert(ctx, trail("trail-1"), writeRequest())
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	changed := trail("trail-1")
	changed.Shortname = "Renamed"
	res, err := f.svc.Upsert(ctx, changed, writeRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, *res.ObjectChanged)
	assert.Equal(t, 0, *res.ObjectImageChanged)
	assert.Equal(t, compare.Patch{{Path: "Shortname", Op: compare.OpReplace, Old: "Trail trail-1", New: "Renamed"}}, res.Changes)

	got, err := f.svc.Get(ctx, "trail-1", false, nil)
	require.NoError(t, err)
	assert.True(t, t0.Add(time.Hour).Equal(*got.LastChange))
	assert.True(t, t0.Equal(*got.FirstImport))

	changes, err := f.svc.Changes(ctx, "trail-1", 0)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	var patch []map[string]any
	require.NoError(t, json.Unmarshal(changes[0].Changes, &patch))
	require.Len(t, patch, 1)
	assert.Equal(t, "Shortname", patch[0]["path"])
	assert.Equal(t, "digiway", changes[0].DataSource)
	assert.Len(t, f.notifier.notes, 2)
}

func TestUpsert_SideEffectFailuresAreSwallowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Upsert(ctx, trail("trail-1"), writeRequest())
	require.NoError(t, err)
	assert.Empty(t, f.recorder.failures)

	_, err = f.store.DB().ExecContext(ctx, "DROP TABLE rawchanges")
	require.NoError(t, err)
	f.notifier.err = errors.New("broker down")
	f.mirror.err = errors.New("index down")

	changed := trail("trail-1")
	changed.Shortname = "Renamed"
	res, err := f.svc.Upsert(ctx, changed, writeRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 0, res.Error)
	assert.Equal(t, []string{"audit", "notify", "mirror"}, f.recorder.failures)

	got, err := f.svc.Get(ctx, "trail-1", false, nil)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Shortname)
}

func TestUpsert_ImageChangeDetected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Upsert(ctx, trail("trail-1"), writeRequest())
	require.NoError(t, err)

	changed := trail("trail-1")
	changed.ImageGallery[0].ImageURL = "https://img/2.jpg"
	res, err := f.svc.Upsert(ctx, changed, writeRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, *res.ObjectChanged)
	assert.Equal(t, 1, *res.ObjectImageChanged)
	require.Len(t, f.notifier.notes, 2)
	assert.True(t, f.notifier.notes[1].ImagesChanged)
}

func TestUpsert_PushChannelsUnion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := trail("trail-1")
	first.PublishedOn = []string{"a", "b"}
	_, err := f.svc.Upsert(ctx, first, writeRequest())
	require.NoError(t, err)

	second := trail("trail-1")
	second.PublishedOn = []string{"c", "a"}
	res, err := f.svc.Upsert(ctx, second, writeRequest())
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, res.PushChannels)
}

func TestUpsert_NotAllowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := writeRequest()
	req.Create.Condition = "Active=true"
	inactive := trail("trail-1")
	inactive.Active = false

	res, err := f.svc.Upsert(ctx, inactive, req)
	require.NoError(t, err)
	assert.True(t, res.Failed())
	assert.Equal(t, ReasonNotAllowed, res.ErrorReason)

	_, err = f.svc.Get(ctx, "trail-1", false, nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, f.notifier.notes)
	assert.Empty(t, f.mirror.put)
}

func TestUpsert_UpdateConstraintsApplyToExisting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Upsert(ctx, trail("trail-1"), writeRequest())
	require.NoError(t, err)

	req := writeRequest()
	req.Create.Condition = "Source=digiway"
	req.Update.Condition = "Source=other"
	res, err := f.svc.Upsert(ctx, trail("trail-1"), req)
	require.NoError(t, err)
	assert.Equal(t, ReasonNotAllowed, res.ErrorReason)
}

func TestUpsert_ExistenceChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	updateOnly := writeRequest()
	updateOnly.Info.ErrorWhenDataIsNew = true
	res, err := f.svc.Upsert(ctx, trail("trail-1"), updateOnly)
	require.NoError(t, err)
	assert.Equal(t, ReasonUpdateNotFound, res.ErrorReason)

	_, err = f.svc.Upsert(ctx, trail("trail-1"), writeRequest())
	require.NoError(t, err)

	createOnly := writeRequest()
	createOnly.Info.ErrorWhenDataExists = true
	res, err = f.svc.Upsert(ctx, trail("trail-1"), createOnly)
	require.NoError(t, err)
	assert.Equal(t, ReasonExistsAlready, res.ErrorReason)
}

func TestUpsert_NoData(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Upsert(context.Background(), nil, writeRequest())
	require.NoError(t, err)
	assert.Equal(t, ReasonNoData, res.ErrorReason)
}

func TestUpsert_GeneratesMissingID(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Upsert(context.Background(), trail(""), writeRequest())
	require.NoError(t, err)
	assert.Equal(t, "generated-1", res.ID)
}

func TestUpsert_ReducedVariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := writeRequest()
	req.Reduced = true
	res, err := f.svc.Upsert(ctx, trail("T-1"), req)
	require.NoError(t, err)
	assert.Equal(t, "t-1", res.ID)

	got, err := f.svc.Get(ctx, "t-1", true, nil)
	require.NoError(t, err)
	assert.True(t, got.Meta.Reduced)

	_, err = f.svc.Get(ctx, "t-1", false, nil)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.svc.Get(ctx, "T-1_REDUCED", true, nil)
	assert.NoError(t, err, "the suffix is not appended twice")
	assert.Equal(t, []string{"t-1_reduced"}, f.mirror.put)
}

func TestUpsert_InvisibleRecordIsTreatedAsAbsent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	closed := trail("trail-1")
	closed.AccessRoles = []string{"IDM"}
	_, err := f.svc.Upsert(ctx, closed, writeRequest())
	require.NoError(t, err)

	req := writeRequest()
	req.Create.AccessRoles = []string{"ANONYMOUS"}
	req.Update.AccessRoles = []string{"ANONYMOUS"}
	_, err = f.svc.Upsert(ctx, trail("trail-1"), req)
	assert.Error(t, err, "the create path collides with the hidden row")
}

func TestUpsert_Rules(t *testing.T) {
	cfg := models.DefaultRulesConfig()
	cfg.MaxUpdateHistory = 2
	rules := models.NewRules(cfg)

	st := newTestStore(t)
	clock := &fakeClock{now: t0}
	svc, err := New(st, models.NewSpatialData, Options{Rules: &rules, Clock: clock.Now})
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		r := trail("trail-1")
		r.Source = "Magnolia"
		r.LicenseInfo.ClosedData = true
		_, err := svc.Upsert(ctx, r, writeRequest())
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}

	got, err := svc.Get(ctx, "trail-1", false, nil)
	require.NoError(t, err)
	assert.Equal(t, "idm", got.Meta.Source)
	assert.Equal(t, []string{"IDM"}, got.AccessRoles)
	assert.Len(t, got.Meta.UpdateHistory, 2)
}

func TestUpsert_RawDataID(t *testing.T) {
	f := newFixture(t)
	id := int64(7)
	req := writeRequest()
	req.RawDataID = &id

	_, err := f.svc.Upsert(context.Background(), trail("trail-1"), req)
	require.NoError(t, err)

	var stored int64
	require.NoError(t, f.store.DB().QueryRow("SELECT rawdataid FROM spatialdatas WHERE id = 'trail-1'").Scan(&stored))
	assert.Equal(t, int64(7), stored)
}

func TestUpsert_WithoutComparison(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := writeRequest()
	req.Compare = models.CompareConfig{}
	res, err := f.svc.Upsert(ctx, trail("trail-1"), req)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Nil(t, res.ObjectChanged)
	assert.False(t, res.CompareObject)

	changes, err := f.svc.Changes(ctx, "trail-1", 0)
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Empty(t, f.notifier.notes)
	assert.Equal(t, []string{"trail-1"}, f.mirror.put)
}

func TestUpsert_MarketIDsAreUpperCase(t *testing.T) {
	st := newTestStore(t)
	svc, err := New(st, models.NewMarket, Options{})
	require.NoError(t, err)

	m := &models.Market{Base: models.Base{ID: "market-bz", Active: true, Source: "municipality"}}
	res, err := svc.Upsert(context.Background(), m, writeRequest())
	require.NoError(t, err)
	assert.Equal(t, "MARKET-BZ", res.ID)
	assert.Equal(t, "market", res.Type)

	got, err := svc.Get(context.Background(), "market-bz", false, nil)
	require.NoError(t, err)
	assert.Equal(t, "municipality", got.Meta.Source)
}

// ==================== Delete Tests ====================

func deleteRequest() DeleteRequest {
	return DeleteRequest{
		Info: models.DataInfo{Operation: models.OperationDelete},
		Edit: models.EditInfo{Editor: "tester", Source: "api"},
	}
}

func TestDelete_BadRequest(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Delete(context.Background(), " ", deleteRequest())
	require.NoError(t, err)
	assert.Equal(t, ReasonBadRequest, res.ErrorReason)
}

func TestDelete_NotFound(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Delete(context.Background(), "Missing", deleteRequest())
	require.NoError(t, err)
	assert.Equal(t, ReasonNotFound, res.ErrorReason)
	assert.Equal(t, "missing", res.ID)
}

func TestDelete_RemovesAndNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Upsert(ctx, trail("trail-1"), writeRequest())
	require.NoError(t, err)

	res, err := f.svc.Delete(ctx, "TRAIL-1", deleteRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, []string{"idm-marketplace"}, res.PushChannels)

	_, err = f.svc.Get(ctx, "trail-1", false, nil)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.Len(t, f.notifier.notes, 2)
	assert.True(t, f.notifier.notes[1].Deleted)
	assert.Equal(t, []string{"trail-1"}, f.mirror.removed)
}

func TestDelete_SideEffectFailuresAreSwallowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Upsert(ctx, trail("trail-1"), writeRequest())
	require.NoError(t, err)

	f.notifier.err = errors.New("broker down")
	f.mirror.err = errors.New("index down")
	res, err := f.svc.Delete(ctx, "trail-1", deleteRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, []string{"notify", "mirror"}, f.recorder.failures)

	_, err = f.svc.Get(ctx, "trail-1", false, nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDelete_NotAllowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Upsert(ctx, trail("trail-1"), writeRequest())
	require.NoError(t, err)

	req := deleteRequest()
	req.Constraints.Condition = "Active=false"
	res, err := f.svc.Delete(ctx, "trail-1", req)
	require.NoError(t, err)
	assert.Equal(t, ReasonNotAllowed, res.ErrorReason)

	_, err = f.svc.Get(ctx, "trail-1", false, nil)
	assert.NoError(t, err)
}

func TestDelete_RoleFilteredLookup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	closed := trail("trail-1")
	closed.AccessRoles = []string{"IDM"}
	_, err := f.svc.Upsert(ctx, closed, writeRequest())
	require.NoError(t, err)

	req := deleteRequest()
	req.Constraints.AccessRoles = []string{"ANONYMOUS"}
	res, err := f.svc.Delete(ctx, "trail-1", req)
	require.NoError(t, err)
	assert.Equal(t, ReasonNotFound, res.ErrorReason)
}

func TestDelete_ReducedVariants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reduced := writeRequest()
	reduced.Reduced = true
	for _, id := range []string{"a", "b"} {
		_, err := f.svc.Upsert(ctx, trail(id), writeRequest())
		require.NoError(t, err)
		_, err = f.svc.Upsert(ctx, trail(id), reduced)
		require.NoError(t, err)
	}

	// only the reduced row of a, addressed with and without suffix
	req := deleteRequest()
	req.Reduced = true
	res, err := f.svc.Delete(ctx, "A_REDUCED", req)
	require.NoError(t, err)
	assert.Equal(t, "a_reduced", res.ID)
	_, err = f.svc.Get(ctx, "a", false, nil)
	assert.NoError(t, err, "the full record survives")

	// deleting the full record leaves the reduced one by default
	_, err = f.svc.Delete(ctx, "b", deleteRequest())
	require.NoError(t, err)
	_, err = f.svc.Get(ctx, "b", true, nil)
	assert.NoError(t, err)

	// unless explicitly requested
	_, err = f.svc.Upsert(ctx, trail("b"), writeRequest())
	require.NoError(t, err)
	req = deleteRequest()
	req.IncludeReduced = true
	res, err = f.svc.Delete(ctx, "b", req)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Deleted)
	_, err = f.svc.Get(ctx, "b", true, nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
