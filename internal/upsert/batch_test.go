package upsert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/models"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, BestEffort, m)

	m, err = ParseMode("Transactional")
	require.NoError(t, err)
	assert.Equal(t, Transactional, m)

	_, err = ParseMode("eventually")
	assert.Error(t, err)
}

// ==================== Best-Effort Tests ====================

func TestBatch_Empty(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.UpsertBatch(context.Background(), nil, writeRequest(), BestEffort)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Zero(t, res.TotalProcessed)
}

func TestBatch_BestEffortPartialFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := writeRequest()
	req.Create.Condition = "Active=true"
	inactive := trail("c")
	inactive.Active = false

	res, err := f.svc.UpsertBatch(ctx, []*models.SpatialData{trail("a"), trail("b"), inactive}, req, BestEffort)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.TotalProcessed)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.Errors)
	require.Len(t, res.Results, 3)
	assert.Equal(t, ReasonNotAllowed, res.Results[2].ErrorReason)

	n, err := f.store.Records().Count(ctx, "spatialdatas")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestBatch_BestEffortSkipsUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpsertBatch(ctx, []*models.SpatialData{trail("a"), trail("b")}, writeRequest(), BestEffort)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	changed := trail("B")
	changed.Shortname = "Renamed"
	res, err := f.svc.UpsertBatch(ctx, []*models.SpatialData{trail("A"), changed, trail("c")}, writeRequest(), BestEffort)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Unchanged)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 0, res.Results[0].Updated)
	assert.Equal(t, 0, *res.Results[0].ObjectChanged)

	a, err := f.svc.Get(ctx, "a", false, nil)
	require.NoError(t, err)
	assert.True(t, t0.Equal(*a.Meta.LastUpdate), "unchanged records are not rewritten")

	b, err := f.svc.Get(ctx, "b", false, nil)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", b.Shortname)
	assert.True(t, t0.Add(time.Hour).Equal(*b.LastChange))

	changes, err := f.svc.Changes(ctx, "b", 0)
	require.NoError(t, err)
	assert.Len(t, changes, 2)
}

func TestBatch_DuplicateIDs(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.UpsertBatch(context.Background(), []*models.SpatialData{trail("a"), trail("A")}, writeRequest(), BestEffort)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, ReasonDuplicateInBulk, res.Results[1].ErrorReason)
}

func TestBatch_MergedLookupRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	closed := trail("a")
	closed.AccessRoles = []string{"IDM"}
	_, err := f.svc.Upsert(ctx, closed, writeRequest())
	require.NoError(t, err)

	// update roles see the closed record, so it is updated rather than re-created
	req := writeRequest()
	req.Create.AccessRoles = []string{"ANONYMOUS"}
	req.Update.AccessRoles = []string{"IDM"}
	again := trail("a")
	again.AccessRoles = []string{"IDM"}
	res, err := f.svc.UpsertBatch(ctx, []*models.SpatialData{again}, req, BestEffort)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Unchanged)
	assert.Zero(t, res.Errors)
}

func TestBatch_BestEffortInsertFailureIsItemError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	closed := trail("a")
	closed.AccessRoles = []string{"IDM"}
	_, err := f.svc.Upsert(ctx, closed, writeRequest())
	require.NoError(t, err)

	req := writeRequest()
	req.Create.AccessRoles = []string{"ANONYMOUS"}
	req.Update.AccessRoles = []string{"ANONYMOUS"}
	res, err := f.svc.UpsertBatch(ctx, []*models.SpatialData{trail("a"), trail("b")}, req, BestEffort)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 1, res.Created)
	assert.Contains(t, res.Results[0].ErrorReason, "Insert failed for ID 'a'")
}

func TestBatch_BestEffortUndecodableRowIsItemError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.DB().ExecContext(ctx, `INSERT INTO spatialdatas (id, data) VALUES ('bad', '{"Id": 5}')`)
	require.NoError(t, err)

	res, err := f.svc.UpsertBatch(ctx, []*models.SpatialData{trail("good"), trail("bad")}, writeRequest(), BestEffort)
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 1, res.Results[0].Created)
	assert.Contains(t, res.Results[1].ErrorReason, "failed to decode spatialdata")

	_, err = f.svc.Get(ctx, "good", false, nil)
	assert.NoError(t, err)
}

func TestBatch_SideEffectFailuresAreSwallowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.DB().ExecContext(ctx, "DROP TABLE rawchanges")
	require.NoError(t, err)
	f.notifier.err = errors.New("broker down")
	f.mirror.err = errors.New("index down")

	for _, mode := range []Mode{BestEffort, Transactional} {
		items := []*models.SpatialData{trail("a-" + string(mode)), trail("b-" + string(mode))}
		res, err := f.svc.UpsertBatch(ctx, items, writeRequest(), mode)
		require.NoError(t, err, mode)
		assert.True(t, res.Success, mode)
		assert.Equal(t, 2, res.Created, mode)
		assert.Equal(t, 0, res.Errors, mode)
	}
	assert.Len(t, f.recorder.failures, 12)
}

// ==================== Transactional Tests ====================

func TestBatch_TransactionalSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.UpsertBatch(ctx, []*models.SpatialData{trail("a"), trail("b")}, writeRequest(), Transactional)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Created)

	n, err := f.store.Records().Count(ctx, "spatialdatas")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, f.notifier.notes, 2)

	changes, err := f.svc.Changes(ctx, "a", 0)
	require.NoError(t, err)
	assert.Len(t, changes, 1)
}

func TestBatch_TransactionalValidationFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := writeRequest()
	req.Create.Condition = "Active=true"
	inactive := trail("b")
	inactive.Active = false

	res, err := f.svc.UpsertBatch(ctx, []*models.SpatialData{trail("a"), inactive}, req, Transactional)
	require.Error(t, err)
	var verr *BatchValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, map[string]string{"[1]": ReasonNotAllowed}, verr.Errors)
	assert.False(t, res.Success)

	_, err = f.svc.Get(ctx, "a", false, nil)
	assert.ErrorIs(t, err, store.ErrNotFound, "nothing is written")
	assert.Empty(t, f.notifier.notes)
}

func TestBatch_TransactionalWriteFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	closed := trail("x")
	closed.AccessRoles = []string{"IDM"}
	_, err := f.svc.Upsert(ctx, closed, writeRequest())
	require.NoError(t, err)

	req := writeRequest()
	req.Create.AccessRoles = []string{"ANONYMOUS"}
	req.Update.AccessRoles = []string{"ANONYMOUS"}
	_, err = f.svc.UpsertBatch(ctx, []*models.SpatialData{trail("y"), trail("x")}, req, Transactional)
	var verr *BatchValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Errors["[1]"], "Insert failed for ID 'x'")

	_, err = f.svc.Get(ctx, "y", false, nil)
	assert.ErrorIs(t, err, store.ErrNotFound, "earlier writes are rolled back")
}

func TestBatch_TransactionalUndecodableRowIsIndexed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.DB().ExecContext(ctx, `INSERT INTO spatialdatas (id, data) VALUES ('bad', '{"Id": 5}')`)
	require.NoError(t, err)

	_, err = f.svc.UpsertBatch(ctx, []*models.SpatialData{trail("good"), trail("bad")}, writeRequest(), Transactional)
	var verr *BatchValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Errors, 1)
	assert.Contains(t, verr.Errors["[1]"], "failed to decode spatialdata")

	_, err = f.svc.Get(ctx, "good", false, nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBatch_TransactionalCollectsAllPreparationErrors(t *testing.T) {
	f := newFixture(t)
	req := writeRequest()
	req.Info.ErrorWhenDataIsNew = true

	_, err := f.svc.UpsertBatch(context.Background(), []*models.SpatialData{trail("a"), trail("b")}, req, Transactional)
	var verr *BatchValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, map[string]string{
		"[0]": ReasonUpdateNotFound,
		"[1]": ReasonUpdateNotFound,
	}, verr.Errors)
	assert.Equal(t, "batch validation failed: [0]: Data to update Not Found; [1]: Data to update Not Found", verr.Error())
}

func TestBatch_TransactionalCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.UpsertBatch(ctx, []*models.SpatialData{trail("a")}, writeRequest(), Transactional)
	require.Error(t, err)

	n, err := f.store.Records().Count(context.Background(), "spatialdatas")
	require.NoError(t, err)
	assert.Zero(t, n)
}
