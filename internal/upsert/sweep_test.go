package upsert

import (
	"context"
	"testing"

	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/models"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, f *fixture, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := f.svc.Upsert(context.Background(), trail(id), writeRequest())
		require.NoError(t, err)
	}
	other := trail("foreign")
	other.Source = "other"
	_, err := f.svc.Upsert(context.Background(), other, writeRequest())
	require.NoError(t, err)
}

func sweepRequest(mode SweepMode, seen ...string) SweepRequest {
	return SweepRequest{
		Source:  "DigiWay",
		SeenIDs: seen,
		Mode:    mode,
		Edit:    models.EditInfo{Editor: "importer", Source: "digiway.import"},
	}
}

func TestParseSweepMode(t *testing.T) {
	for in, want := range map[string]SweepMode{"": SweepNone, "none": SweepNone, "Disable": SweepDisable, "delete": SweepDelete} {
		got, err := ParseSweepMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseSweepMode("archive")
	assert.Error(t, err)
}

func TestSweep_None(t *testing.T) {
	f := newFixture(t)
	seed(t, f, "a", "b")

	detail, err := f.svc.Sweep(context.Background(), sweepRequest(SweepNone, "a"))
	require.NoError(t, err)
	assert.Equal(t, UpdateDetail{}, detail)
}

func TestSweep_Disable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seed(t, f, "a", "b", "c")

	detail, err := f.svc.Sweep(ctx, sweepRequest(SweepDisable, "A"))
	require.NoError(t, err)
	assert.Equal(t, 2, detail.Updated)
	assert.Equal(t, 2, detail.ObjectChanged)
	assert.Zero(t, detail.Errors)

	for id, active := range map[string]bool{"a": true, "b": false, "c": false, "foreign": true} {
		r, err := f.svc.Get(ctx, id, false, nil)
		require.NoError(t, err)
		assert.Equal(t, active, r.Active, id)
	}

	b, err := f.svc.Get(ctx, "b", false, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"idm-marketplace"}, b.PublishedOn)
	assert.Equal(t, "importer", b.Meta.UpdateInfo.UpdatedBy)

	// already inactive records are left alone
	detail, err = f.svc.Sweep(ctx, sweepRequest(SweepDisable, "a"))
	require.NoError(t, err)
	assert.Equal(t, UpdateDetail{}, detail)
}

func TestSweep_DisableClearsPublishedOn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seed(t, f, "a", "b")

	req := sweepRequest(SweepDisable, "a")
	req.ClearPublishedOn = true
	detail, err := f.svc.Sweep(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, detail.Updated)
	assert.Equal(t, []string{"idm-marketplace"}, detail.PushChannels)

	b, err := f.svc.Get(ctx, "b", false, nil)
	require.NoError(t, err)
	assert.False(t, b.Active)
	assert.Empty(t, b.PublishedOn)
}

func TestSweep_Delete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seed(t, f, "a", "b", "c")

	reduced := writeRequest()
	reduced.Reduced = true
	_, err := f.svc.Upsert(ctx, trail("c"), reduced)
	require.NoError(t, err)

	detail, err := f.svc.Sweep(ctx, sweepRequest(SweepDelete, "a"))
	require.NoError(t, err)
	assert.Equal(t, 3, detail.Deleted)

	for _, id := range []string{"b", "c"} {
		_, err := f.svc.Get(ctx, id, false, nil)
		assert.ErrorIs(t, err, store.ErrNotFound, id)
	}
	_, err = f.svc.Get(ctx, "c", true, nil)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.svc.Get(ctx, "a", false, nil)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, "foreign", false, nil)
	assert.NoError(t, err)
}

func TestSweep_RequiresSource(t *testing.T) {
	f := newFixture(t)
	req := sweepRequest(SweepDelete)
	req.Source = " "
	_, err := f.svc.Sweep(context.Background(), req)
	assert.Error(t, err)
}
