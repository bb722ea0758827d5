package reference

import (
	"context"
	"errors"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestaozabele/academico/internal/apperr"
	"github.com/gestaozabele/academico/internal/events"
)

type failingBus struct{ events.Bus }

func (failingBus) Publish(ctx context.Context, name string, payload []byte) error {
	return errors.New("broker fora do ar")
}

func TestNewSyncIDIsSortableULID(t *testing.T) {
	prev := NewSyncID()
	for i := 0; i < 100; i++ {
		next := NewSyncID()
		_, err := ulid.Parse(next)
		require.NoError(t, err)
		require.Greater(t, next, prev)
		prev = next
	}
}

func TestSourceChangesReachConsumerReplica(t *testing.T) {
	bus := events.NewMemoryBus(zerolog.Nop())
	defer bus.Close()

	owner := newMemStore()
	replica := newMemStore()
	src := NewSource(owner, bus, zerolog.Nop())
	engine := NewEngine(replica, bus, zerolog.Nop(), WithRetry(fastRetry))
	require.NoError(t, engine.Start(context.Background()))
	defer engine.Stop()

	ctx := context.Background()
	fac, err := src.Create(ctx, KindFaculty, SourceInput{Title: "Engineering"})
	require.NoError(t, err)
	bus.Wait()

	dep, err := src.Create(ctx, KindDepartment, SourceInput{Title: "CSE", ParentSyncID: fac.SyncID})
	require.NoError(t, err)
	bus.Wait()

	replFac, ok := replica.get(KindFaculty, fac.SyncID)
	require.True(t, ok)
	assert.NotEqual(t, fac.ID, replFac.ID, "local ids are independent per service")

	replDep, ok := replica.get(KindDepartment, dep.SyncID)
	require.True(t, ok)
	require.NotNil(t, replDep.ParentID)
	assert.Equal(t, replFac.ID, *replDep.ParentID)

	_, err = src.Update(ctx, KindFaculty, fac.SyncID, SourceInput{Title: "Engineering & Tech"})
	require.NoError(t, err)
	bus.Wait()
	replFac, _ = replica.get(KindFaculty, fac.SyncID)
	assert.Equal(t, "Engineering & Tech", replFac.Title)

	require.NoError(t, src.Delete(ctx, KindDepartment, dep.SyncID))
	bus.Wait()
	_, ok = replica.get(KindDepartment, dep.SyncID)
	assert.False(t, ok)
}

func TestSourceFacultyDeleteDetachesDepartments(t *testing.T) {
	bus := events.NewMemoryBus(zerolog.Nop())
	defer bus.Close()

	owner := newMemStore()
	replica := newMemStore()
	src := NewSource(owner, bus, zerolog.Nop())
	engine := NewEngine(replica, bus, zerolog.Nop(), WithRetry(fastRetry))
	require.NoError(t, engine.Start(context.Background()))
	defer engine.Stop()

	ctx := context.Background()
	fac, err := src.Create(ctx, KindFaculty, SourceInput{Title: "Engineering"})
	require.NoError(t, err)
	bus.Wait()
	dep, err := src.Create(ctx, KindDepartment, SourceInput{Title: "CSE", ParentSyncID: fac.SyncID})
	require.NoError(t, err)
	bus.Wait()

	require.NoError(t, src.Delete(ctx, KindFaculty, fac.SyncID))
	bus.Wait()

	for name, store := range map[string]*memStore{"owner": owner, "replica": replica} {
		d, ok := store.get(KindDepartment, dep.SyncID)
		require.True(t, ok, name)
		assert.Nil(t, d.ParentID, name)
		assert.Empty(t, d.ParentSyncID, name)
		pending, err := store.PendingDepartments(ctx)
		require.NoError(t, err)
		assert.Empty(t, pending, name)
	}
}

func TestSourceValidatesInput(t *testing.T) {
	src := NewSource(newMemStore(), events.NewMemoryBus(zerolog.Nop()), zerolog.Nop())
	ctx := context.Background()

	_, err := src.Create(ctx, KindSemester, SourceInput{Title: "Autumn"})
	assert.ErrorIs(t, err, apperr.ErrBadRequest)

	_, err = src.Create(ctx, Kind("course"), SourceInput{Title: "x"})
	assert.ErrorIs(t, err, apperr.ErrBadRequest)

	_, err = src.Create(ctx, KindDepartment, SourceInput{Title: "CSE", ParentSyncID: "nope"})
	assert.ErrorIs(t, err, apperr.ErrPreconditionFailed)
}

func TestSourceMissingEntity(t *testing.T) {
	store := newMemStore()
	src := NewSource(store, events.NewMemoryBus(zerolog.Nop()), zerolog.Nop())
	ctx := context.Background()

	_, err := src.Update(ctx, KindFaculty, "nope", SourceInput{Title: "x"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	err = src.Delete(ctx, KindFaculty, "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.False(t, store.tombstoned(KindFaculty, "nope"))
}

func TestSourcePublishFailureKeepsLocalWrite(t *testing.T) {
	store := newMemStore()
	src := NewSource(store, failingBus{}, zerolog.Nop())

	e, err := src.Create(context.Background(), KindFaculty, SourceInput{Title: "Engineering"})
	assert.ErrorIs(t, err, apperr.ErrStorageFailed)
	require.NotNil(t, e)

	_, ok := store.get(KindFaculty, e.SyncID)
	assert.True(t, ok)
}
