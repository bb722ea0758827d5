package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBusDeliversToSubscribers(t *testing.T) {
	bus := NewMemoryBus(zerolog.Nop())
	defer bus.Close()

	got := make(chan []byte, 1)
	_, err := bus.Subscribe(context.Background(), AcademicFacultyCreated, func(ctx context.Context, payload []byte) error {
		got <- payload
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), AcademicFacultyCreated, []byte(`{"id":"f1"}`)))

	select {
	case p := <-got:
		assert.JSONEq(t, `{"id":"f1"}`, string(p))
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestMemoryBusIgnoresOtherNamesAndClosedSubscriptions(t *testing.T) {
	bus := NewMemoryBus(zerolog.Nop())
	defer bus.Close()

	var calls int32
	sub, err := bus.Subscribe(context.Background(), AcademicSemesterDeleted, func(ctx context.Context, payload []byte) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), AcademicSemesterCreated, []byte(`{}`)))
	require.NoError(t, sub.Close())
	require.NoError(t, bus.Publish(context.Background(), AcademicSemesterDeleted, []byte(`{}`)))
	bus.Wait()

	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestMemoryBusHandlerErrorsAndPanicsAreContained(t *testing.T) {
	bus := NewMemoryBus(zerolog.Nop())
	defer bus.Close()

	var ok int32
	_, err := bus.Subscribe(context.Background(), StudentCreated, func(ctx context.Context, payload []byte) error {
		return errors.New("falhou")
	})
	require.NoError(t, err)
	_, err = bus.Subscribe(context.Background(), StudentCreated, func(ctx context.Context, payload []byte) error {
		panic("explodiu")
	})
	require.NoError(t, err)
	_, err = bus.Subscribe(context.Background(), StudentCreated, func(ctx context.Context, payload []byte) error {
		atomic.AddInt32(&ok, 1)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), StudentCreated, []byte(`{}`)))
	bus.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&ok))
}

func TestMemoryBusRejectsAfterClose(t *testing.T) {
	bus := NewMemoryBus(zerolog.Nop())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(context.Background(), StudentCreated, nil), ErrClosed)
	_, err := bus.Subscribe(context.Background(), StudentCreated, func(context.Context, []byte) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestUpsertPayloadParentFallsBackToLegacyKey(t *testing.T) {
	var p UpsertPayload
	require.NoError(t, json.Unmarshal([]byte(`{"id":"d1","title":"CSE","academicFacultyId":"f1"}`), &p))
	assert.Equal(t, "f1", p.Parent())

	require.NoError(t, json.Unmarshal([]byte(`{"id":"d1","parentSyncId":"f2","academicFacultyId":"f1"}`), &p))
	assert.Equal(t, "f2", p.Parent())
}

func TestTripleFor(t *testing.T) {
	tr := TripleFor("academic-department")
	assert.Equal(t, AcademicDepartmentCreated, tr.Created)
	assert.Equal(t, AcademicDepartmentUpdated, tr.Updated)
	assert.Equal(t, AcademicDepartmentDeleted, tr.Deleted)
}

func TestNewKafkaBusRequiresBrokers(t *testing.T) {
	_, err := NewKafkaBus(KafkaConfig{}, zerolog.Nop())
	require.Error(t, err)

	bus, err := NewKafkaBus(KafkaConfig{Brokers: []string{"localhost:9092"}, GroupID: "academico"}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, bus.Close())
}
