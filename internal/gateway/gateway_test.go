package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/fairline/loft/internal/engine"
	"github.com/fairline/loft/internal/registry"
	"github.com/fairline/loft/pkg/datum"
)

// TestMain ensures the gateway leaves no goroutines behind.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func setupTestGateway(t *testing.T, buffer int) (*Gateway, *datum.Client) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := datum.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	gw := New(client, Config{SubscriberBuffer: buffer, Logger: zap.NewNop()})
	t.Cleanup(func() { gw.Close() })
	return gw, client
}

func artifactEvent(id string, kind datum.ArtifactKind, revision int64) *datum.ArtifactEvent {
	return &datum.ArtifactEvent{
		ArtifactID:  id,
		Kind:        kind,
		Revision:    revision,
		Provenance:  datum.Provenance{"pipeDiameter": revision},
		Status:      datum.ArtifactStatusCurrent,
		TimestampMs: time.Now().UnixMilli(),
	}
}

func receiveEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for gateway event")
		return Event{}
	}
}

func TestSubscribe(t *testing.T) {
	gw, _ := setupTestGateway(t, 4)

	t.Run("attaches and detaches", func(t *testing.T) {
		sub, err := gw.Subscribe("piping-desk", nil)
		require.NoError(t, err)
		assert.Equal(t, "piping-desk", sub.ClientID())
		assert.Equal(t, 1, gw.SubscriberCount())

		require.NoError(t, sub.Close())
		assert.Equal(t, 0, gw.SubscriberCount())

		_, open := <-sub.Events()
		assert.False(t, open, "events channel should be closed")
	})

	t.Run("close is idempotent", func(t *testing.T) {
		sub, err := gw.Subscribe("piping-desk", nil)
		require.NoError(t, err)
		require.NoError(t, sub.Close())
		require.NoError(t, sub.Close())
	})

	t.Run("rejects empty client ID", func(t *testing.T) {
		_, err := gw.Subscribe("", nil)
		require.Error(t, err)
	})

	t.Run("rejects unknown kind", func(t *testing.T) {
		_, err := gw.Subscribe("piping-desk", []datum.ArtifactKind{"sketch"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid subscription kind")
	})
}

func TestFanout(t *testing.T) {
	gw, _ := setupTestGateway(t, 8)

	sub, err := gw.Subscribe("piping-desk", nil)
	require.NoError(t, err)
	defer sub.Close()

	gw.ArtifactsCommitted([]*datum.ArtifactEvent{
		artifactEvent("stressCalc", datum.ArtifactKindCalculation, 2),
		artifactEvent("isoDrawing", datum.ArtifactKindDrawing, 2),
	})

	first := receiveEvent(t, sub)
	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, "stressCalc", first.ArtifactID)
	assert.Equal(t, datum.Provenance{"pipeDiameter": 2}, first.Provenance)

	second := receiveEvent(t, sub)
	assert.Equal(t, int64(2), second.Seq)
	assert.Equal(t, "isoDrawing", second.ArtifactID)

	t.Run("sequence continues across batches", func(t *testing.T) {
		gw.ArtifactsCommitted([]*datum.ArtifactEvent{
			artifactEvent("stressCalc", datum.ArtifactKindCalculation, 3),
		})
		assert.Equal(t, int64(3), receiveEvent(t, sub).Seq)
	})

	t.Run("every subscriber sees the batch", func(t *testing.T) {
		other, err := gw.Subscribe("hull-desk", nil)
		require.NoError(t, err)
		defer other.Close()

		gw.ArtifactsCommitted([]*datum.ArtifactEvent{
			artifactEvent("stressCalc", datum.ArtifactKindCalculation, 4),
		})
		assert.Equal(t, "stressCalc", receiveEvent(t, sub).ArtifactID)

		otherEv := receiveEvent(t, other)
		assert.Equal(t, "stressCalc", otherEv.ArtifactID)
		assert.Equal(t, int64(1), otherEv.Seq, "sequence numbers are per subscriber")
	})
}

func TestKindFilter(t *testing.T) {
	gw, _ := setupTestGateway(t, 8)

	sub, err := gw.Subscribe("drawing-office", []datum.ArtifactKind{datum.ArtifactKindDrawing})
	require.NoError(t, err)
	defer sub.Close()

	gw.ArtifactsCommitted([]*datum.ArtifactEvent{
		artifactEvent("stressCalc", datum.ArtifactKindCalculation, 2),
		artifactEvent("isoDrawing", datum.ArtifactKindDrawing, 2),
		artifactEvent("hydraulicReport", datum.ArtifactKindReport, 2),
	})

	ev := receiveEvent(t, sub)
	assert.Equal(t, "isoDrawing", ev.ArtifactID)
	assert.Equal(t, int64(1), ev.Seq, "filtered-out events must not consume sequence numbers")

	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event for %q", ev.ArtifactID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOverflowResync(t *testing.T) {
	gw, _ := setupTestGateway(t, 2)

	sub, err := gw.Subscribe("slow-desk", nil)
	require.NoError(t, err)
	defer sub.Close()

	// Three events into a buffer of two: the third trips the overflow.
	gw.ArtifactsCommitted([]*datum.ArtifactEvent{
		artifactEvent("stressCalc", datum.ArtifactKindCalculation, 2),
		artifactEvent("isoDrawing", datum.ArtifactKindDrawing, 2),
		artifactEvent("hydraulicReport", datum.ArtifactKindReport, 2),
	})

	select {
	case err := <-sub.Errors():
		require.True(t, IsSubscriberOverflow(err))
		var overflowErr *SubscriberOverflowError
		require.ErrorAs(t, err, &overflowErr)
		assert.Equal(t, "slow-desk", overflowErr.ClientID)
		assert.Equal(t, 2, overflowErr.Capacity)
		assert.Equal(t, int64(2), overflowErr.LastSeq)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for overflow signal")
	}

	t.Run("delivery stays off until resync", func(t *testing.T) {
		gw.ArtifactsCommitted([]*datum.ArtifactEvent{
			artifactEvent("stressCalc", datum.ArtifactKindCalculation, 3),
		})

		// Only the two pre-overflow events are buffered.
		assert.Equal(t, int64(1), receiveEvent(t, sub).Seq)
		assert.Equal(t, int64(2), receiveEvent(t, sub).Seq)
		select {
		case ev := <-sub.Events():
			t.Fatalf("unexpected event %q while in resync", ev.ArtifactID)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("resync resumes with a sequence gap", func(t *testing.T) {
		sub.Resynced()

		gw.ArtifactsCommitted([]*datum.ArtifactEvent{
			artifactEvent("stressCalc", datum.ArtifactKindCalculation, 4),
		})

		ev := receiveEvent(t, sub)
		assert.Equal(t, "stressCalc", ev.ArtifactID)
		assert.Equal(t, int64(3), ev.Seq, "sequence keeps counting over the dropped events")
	})
}

func TestSubmitChange(t *testing.T) {
	gw, client := setupTestGateway(t, 4)
	ctx := context.Background()

	err := client.RegisterParameter(ctx, &datum.Parameter{
		ID:         "pipeDiameter",
		Value:      datum.NumberValue(10),
		Discipline: "piping",
	})
	require.NoError(t, err)

	t.Run("forwards to the store", func(t *testing.T) {
		revisions, err := gw.SubmitChange(ctx, &datum.ChangeRequest{
			ID:            uuid.New().String(),
			RequesterID:   "piping-desk",
			BaseRevisions: map[string]int64{"pipeDiameter": 1},
			Writes:        map[string]datum.Value{"pipeDiameter": datum.NumberValue(12)},
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"pipeDiameter": 2}, revisions)
	})

	t.Run("conflict propagates to the caller", func(t *testing.T) {
		_, err := gw.SubmitChange(ctx, &datum.ChangeRequest{
			ID:            uuid.New().String(),
			RequesterID:   "hull-desk",
			BaseRevisions: map[string]int64{"pipeDiameter": 1},
			Writes:        map[string]datum.Value{"pipeDiameter": datum.NumberValue(14)},
		})
		require.Error(t, err)
		assert.True(t, datum.IsConflict(err))
	})
}

func TestReadAfterEvent(t *testing.T) {
	gw, client := setupTestGateway(t, 8)
	ctx := context.Background()

	e := engine.New(client, registry.New(), engine.Config{
		Workers:  2,
		Notifier: gw,
		Logger:   zap.NewNop(),
	})
	require.NoError(t, e.RegisterParameter(ctx, &datum.Parameter{
		ID:         "pipeDiameter",
		Value:      datum.NumberValue(10),
		Discipline: "piping",
	}))
	require.NoError(t, e.RegisterKind(ctx, &registry.KindSpec{
		ID:         "stressCalc",
		Kind:       datum.ArtifactKindCalculation,
		Discipline: "mechanical",
		Inputs:     []string{"pipeDiameter"},
		Derive: func(ctx context.Context, in registry.Inputs) (datum.Value, error) {
			d, err := in.Number("pipeDiameter")
			if err != nil {
				return datum.Value{}, err
			}
			return datum.NumberValue(d * 2), nil
		},
	}))

	sub, err := gw.Subscribe("piping-desk", nil)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, e.Reconcile(ctx))

	// The store must already hold what the event announces.
	ev := receiveEvent(t, sub)
	latest, err := gw.GetLatest(ctx, ev.ArtifactID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, latest.Revision, ev.Revision)
	for inputID, rev := range ev.Provenance {
		assert.GreaterOrEqual(t, latest.Provenance[inputID], rev)
	}
	assert.Equal(t, datum.ArtifactStatusCurrent, latest.Status)
}

func TestReadPassthroughs(t *testing.T) {
	gw, client := setupTestGateway(t, 4)
	ctx := context.Background()

	t.Run("unknown artifact is not found", func(t *testing.T) {
		_, err := gw.GetLatest(ctx, "ghostCalc")
		assert.True(t, datum.IsNotFound(err))
	})

	t.Run("lists come back sorted", func(t *testing.T) {
		for _, id := range []string{"wallThickness", "pipeDiameter"} {
			require.NoError(t, client.RegisterParameter(ctx, &datum.Parameter{
				ID:         id,
				Value:      datum.NumberValue(1),
				Discipline: "piping",
			}))
		}
		params, err := gw.ListParameters(ctx)
		require.NoError(t, err)
		require.Len(t, params, 2)
		assert.Equal(t, "pipeDiameter", params[0].ID)
		assert.Equal(t, "wallThickness", params[1].ID)
	})
}

func TestGatewayClose(t *testing.T) {
	gw, _ := setupTestGateway(t, 4)

	sub, err := gw.Subscribe("piping-desk", nil)
	require.NoError(t, err)

	require.NoError(t, gw.Close())

	_, open := <-sub.Events()
	assert.False(t, open)
	assert.Equal(t, 0, gw.SubscriberCount())

	_, err = gw.Subscribe("late-desk", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}
