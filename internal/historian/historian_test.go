package historian

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/parlor/internal/models"
)

type fakeStore struct {
	mu        sync.Mutex
	batches   [][]models.MatchAction
	abandoned []uuid.UUID
	fail      bool
}

func (f *fakeStore) InsertMatchActions(_ context.Context, actions []models.MatchAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("db down")
	}
	f.batches = append(f.batches, append([]models.MatchAction(nil), actions...))
	return nil
}

func (f *fakeStore) MarkMatchAbandoned(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abandoned = append(f.abandoned, id)
	return true, nil
}

func (f *fakeStore) written() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func payload(t *testing.T, id uuid.UUID, index int, kind string) string {
	t.Helper()
	data, err := json.Marshal(models.MatchAction{MatchID: id, ActionIndex: index, ActionType: kind})
	require.NoError(t, err)
	return string(data)
}

func TestBatchFlushesWhenFull(t *testing.T) {
	store := &fakeStore{}
	s := New(nil, store, Options{BatchSize: 3}, nil)
	ctx := context.Background()
	id := uuid.New()

	s.handle(ctx, payload(t, id, 0, "start"), time.Now())
	s.handle(ctx, payload(t, id, 1, "request"), time.Now())
	assert.Empty(t, store.batches)

	s.handle(ctx, payload(t, id, 2, "request"), time.Now())
	require.Len(t, store.batches, 1)
	assert.Len(t, store.batches[0], 3)

	s.handle(ctx, payload(t, id, 3, "request"), time.Now())
	s.flush(ctx)
	assert.Equal(t, 4, store.written())
}

func TestInvalidPayloadsAreSkipped(t *testing.T) {
	store := &fakeStore{}
	s := New(nil, store, Options{BatchSize: 1}, nil)
	s.handle(context.Background(), "{not json", time.Now())
	s.handle(context.Background(), `{"action_type":"start"}`, time.Now())
	assert.Zero(t, store.written())
}

func TestFailedFlushKeepsBatch(t *testing.T) {
	store := &fakeStore{fail: true}
	s := New(nil, store, Options{BatchSize: 10}, nil)
	ctx := context.Background()
	id := uuid.New()

	s.handle(ctx, payload(t, id, 0, "start"), time.Now())
	s.flush(ctx)
	s.handle(ctx, payload(t, id, 1, "request"), time.Now())

	store.fail = false
	s.flush(ctx)
	require.Len(t, store.batches, 1)
	assert.Equal(t, 0, store.batches[0][0].ActionIndex)
	assert.Equal(t, 1, store.batches[0][1].ActionIndex)
}

func TestSweepMarksIdleMatches(t *testing.T) {
	store := &fakeStore{}
	s := New(nil, store, Options{Inactivity: time.Minute}, nil)
	ctx := context.Background()
	now := time.Now()
	idle, busy, ended := uuid.New(), uuid.New(), uuid.New()

	s.handle(ctx, payload(t, idle, 0, "start"), now.Add(-2*time.Minute))
	s.handle(ctx, payload(t, busy, 0, "start"), now)
	s.handle(ctx, payload(t, ended, 0, "start"), now.Add(-2*time.Minute))
	s.handle(ctx, payload(t, ended, 1, "end"), now.Add(-2*time.Minute))

	s.sweep(ctx, now)
	assert.Equal(t, []uuid.UUID{idle}, store.abandoned)
	assert.Equal(t, 4, store.written(), "sweep flushes first")

	s.sweep(ctx, now)
	assert.Len(t, store.abandoned, 1, "a match is swept once")
}

func TestRunDrainsRedis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping redis test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	queue := "parlor_test_" + uuid.NewString()
	defer rdb.Del(context.Background(), queue)
	store := &fakeStore{}
	s := New(rdb, store, Options{Queue: queue, BatchSize: 100, FlushDelay: 20 * time.Millisecond, PopTimeout: 100 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	id := uuid.New()
	for i := 0; i < 5; i++ {
		require.NoError(t, rdb.RPush(ctx, queue, payload(t, id, i, "request")).Err())
	}
	require.Eventually(t, func() bool { return store.written() == 5 }, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("historian did not stop")
	}
}
