package battle

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/card-battle/internal/errors"
	"go.uber.org/zap"
)

// fillShard 让会话所在队列的工作协程卡住并把队列塞满
func fillShard(t *testing.T, p *persister, sessionID string) (release func()) {
	started := make(chan struct{})
	gate := make(chan struct{})
	p.enqueue(sessionID, "block", func(context.Context) error {
		close(started)
		<-gate
		return nil
	})
	<-started
	for len(p.shard(sessionID)) < cap(p.shard(sessionID)) {
		p.enqueue(sessionID, "filler", func(context.Context) error { return nil })
	}
	return func() { close(gate) }
}

func TestPersisterDropsSaveWhenQueueFull(t *testing.T) {
	p := newPersister(zap.NewNop(), time.Second, 1)
	defer p.close()

	release := fillShard(t, p, "111111")
	var saved atomic.Bool
	p.enqueue("111111", "save", func(context.Context) error {
		saved.Store(true)
		return nil
	})
	release()
	p.flush()
	assert.False(t, saved.Load())
}

func TestPersisterDeleteWaitsForRoom(t *testing.T) {
	p := newPersister(zap.NewNop(), time.Second, 1)
	defer p.close()

	release := fillShard(t, p, "222222")
	var deleted atomic.Bool
	queued := make(chan struct{})
	go func() {
		p.enqueueWait("222222", "delete", func(context.Context) error {
			deleted.Store(true)
			return nil
		})
		close(queued)
	}()

	select {
	case <-queued:
		t.Fatal("delete should wait while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	<-queued
	p.flush()
	assert.True(t, deleted.Load())
}

func TestPersisterRetriesTransientFailureOnce(t *testing.T) {
	p := newPersister(zap.NewNop(), time.Second, 4)
	defer p.close()

	var calls atomic.Int32
	p.enqueue("333333", "save", func(context.Context) error {
		if calls.Add(1) == 1 {
			return apperrors.New(apperrors.ErrCacheUnavailable, "redis set")
		}
		return nil
	})
	var permanent atomic.Int32
	p.enqueue("333333", "save", func(context.Context) error {
		permanent.Add(1)
		return apperrors.New(apperrors.ErrInvalidParam)
	})
	p.flush()

	require.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(1), permanent.Load())
}
