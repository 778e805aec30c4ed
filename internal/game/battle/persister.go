package battle

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	apperrors "github.com/wfunc/card-battle/internal/errors"
	"go.uber.org/zap"
)

const (
	defaultPersistTimeout = 2 * time.Second
	defaultQueueSize      = 1024
	persistWorkers        = 4
	retryBackoff          = 100 * time.Millisecond
)

// persistJob 持久化任务，done 非空时为屏障
type persistJob struct {
	sessionID string
	op        string
	fn        func(ctx context.Context) error
	done      chan struct{}
}

// persister 异步持久化。同一会话的任务落在同一个队列，保持顺序
type persister struct {
	logger  *zap.Logger
	timeout time.Duration
	queues  []chan persistJob

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func newPersister(logger *zap.Logger, timeout time.Duration, size int) *persister {
	if timeout <= 0 {
		timeout = defaultPersistTimeout
	}
	if size <= 0 {
		size = defaultQueueSize
	}
	p := &persister{
		logger:  logger,
		timeout: timeout,
		queues:  make([]chan persistJob, persistWorkers),
	}
	for i := range p.queues {
		p.queues[i] = make(chan persistJob, size)
		p.wg.Add(1)
		go p.run(p.queues[i])
	}
	return p
}

func (p *persister) run(queue chan persistJob) {
	defer p.wg.Done()
	for job := range queue {
		if job.done != nil {
			close(job.done)
			continue
		}
		err := p.exec(job)
		if apperrors.IsRetryable(err) {
			time.Sleep(retryBackoff)
			err = p.exec(job)
		}
		if err != nil {
			p.logger.Error("对战持久化失败",
				zap.String("session_id", job.sessionID),
				zap.String("op", job.op),
				zap.Error(err))
		}
	}
}

func (p *persister) exec(job persistJob) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return job.fn(ctx)
}

func (p *persister) shard(sessionID string) chan persistJob {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return p.queues[h.Sum32()%uint32(len(p.queues))]
}

// enqueue 非阻塞入队，队列满时丢弃并记录。快照保存可丢，下一次保存会覆盖
func (p *persister) enqueue(sessionID, op string, fn func(ctx context.Context) error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.shard(sessionID) <- persistJob{sessionID: sessionID, op: op, fn: fn}:
	default:
		p.logger.Warn("持久化队列已满，丢弃任务",
			zap.String("session_id", sessionID),
			zap.String("op", op))
	}
}

// enqueueWait 阻塞入队，用于不能丢的删除与结果写入
func (p *persister) enqueueWait(sessionID, op string, fn func(ctx context.Context) error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	p.shard(sessionID) <- persistJob{sessionID: sessionID, op: op, fn: fn}
}

// flush 等待所有队列中已有任务执行完
func (p *persister) flush() {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return
	}
	barriers := make([]chan struct{}, len(p.queues))
	for i, q := range p.queues {
		barriers[i] = make(chan struct{})
		q <- persistJob{done: barriers[i]}
	}
	p.mu.RUnlock()

	for _, b := range barriers {
		<-b
	}
}

func (p *persister) close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		for _, q := range p.queues {
			close(q)
		}
	}
	p.mu.Unlock()
	p.wg.Wait()
}
