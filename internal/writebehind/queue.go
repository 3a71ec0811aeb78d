package writebehind

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/bazaar/pkg/economy"
	"go.uber.org/zap"
)

const (
	errorSubjectQueue = "write_queue"
	errorCodeClosed   = "closed"
	errorCodeAbandon  = "abandoned"

	defaultWorkers        = 4
	defaultShardBuffer    = 1024
	defaultMaxAttempts    = 5
	defaultAttemptTimeout = 5 * time.Second
	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
)

// ErrQueueClosed is returned for jobs enqueued after Close.
var ErrQueueClosed = errors.New("write queue closed")

// Config tunes the worker pool.
type Config struct {
	Workers        int
	ShardBuffer    int
	MaxAttempts    int
	AttemptTimeout time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig returns the settings used by bazaard when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Workers:        defaultWorkers,
		ShardBuffer:    defaultShardBuffer,
		MaxAttempts:    defaultMaxAttempts,
		AttemptTimeout: defaultAttemptTimeout,
		InitialBackoff: defaultInitialBackoff,
		MaxBackoff:     defaultMaxBackoff,
	}
}

func (config Config) normalized() Config {
	defaults := DefaultConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.ShardBuffer <= 0 {
		config.ShardBuffer = defaults.ShardBuffer
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = defaults.AttemptTimeout
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff < config.InitialBackoff {
		config.MaxBackoff = config.InitialBackoff
	}
	return config
}

type queuedJob struct {
	job     economy.WriteJob
	pending *economy.PendingWrite
}

// Queue runs durable writes on a fixed set of workers. Jobs sharing a key land on
// the same worker and therefore execute in enqueue order.
type Queue struct {
	config Config
	logger *zap.Logger
	shards []chan queuedJob

	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// New starts the workers.
func New(config Config, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	config = config.normalized()
	ctx, cancel := context.WithCancel(context.Background())
	queue := &Queue{
		config: config,
		logger: logger,
		shards: make([]chan queuedJob, config.Workers),
		ctx:    ctx,
		cancel: cancel,
	}
	for index := range queue.shards {
		shard := make(chan queuedJob, config.ShardBuffer)
		queue.shards[index] = shard
		queue.wg.Add(1)
		go func() {
			defer queue.wg.Done()
			queue.loop(shard)
		}()
	}
	return queue
}

// Enqueue schedules the job. It blocks only while the job's shard buffer is full.
func (queue *Queue) Enqueue(job economy.WriteJob) *economy.PendingWrite {
	queue.mu.RLock()
	defer queue.mu.RUnlock()
	if queue.closed {
		err := economy.PersistenceError(errorSubjectQueue, errorCodeClosed, ErrQueueClosed)
		if job.OnDone != nil {
			job.OnDone(err)
		}
		return economy.SettledWrite(err)
	}
	pending := economy.NewPendingWrite()
	queue.shards[queue.shardFor(job.Key)] <- queuedJob{job: job, pending: pending}
	return pending
}

// Close stops accepting jobs and waits for queued ones to finish. When ctx ends
// first, in-flight retries are abandoned and the remaining jobs settle with errors.
func (queue *Queue) Close(ctx context.Context) error {
	queue.once.Do(func() {
		queue.mu.Lock()
		queue.closed = true
		for _, shard := range queue.shards {
			close(shard)
		}
		queue.mu.Unlock()
	})

	drained := make(chan struct{})
	go func() {
		queue.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		queue.cancel()
		return nil
	case <-ctx.Done():
		queue.cancel()
		<-drained
		return ctx.Err()
	}
}

func (queue *Queue) shardFor(key string) int {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(key))
	return int(hasher.Sum32() % uint32(len(queue.shards)))
}

func (queue *Queue) loop(shard <-chan queuedJob) {
	for queued := range shard {
		err := queue.execute(queued.job)
		if queued.job.OnDone != nil {
			queued.job.OnDone(err)
		}
		queued.pending.Settle(err)
	}
}

func (queue *Queue) execute(job economy.WriteJob) error {
	backoff := queue.config.InitialBackoff
	var err error
	for attempt := 1; attempt <= queue.config.MaxAttempts; attempt++ {
		err = queue.attempt(job)
		if err == nil {
			return nil
		}
		if attempt == queue.config.MaxAttempts {
			break
		}
		queue.logger.Warn("durable write failed, retrying",
			zap.String("key", job.Key),
			zap.String("description", job.Description),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if !queue.sleep(backoff) {
			break
		}
		backoff = min(backoff*2, queue.config.MaxBackoff)
	}
	queue.logger.Error("durable write abandoned",
		zap.String("key", job.Key),
		zap.String("description", job.Description),
		zap.Error(err),
	)
	if errors.Is(err, economy.ErrPersistenceFailure) {
		return err
	}
	return economy.PersistenceError(errorSubjectQueue, errorCodeAbandon, err)
}

func (queue *Queue) attempt(job economy.WriteJob) (err error) {
	ctx, cancel := context.WithTimeout(queue.ctx, queue.config.AttemptTimeout)
	defer cancel()
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("write panicked: %v", recovered)
		}
	}()
	if job.Write == nil {
		return nil
	}
	return job.Write(ctx)
}

func (queue *Queue) sleep(duration time.Duration) bool {
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-queue.ctx.Done():
		return false
	}
}
