package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultWorkerPoolSize is the default number of workers in the pool
	DefaultWorkerPoolSize = 4
	// DefaultQueueSize is the default size of the job queue
	DefaultQueueSize = 256
	// DefaultWorkerTimeout is the default timeout for a single job
	DefaultWorkerTimeout = 30 * time.Second
	// AverageJobTimeDivisor is used for calculating average job time
	AverageJobTimeDivisor = 2
)

// JobFunc is the unit of work executed by a worker
type JobFunc func(ctx context.Context) error

// Job is a queued unit of work
type Job struct {
	ID        string
	Name      string
	Run       JobFunc
	Submitted time.Time
}

// PoolOptions configures a WorkerPool
type PoolOptions struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
	Logger     *slog.Logger
	// OnQueueLength is called with the queue length after every submit and dequeue
	OnQueueLength func(n int)
}

// PoolStats is a snapshot of pool counters
type PoolStats struct {
	Workers        int           `json:"workers"`
	ActiveWorkers  int           `json:"active_workers"`
	QueueLength    int           `json:"queue_length"`
	QueueCapacity  int           `json:"queue_capacity"`
	Processed      int64         `json:"processed"`
	Failed         int64         `json:"failed"`
	Rejected       int64         `json:"rejected"`
	AverageJobTime time.Duration `json:"average_job_time"`
}

// WorkerPool manages a fixed set of workers draining a bounded job queue
type WorkerPool struct {
	opts     PoolOptions
	logger   *slog.Logger
	jobQueue chan *Job

	mu      sync.RWMutex
	started bool
	stopped bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	statsMu sync.Mutex
	stats   PoolStats
}

// NewWorkerPool creates a worker pool; call Start to launch the workers
func NewWorkerPool(opts PoolOptions) *WorkerPool {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkerPoolSize
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = DefaultWorkerTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		opts:     opts,
		logger:   opts.Logger,
		jobQueue: make(chan *Job, opts.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
		stats: PoolStats{
			Workers:       opts.Workers,
			QueueCapacity: opts.QueueSize,
		},
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.started || wp.stopped {
		return
	}
	wp.started = true

	wp.logger.Info("Starting worker pool", "workers", wp.opts.Workers, "queue_size", wp.opts.QueueSize)
	for i := 0; i < wp.opts.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Submit enqueues fn without blocking and returns the job ID.
// A full queue yields ErrQueueFull; a stopped pool yields ErrWorkerPoolStopped.
func (wp *WorkerPool) Submit(name string, fn JobFunc) (string, error) {
	job := &Job{
		ID:        uuid.NewString(),
		Name:      name,
		Run:       fn,
		Submitted: time.Now(),
	}

	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return "", ErrWorkerPoolStopped
	}

	select {
	case wp.jobQueue <- job:
		wp.reportQueueLength()
		wp.logger.Debug("Job submitted", "jobID", job.ID, "job", name)
		return job.ID, nil
	default:
		wp.statsMu.Lock()
		wp.stats.Rejected++
		wp.statsMu.Unlock()
		wp.logger.Warn("Job queue full, dropping job", "jobID", job.ID, "job", name)
		return "", ErrQueueFull
	}
}

// Stop stops accepting jobs and waits for queued jobs to finish. If ctx ends
// first, in-flight jobs are cancelled and ctx.Err() is returned.
func (wp *WorkerPool) Stop(ctx context.Context) error {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return nil
	}
	wp.stopped = true
	close(wp.jobQueue)
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.cancel()
		wp.logger.Info("Worker pool stopped")
		return nil
	case <-ctx.Done():
		wp.cancel()
		<-done
		return ctx.Err()
	}
}

// GetStats returns current pool statistics
func (wp *WorkerPool) GetStats() PoolStats {
	wp.statsMu.Lock()
	defer wp.statsMu.Unlock()
	stats := wp.stats
	stats.QueueLength = len(wp.jobQueue)
	return stats
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	wp.logger.Debug("Worker started", "workerID", id)
	for job := range wp.jobQueue {
		wp.reportQueueLength()
		wp.processJob(id, job)
	}
	wp.logger.Debug("Worker exiting", "workerID", id)
}

func (wp *WorkerPool) processJob(workerID int, job *Job) {
	start := time.Now()

	wp.statsMu.Lock()
	wp.stats.ActiveWorkers++
	wp.statsMu.Unlock()

	ctx, cancel := context.WithTimeout(wp.ctx, wp.opts.JobTimeout)
	defer cancel()

	err := runJob(ctx, job)
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", ErrJobTimeout, err)
	}

	if err != nil {
		wp.logger.Error("Job processing failed",
			"workerID", workerID,
			"jobID", job.ID,
			"job", job.Name,
			"error", err)
	} else {
		wp.logger.Debug("Job processed successfully",
			"workerID", workerID,
			"jobID", job.ID,
			"job", job.Name)
	}

	wp.updateStats(time.Since(start), err)
}

func runJob(ctx context.Context, job *Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job panicked: %v\n%s", rec, debug.Stack())
		}
	}()
	return job.Run(ctx)
}

func (wp *WorkerPool) updateStats(duration time.Duration, err error) {
	wp.statsMu.Lock()
	defer wp.statsMu.Unlock()

	wp.stats.ActiveWorkers--
	wp.stats.Processed++
	if err != nil {
		wp.stats.Failed++
	}

	if wp.stats.AverageJobTime == 0 {
		wp.stats.AverageJobTime = duration
	} else {
		wp.stats.AverageJobTime = (wp.stats.AverageJobTime + duration) / AverageJobTimeDivisor
	}
}

func (wp *WorkerPool) reportQueueLength() {
	if wp.opts.OnQueueLength != nil {
		wp.opts.OnQueueLength(len(wp.jobQueue))
	}
}
