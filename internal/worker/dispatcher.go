package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrDispatcherBusy is returned when the intake queue is full.
	ErrDispatcherBusy    = errors.New("dispatcher busy")
	ErrDispatcherStopped = errors.New("dispatcher stopped")
)

type DispatcherConfig struct {
	MinWorkers        int
	MaxWorkers        int
	QueueSize         int
	WorkerIdleTimeout time.Duration
}

// Dispatcher runs jobs on a bounded worker pool, taking turns between users so
// one busy user cannot starve the others.
type Dispatcher struct {
	pool     *jobChannelPool
	jobQueue chan Job
	logger   logrus.FieldLogger

	mu      sync.Mutex
	pending *fairQueue

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewDispatcher(cfg DispatcherConfig, logger logrus.FieldLogger) *Dispatcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	d := &Dispatcher{
		pool:     newJobChannelPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.WorkerIdleTimeout),
		jobQueue: make(chan Job, queueSize),
		logger:   logger.WithField("component", "dispatcher"),
		pending:  newFairQueue(),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// Do runs fn on a worker and waits for it. ctx is handed to fn; if it is done
// before fn finishes, Do returns ctx.Err() without waiting further.
func (d *Dispatcher) Do(ctx context.Context, userID int64, fn func(context.Context) error) error {
	job := newJob(ctx, userID, fn)
	if err := d.submit(job); err != nil {
		return err
	}
	select {
	case err := <-job.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) submit(job Job) error {
	select {
	case <-d.quit:
		return ErrDispatcherStopped
	default:
	}
	select {
	case d.jobQueue <- job:
		return nil
	default:
		d.logger.WithField("user_id", job.UserID).Warn("job queue full")
		return ErrDispatcherBusy
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		if !d.dispatchOne() {
			select {
			case job := <-d.jobQueue:
				d.enqueue(job)
			case <-d.quit:
				return
			}
			continue
		}
		select {
		case job := <-d.jobQueue:
			d.enqueue(job)
		case <-d.quit:
			return
		default:
		}
	}
}

func (d *Dispatcher) enqueue(job Job) {
	d.mu.Lock()
	d.pending.push(job)
	d.mu.Unlock()
}

// dispatchOne hands the next fair job to a worker, blocking until one is free.
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	job, ok := d.pending.pop()
	d.mu.Unlock()
	if !ok {
		return false
	}
	ch, ok := d.pool.acquire()
	if !ok {
		job.finish(ErrDispatcherStopped)
		return false
	}
	d.logger.WithField("user_id", job.UserID).Debug("dispatch job")
	ch <- job
	return true
}

// Stop refuses new jobs, fails queued ones with ErrDispatcherStopped and lets
// running jobs finish.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.quit)
		d.pool.close()
		<-d.done

		d.mu.Lock()
		leftovers := d.pending.drain()
		d.mu.Unlock()
	drain:
		for {
			select {
			case job := <-d.jobQueue:
				leftovers = append(leftovers, job)
			default:
				break drain
			}
		}
		for _, job := range leftovers {
			job.finish(ErrDispatcherStopped)
		}
	})
}
