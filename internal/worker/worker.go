package worker

type worker struct {
	pool *jobChannelPool
	jobs chan Job
}

func newWorker(pool *jobChannelPool) *worker {
	return &worker{pool: pool, jobs: make(chan Job)}
}

func (w *worker) start() {
	go func() {
		for {
			job := <-w.jobs
			if job.stop {
				w.pool.retire(w.jobs)
				return
			}
			job.execute()
			if !w.pool.release(w.jobs) {
				w.pool.retire(w.jobs)
				return
			}
		}
	}()
}
