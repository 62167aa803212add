package worker

import "container/list"

type userQueue struct {
	jobs     []Job
	enqueued bool
}

// fairQueue hands out jobs round-robin across users, FIFO within one user.
// It is not safe for concurrent use.
type fairQueue struct {
	queues    map[int64]*userQueue
	ready     *list.List // user ids with pending jobs, next to serve at the front
	positions map[int64]*list.Element
	size      int
}

func newFairQueue() *fairQueue {
	return &fairQueue{
		queues:    make(map[int64]*userQueue),
		ready:     list.New(),
		positions: make(map[int64]*list.Element),
	}
}

func (q *fairQueue) push(job Job) {
	uq := q.queues[job.UserID]
	if uq == nil {
		uq = &userQueue{}
		q.queues[job.UserID] = uq
	}
	uq.jobs = append(uq.jobs, job)
	q.size++
	if uq.enqueued {
		return
	}
	uq.enqueued = true
	q.positions[job.UserID] = q.ready.PushBack(job.UserID)
}

// pop takes the next job of the user at the front and moves that user to the back.
func (q *fairQueue) pop() (Job, bool) {
	elem := q.ready.Front()
	if elem == nil {
		return Job{}, false
	}
	userID := elem.Value.(int64)
	uq := q.queues[userID]
	job := uq.jobs[0]
	uq.jobs = uq.jobs[1:]
	q.size--
	if len(uq.jobs) == 0 {
		uq.enqueued = false
		q.ready.Remove(elem)
		delete(q.positions, userID)
		delete(q.queues, userID)
	} else {
		q.ready.MoveToBack(elem)
	}
	return job, true
}

// drain removes and returns every pending job.
func (q *fairQueue) drain() []Job {
	var jobs []Job
	for {
		job, ok := q.pop()
		if !ok {
			return jobs
		}
		jobs = append(jobs, job)
	}
}

func (q *fairQueue) len() int {
	return q.size
}
