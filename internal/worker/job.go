package worker

import (
	"context"
	"fmt"
)

// Job is one unit of work submitted on behalf of a user.
type Job struct {
	UserID int64
	ctx    context.Context
	fn     func(context.Context) error
	result chan error
	stop   bool
}

func newJob(ctx context.Context, userID int64, fn func(context.Context) error) Job {
	return Job{UserID: userID, ctx: ctx, fn: fn, result: make(chan error, 1)}
}

func stopJob() Job {
	return Job{stop: true}
}

// execute runs the job and reports its outcome. A panic is reported as an error
// so the worker survives it.
func (j Job) execute() {
	defer func() {
		if r := recover(); r != nil {
			j.finish(fmt.Errorf("job panicked: %v", r))
		}
	}()
	if err := j.ctx.Err(); err != nil {
		j.finish(err)
		return
	}
	j.finish(j.fn(j.ctx))
}

func (j Job) finish(err error) {
	if j.result == nil {
		return
	}
	select {
	case j.result <- err:
	default:
	}
}
