package sweeper

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

// TypeSweepExpired is the asynq task type of a store-side sweep.
const TypeSweepExpired = "seats:sweep_expired"

// NewSweepTask returns the task enqueued by the scheduler.  Sweeps are
// cheap to repeat, so a failed run is not retried; the next tick covers it.
func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TypeSweepExpired, nil, asynq.MaxRetry(0), asynq.Timeout(time.Minute))
}

// ProcessTask lets the sweeper serve as an asynq handler.
func (s *Sweeper) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	_, err := s.SweepOnce(ctx)
	return err
}

// Register routes sweep tasks on mux to s.
func Register(mux *asynq.ServeMux, s *Sweeper) {
	mux.Handle(TypeSweepExpired, s)
}

// Schedule registers the periodic sweep with sched under cronspec.
func Schedule(sched *asynq.Scheduler, cronspec string) (string, error) {
	return sched.Register(cronspec, NewSweepTask())
}
