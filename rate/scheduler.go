// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package rate

import "context"

// Scheduler is the executor on which a Limiter runs its periodic clock
// task. The host environment supplies one so the limiter never owns
// threads of its own; a scheduler that cannot take the task must return
// an error, which fails limiter construction.
type Scheduler interface {
	Schedule(ctx context.Context, task func(ctx context.Context)) error
}

// GoScheduler runs scheduled tasks on plain goroutines. It is the
// default used when no scheduler is supplied.
type GoScheduler struct{}

func (GoScheduler) Schedule(ctx context.Context, task func(ctx context.Context)) error {
	go task(ctx)
	return nil
}
