package task

import (
	"log/slog"
	"sync"
)

// Runner launches detached background tasks. A task's error is observed only
// by the runner's logger; nothing is propagated to the caller, which is the
// point: the HTTP response has already been written when these run.
type Runner struct {
	log *slog.Logger
	wg  sync.WaitGroup
}

func NewRunner(log *slog.Logger) *Runner {
	return &Runner{log: log}
}

// Go runs fn in its own goroutine and logs its error, if any, under name.
func (r *Runner) Go(name string, fn func() error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := fn(); err != nil {
			r.log.Error(name, "error", err)
		}
	}()
}

// Wait blocks until every task launched so far has finished. Used to drain
// in-flight work on shutdown and to synchronize in tests.
func (r *Runner) Wait() {
	r.wg.Wait()
}
