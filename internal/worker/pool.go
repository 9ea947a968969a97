package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Task is one unit of fanned-out work.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Result is the outcome of a task, at the same index as the task it belongs to.
type Result struct {
	Name string
	Err  error
}

type job struct {
	idx  int
	task Task
}

type pool struct {
	workers int
	log     *slog.Logger
}

// NewPool returns a pool running at most workers tasks at once; 0 runs every task
// in its own goroutine.
func NewPool(workers int, log *slog.Logger) *pool {
	return &pool{
		workers: workers,
		log:     log.With(slog.String("item", "WorkerPool")),
	}
}

// Run executes every task and returns once all of them settled. A failing task does
// not stop its siblings. Tasks not started before ctx is done fail with ctx.Err().
func (p *pool) Run(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	workers := p.workers
	if workers <= 0 || workers > len(tasks) {
		workers = len(tasks)
	}

	in := make(chan job, len(tasks))
	for i, task := range tasks {
		results[i].Name = task.Name
		in <- job{idx: i, task: task}
	}
	close(in)

	var wg sync.WaitGroup
	wg.Add(workers)
	for n := 0; n < workers; n++ {
		go p.worker(ctx, n, in, results, &wg)
	}
	wg.Wait()

	return results
}

// Each worker writes only the result slots of the jobs it receives.
func (p *pool) worker(ctx context.Context, n int, in <-chan job, results []Result, wg *sync.WaitGroup) {
	defer wg.Done()

	log := p.log.With(slog.Int("worker_id", n))

	for j := range in {
		if err := ctx.Err(); err != nil {
			results[j.idx].Err = fmt.Errorf("task %s not started: %w", j.task.Name, err)

			continue
		}

		results[j.idx].Err = runTask(ctx, j.task)
		if results[j.idx].Err != nil {
			log.Debug("Task failed", slog.String("task", j.task.Name), slog.Any("error", results[j.idx].Err))
		}
	}
}

func runTask(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
	}()

	return task.Run(ctx)
}
