package cycle

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Outcome is the result of one request in a batch. Exactly one of Result and
// Err is set, unless the batch was cancelled before the request ran.
type Outcome struct {
	Request Request
	Result  *Result
	Err     error
}

// BatchResult summarizes a set of cycles run together.
type BatchResult struct {
	Total    int
	Success  int
	Failed   int
	Outcomes []Outcome // in request order
	Errors   []string
}

type job struct {
	index int
	req   Request
}

// RunBatch runs the requests on up to workers concurrent cycles. Each cycle
// has its own session; one failing does not stop the others.
func (f *Fetcher) RunBatch(ctx context.Context, reqs []Request, workers int) *BatchResult {
	result := &BatchResult{
		Total:    len(reqs),
		Outcomes: make([]Outcome, len(reqs)),
	}
	for i, req := range reqs {
		result.Outcomes[i].Request = req
	}

	if len(reqs) == 0 {
		return result
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan job, len(reqs))
	done := make(chan job, len(reqs))

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			f.worker(ctx, workerID, jobs, result.Outcomes, done)
		}(i)
	}

	// Send jobs
	go func() {
		defer close(jobs)
		for i, req := range reqs {
			select {
			case <-ctx.Done():
				return
			case jobs <- job{index: i, req: req}:
			}
		}
	}()

	// Wait for workers and close results
	go func() {
		wg.Wait()
		close(done)
	}()

	// Collect results
	for j := range done {
		o := result.Outcomes[j.index]
		if o.Err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", j.req.Underlying, o.Err))
			continue
		}
		result.Success++
	}

	return result
}

// worker writes each outcome into its own slot before reporting the index, so
// the collector reads it only after the write.
func (f *Fetcher) worker(ctx context.Context, id int, jobs <-chan job, outcomes []Outcome, done chan<- job) {
	for j := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		f.logger.Debug("batch cycle starting", zap.Int("worker", id), zap.String("underlying", j.req.Underlying))
		res, err := f.Run(ctx, j.req)
		outcomes[j.index].Result = res
		outcomes[j.index].Err = err

		done <- j
	}
}
