package executor

import (
	"context"
	"sync"
	"time"

	"github.com/gomind-http/httpcore/request"
)

// ExecuteBatch fans out each request into Execute concurrently (subject to
// the Scheduler's own concurrency cap) and gathers results once every
// member has reached a terminal state (spec §4.F "Batch execution").
// Partial success is preserved: request.NewAggregateResponse reports 200
// only when every member succeeded, 207 otherwise.
func (ex *Executor) ExecuteBatch(ctx context.Context, reqs []request.Request) *request.AggregateResponse {
	started := time.Now()
	results := make([]*request.Response, len(reqs))
	errs := make([]error, len(reqs))

	var wg sync.WaitGroup
	wg.Add(len(reqs))
	for i, req := range reqs {
		go func(i int, req request.Request) {
			defer wg.Done()
			resp, err := ex.Execute(ctx, req)
			results[i] = resp
			errs[i] = err
		}(i, req)
	}
	wg.Wait()

	failures := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			failures = append(failures, err)
		}
	}
	return request.NewAggregateResponse(results, failures, started)
}
