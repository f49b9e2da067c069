package request

import "time"

// Response is the Executor's result for one Request (spec §3). success is
// true iff statusCode is in the 2xx band AND the parser succeeded.
type Response struct {
	Success    bool
	StatusCode int
	Data       any
	Message    string
	Headers    map[string]string
	DurationMs int64
	FromCache  bool
	ErrorCode  string

	// FilePath and FileSize are populated only by the Executor's download
	// variant (spec §4.F "Download variant").
	FilePath string
	FileSize int64
}

// As type-asserts r.Data into T, returning the zero value and false on
// mismatch. The Executor's API is not generic (Execute returns a Response
// whose Data is typed any); As lets a caller recover the parser's result
// type from that Response.Data.
func As[T any](r *Response) (T, bool) {
	var zero T
	if r == nil || r.Data == nil {
		return zero, false
	}
	v, ok := r.Data.(T)
	return v, ok
}

// AggregateResponse is executeBatch's result (spec §4.F "Batch execution").
// A batch reaches its terminal state when every member has reached a
// terminal state; PartialSuccess distinguishes "all succeeded" (status 200)
// from "some succeeded" (status 207).
type AggregateResponse struct {
	Results        []*Response
	SuccessCount   int
	TotalCount     int
	Errors         []error
	PartialSuccess bool
	StatusCode     int
	DurationMs     int64
}

// NewAggregateResponse folds results into an AggregateResponse, computing
// SuccessCount/PartialSuccess/StatusCode per spec §4.F.
func NewAggregateResponse(results []*Response, errs []error, started time.Time) *AggregateResponse {
	agg := &AggregateResponse{
		Results:    results,
		TotalCount: len(results),
		Errors:     errs,
		DurationMs: time.Since(started).Milliseconds(),
	}
	for _, r := range results {
		if r != nil && r.Success {
			agg.SuccessCount++
		}
	}
	switch {
	case agg.SuccessCount == agg.TotalCount && agg.TotalCount > 0:
		agg.StatusCode = 200
	case agg.SuccessCount > 0:
		agg.PartialSuccess = true
		agg.StatusCode = 207
	default:
		agg.StatusCode = 207
		if agg.TotalCount == 0 {
			agg.StatusCode = 200
		}
	}
	return agg
}
