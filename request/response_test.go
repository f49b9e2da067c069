package request

import (
	"errors"
	"testing"
	"time"
)

func TestAsTypeAssertion(t *testing.T) {
	resp := &Response{Data: 42}
	v, ok := As[int](resp)
	if !ok || v != 42 {
		t.Errorf("As[int] = (%v, %v), want (42, true)", v, ok)
	}

	_, ok = As[string](resp)
	if ok {
		t.Error("As[string] on an int payload should fail")
	}
}

func TestAsNilResponse(t *testing.T) {
	if _, ok := As[int](nil); ok {
		t.Error("As on a nil Response should fail")
	}
}

func TestNewAggregateResponseAllSucceed(t *testing.T) {
	results := []*Response{{Success: true}, {Success: true}}
	agg := NewAggregateResponse(results, nil, time.Now())
	if agg.StatusCode != 200 || agg.PartialSuccess {
		t.Errorf("all-success batch: status=%d partial=%v, want 200/false", agg.StatusCode, agg.PartialSuccess)
	}
	if agg.SuccessCount != 2 {
		t.Errorf("SuccessCount = %d, want 2", agg.SuccessCount)
	}
}

func TestNewAggregateResponsePartialSuccess(t *testing.T) {
	results := []*Response{{Success: true}, {Success: false}}
	agg := NewAggregateResponse(results, []error{errors.New("one failed")}, time.Now())
	if agg.StatusCode != 207 || !agg.PartialSuccess {
		t.Errorf("partial batch: status=%d partial=%v, want 207/true", agg.StatusCode, agg.PartialSuccess)
	}
}

func TestNewAggregateResponseAllFail(t *testing.T) {
	results := []*Response{{Success: false}, {Success: false}}
	agg := NewAggregateResponse(results, nil, time.Now())
	if agg.PartialSuccess {
		t.Error("all-fail batch is not 'partial' success")
	}
	if agg.SuccessCount != 0 {
		t.Errorf("SuccessCount = %d, want 0", agg.SuccessCount)
	}
}
