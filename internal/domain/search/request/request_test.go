package request

import (
	"strings"
	"testing"

	"github.com/kailas-cloud/rowsearch/internal/domain/search/condition"
)

func TestNew_Defaults(t *testing.T) {
	r, err := New(nil, nil, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Limit() != DefaultLimit {
		t.Errorf("limit = %d, want %d", r.Limit(), DefaultLimit)
	}
	if r.Query() != nil || r.Filter() != nil {
		t.Error("query and filter should be nil")
	}
}

func TestNew_ClampsLimit(t *testing.T) {
	r, err := New(nil, nil, nil, MaxLimit+5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Limit() != MaxLimit {
		t.Errorf("limit = %d, want %d", r.Limit(), MaxLimit)
	}
}

func TestNew_KeepsConditions(t *testing.T) {
	q, _ := condition.NewMatch("city", "madrid")
	f, _ := condition.NewRange("age", 18, nil, true, false)
	sort := []SortField{{Field: "age", Reverse: true}}
	r, err := New(q, f, sort, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sort[0].Field = "mutated"
	if r.Query() != condition.Condition(q) || r.Filter() != condition.Condition(f) {
		t.Error("conditions not kept")
	}
	if r.Sort()[0].Field != "age" {
		t.Error("sort slice aliased the caller's")
	}
}

func TestNew_SortValidation(t *testing.T) {
	if _, err := New(nil, nil, []SortField{{}}, 10); err == nil || !strings.Contains(err.Error(), "no name") {
		t.Errorf("expected missing name error, got %v", err)
	}
	many := make([]SortField, MaxSortKeys+1)
	for i := range many {
		many[i].Field = "a"
	}
	if _, err := New(nil, nil, many, 10); err == nil {
		t.Error("expected too many sort fields error")
	}
}
