package main

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"horizon/internal/domain/aggregation"
)

type MockAggregator struct {
	AggregateForUserFunc func(ctx context.Context, userID, selectedAccountID string) (*aggregation.Result, error)
}

func (m *MockAggregator) AggregateForUser(ctx context.Context, userID, selectedAccountID string) (*aggregation.Result, error) {
	return m.AggregateForUserFunc(ctx, userID, selectedAccountID)
}

func TestSplitIDs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "", want: nil},
		{in: "u1", want: []string{"u1"}},
		{in: " u1, ,u2 ,", want: []string{"u1", "u2"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, splitIDs(tt.in)); diff != "" {
			t.Errorf("splitIDs(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestAggregateAll(t *testing.T) {
	svc := &MockAggregator{
		AggregateForUserFunc: func(ctx context.Context, userID, selected string) (*aggregation.Result, error) {
			if selected != "acc-1" {
				t.Errorf("selected = %q, want acc-1", selected)
			}
			if userID == "bad" {
				return nil, &aggregation.ProviderUnavailableError{UserID: userID, Err: errors.New("down")}
			}
			return &aggregation.Result{View: &aggregation.AggregateView{UserID: userID}}, nil
		},
	}

	results, failed := aggregateAll(context.Background(), svc, []string{"u1", "bad", "u2"}, "acc-1", 2)
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
	if len(results) != 2 || results["u1"].View.UserID != "u1" || results["u2"].View.UserID != "u2" {
		t.Errorf("unexpected results %v", results)
	}
	if _, ok := results["bad"]; ok {
		t.Error("failed user should have no result")
	}
}
