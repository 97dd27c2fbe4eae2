package health

import (
	"context"
	"errors"
	"testing"
)

// --- Mocks ---

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

// --- Tests ---

func TestCheck(t *testing.T) {
	down := errors.New("conn refused")
	tests := []struct {
		name    string
		index   error
		storage error
		status  Status
		want    map[string]CheckResult
	}{
		{"all healthy", nil, nil, Healthy, map[string]CheckResult{ComponentIndex: CheckOK, ComponentStorage: CheckOK}},
		{"index down", down, nil, Degraded, map[string]CheckResult{ComponentIndex: CheckError, ComponentStorage: CheckOK}},
		{"storage down", nil, down, Degraded, map[string]CheckResult{ComponentIndex: CheckOK, ComponentStorage: CheckError}},
		{"all down", down, down, Unhealthy, map[string]CheckResult{ComponentIndex: CheckError, ComponentStorage: CheckError}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(&mockPinger{err: tt.index}, &mockPinger{err: tt.storage}).Check(context.Background())
			if r.Status != tt.status {
				t.Errorf("expected %q, got %q", tt.status, r.Status)
			}
			for k, v := range tt.want {
				if r.Checks[k] != v {
					t.Errorf("expected %s %q, got %q", k, v, r.Checks[k])
				}
			}
		})
	}
}

func TestCheck_NilStorage(t *testing.T) {
	r := New(&mockPinger{}, nil).Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if _, ok := r.Checks[ComponentStorage]; ok {
		t.Error("storage should not be in checks when nil")
	}
}
