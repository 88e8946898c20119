package engine

import (
	"encoding/json"
	"testing"
)

func TestRunStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status RunStatus
		want   bool
	}{
		{StatusQueued, false},
		{StatusRunning, false},
		{StatusCompensating, false},
		{StatusSucceeded, true},
		{StatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.want {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.want)
			}
			if got := tt.status.IsActive(); got == tt.want {
				t.Errorf("IsActive() = %v, expected complement of IsTerminal", got)
			}
		})
	}
}

func TestRunStatusCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from RunStatus
		to   RunStatus
		want bool
	}{
		{"queued to running", StatusQueued, StatusRunning, true},
		{"queued to succeeded skips running", StatusQueued, StatusSucceeded, false},
		{"running to succeeded", StatusRunning, StatusSucceeded, true},
		{"running to failed", StatusRunning, StatusFailed, true},
		{"running to compensating", StatusRunning, StatusCompensating, true},
		{"compensating to failed", StatusCompensating, StatusFailed, true},
		{"compensating cannot succeed", StatusCompensating, StatusSucceeded, false},
		{"succeeded absorbs", StatusSucceeded, StatusRunning, false},
		{"failed absorbs", StatusFailed, StatusQueued, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestRunStatusValidate(t *testing.T) {
	for _, s := range []RunStatus{StatusQueued, StatusRunning, StatusSucceeded, StatusFailed, StatusCompensating} {
		if err := s.Validate(); err != nil {
			t.Errorf("Validate(%s) = %v, want nil", s, err)
		}
	}
	if err := RunStatus("cancelled").Validate(); err == nil {
		t.Error("Validate(cancelled) = nil, want error")
	}
}

func TestRunStatusJSON(t *testing.T) {
	data, err := json.Marshal(StatusCompensating)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `"compensating"` {
		t.Errorf("Marshal() = %s", data)
	}

	var s RunStatus
	if err := json.Unmarshal([]byte(`"running"`), &s); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if s != StatusRunning {
		t.Errorf("Unmarshal() = %v, want %v", s, StatusRunning)
	}

	if err := json.Unmarshal([]byte(`"paused"`), &s); err == nil {
		t.Error("Unmarshal(paused) = nil, want validation error")
	}
}
