package ticket

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	allowed := map[Status][]Status{
		StatusPending:   {StatusBranching, StatusWorking},
		StatusBranching: {StatusWorking, StatusError},
		StatusWorking:   {StatusStopped, StatusClosed, StatusError},
		StatusStopped:   {StatusWorking, StatusClosed},
	}

	for _, from := range Statuses {
		for _, to := range Statuses {
			want := false
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestValidateTransition(t *testing.T) {
	err := ValidateTransition(StatusClosed, StatusWorking)
	var ite *InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("ValidateTransition() error = %v, want *InvalidTransitionError", err)
	}
	if ite.From != StatusClosed || ite.To != StatusWorking {
		t.Errorf("error = %+v", ite)
	}
	if err := ValidateTransition(StatusPending, StatusWorking); err != nil {
		t.Errorf("ValidateTransition(pending, working) = %v, want nil", err)
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{"T-1", false},
		{"ABC_123.fix", false},
		{"", true},
		{"-leading", true},
		{"has space", true},
		{"a/b", true},
		{"a..b", true},
		{"name.lock", true},
		{"T-1.", true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := ValidateID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidID) {
				t.Errorf("error %v does not wrap ErrInvalidID", err)
			}
		})
	}
}

func TestBranchNames(t *testing.T) {
	if got := BranchName("T-1"); got != "copilot/T-1" {
		t.Errorf("BranchName() = %q", got)
	}
	if got := TestBranchName("T-1"); got != "test/copilot/T-1" {
		t.Errorf("TestBranchName() = %q", got)
	}
}

func TestPatchApply(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("status and timestamp", func(t *testing.T) {
		tk := &Ticket{ID: "T-1", Status: StatusPending}
		err := Patch{Status: Ptr(StatusWorking), StartedAt: &now}.Apply(tk)
		if err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		if tk.Status != StatusWorking || tk.StartedAt == nil || !tk.StartedAt.Equal(now) {
			t.Errorf("ticket = %+v", tk)
		}
	})

	t.Run("invalid transition leaves ticket unchanged", func(t *testing.T) {
		tk := &Ticket{ID: "T-1", Status: StatusClosed}
		err := Patch{Status: Ptr(StatusPending), Summary: Ptr("x")}.Apply(tk)
		var ite *InvalidTransitionError
		if !errors.As(err, &ite) {
			t.Fatalf("Apply() error = %v, want *InvalidTransitionError", err)
		}
		if ite.ID != "T-1" {
			t.Errorf("ID = %q, want T-1", ite.ID)
		}
		if tk.Status != StatusClosed || tk.Summary != "" {
			t.Errorf("ticket mutated: %+v", tk)
		}
	})

	t.Run("same status is not a transition", func(t *testing.T) {
		tk := &Ticket{ID: "T-1", Status: StatusError, Error: "old"}
		if err := (Patch{Status: Ptr(StatusError), Error: Ptr("new")}).Apply(tk); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		if tk.Error != "new" {
			t.Errorf("Error = %q, want overwritten", tk.Error)
		}
	})

	t.Run("description locked while working", func(t *testing.T) {
		tk := &Ticket{ID: "T-1", Status: StatusWorking, Description: "a"}
		err := Patch{Description: Ptr("b")}.Apply(tk)
		if !errors.Is(err, ErrBusy) {
			t.Fatalf("Apply() error = %v, want ErrBusy", err)
		}
	})

	t.Run("error requires error status", func(t *testing.T) {
		tk := &Ticket{ID: "T-1", Status: StatusWorking}
		if err := (Patch{Error: Ptr("boom")}).Apply(tk); err == nil {
			t.Fatal("Apply() error = nil, want error")
		}
	})

	t.Run("summary requires closed status", func(t *testing.T) {
		tk := &Ticket{ID: "T-1", Status: StatusWorking}
		err := Patch{Status: Ptr(StatusClosed), ClosedAt: &now, Summary: Ptr("<p>ok</p>")}.Apply(tk)
		if err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		if tk.Summary != "<p>ok</p>" || tk.ClosedAt == nil {
			t.Errorf("ticket = %+v", tk)
		}
	})
}

func TestTicketMatches(t *testing.T) {
	tk := &Ticket{ID: "T-1", Name: "Login Bug"}
	for _, q := range []string{"t-1", "T-1", "login bug"} {
		if !tk.Matches(q) {
			t.Errorf("Matches(%q) = false, want true", q)
		}
	}
	if tk.Matches("T-2") {
		t.Error("Matches(T-2) = true, want false")
	}
}
