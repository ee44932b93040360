package lifecycle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edsandoval/autopilot/internal/pipeline"
	"github.com/edsandoval/autopilot/internal/ticket"
)

type fakeWorktrees struct {
	ensureErr error
	ensured   []string
	torn      []string
	warnings  []string
}

func (w *fakeWorktrees) Ensure(ctx context.Context, id string) (string, error) {
	w.ensured = append(w.ensured, id)
	if w.ensureErr != nil {
		return "", w.ensureErr
	}
	return "/automation/" + id, nil
}

func (w *fakeWorktrees) Teardown(ctx context.Context, id string) []string {
	w.torn = append(w.torn, id)
	return w.warnings
}

type fakeResolver struct {
	result *pipeline.Result
	seen   []*ticket.Ticket
}

func (r *fakeResolver) Resolve(ctx context.Context, t *ticket.Ticket, opts pipeline.Options) *pipeline.Result {
	r.seen = append(r.seen, t.Clone())
	return r.result
}

func gitDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, ".git"), 0755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func newService(t *testing.T, baseRepo string, wt *fakeWorktrees, r *fakeResolver) (*Service, ticket.Store) {
	t.Helper()
	store := ticket.NewJSONStore(filepath.Join(t.TempDir(), "tickets.json"))
	svc := New(store, wt, r, baseRepo, nil)
	svc.Now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	if _, err := svc.Create(context.Background(), "T-1", "fix login bug"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return svc, store
}

func TestStart_CreatesBranch(t *testing.T) {
	wt := &fakeWorktrees{}
	svc, _ := newService(t, gitDir(t), wt, nil)

	got, err := svc.Start(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got.Status != ticket.StatusWorking {
		t.Errorf("Status = %s, want working", got.Status)
	}
	if got.Branch != "copilot/T-1" {
		t.Errorf("Branch = %q, want copilot/T-1", got.Branch)
	}
	if got.StartedAt == nil {
		t.Error("StartedAt not set")
	}
	if len(wt.ensured) != 1 {
		t.Errorf("Ensure calls = %v", wt.ensured)
	}
}

func TestStart_NotGitRepoSkipsBranching(t *testing.T) {
	wt := &fakeWorktrees{}
	svc, _ := newService(t, t.TempDir(), wt, nil)

	got, err := svc.Start(context.Background(), "T-1")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got.Status != ticket.StatusWorking || got.Branch != "" {
		t.Errorf("ticket = %+v", got)
	}
	if len(wt.ensured) != 0 {
		t.Errorf("Ensure called for non-git base: %v", wt.ensured)
	}
}

func TestStart_EnsureFailureMarksError(t *testing.T) {
	wt := &fakeWorktrees{ensureErr: errors.New("git branch failed")}
	svc, store := newService(t, gitDir(t), wt, nil)

	if _, err := svc.Start(context.Background(), "T-1"); err == nil {
		t.Fatal("Start() error = nil")
	}
	got, _ := store.Get(context.Background(), "T-1")
	if got.Status != ticket.StatusError || got.Error != "git branch failed" {
		t.Errorf("ticket = %+v", got)
	}
}

func TestStart_InvalidTransition(t *testing.T) {
	svc, _ := newService(t, "", &fakeWorktrees{}, nil)
	ctx := context.Background()

	if _, err := svc.Start(ctx, "T-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Close(ctx, "T-1"); err != nil {
		t.Fatal(err)
	}

	_, err := svc.Start(ctx, "T-1")
	var ite *ticket.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("Start() on closed error = %v, want InvalidTransitionError", err)
	}
	if ite.ID != "T-1" || ite.From != ticket.StatusClosed {
		t.Errorf("error = %+v", ite)
	}
}

func TestStopAndRestart(t *testing.T) {
	wt := &fakeWorktrees{}
	svc, _ := newService(t, gitDir(t), wt, nil)
	ctx := context.Background()

	first, err := svc.Start(ctx, "T-1")
	if err != nil {
		t.Fatal(err)
	}
	stopped, err := svc.Stop(ctx, "T-1")
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if stopped.Status != ticket.StatusStopped || stopped.StoppedAt == nil {
		t.Errorf("stopped = %+v", stopped)
	}

	again, err := svc.Start(ctx, "T-1")
	if err != nil {
		t.Fatalf("restart error = %v", err)
	}
	if again.Status != ticket.StatusWorking {
		t.Errorf("Status = %s", again.Status)
	}
	if !again.StartedAt.Equal(*first.StartedAt) {
		t.Errorf("StartedAt changed on restart")
	}
}

func TestStop_PendingIsInvalid(t *testing.T) {
	svc, _ := newService(t, "", &fakeWorktrees{}, nil)
	_, err := svc.Stop(context.Background(), "T-1")
	var ite *ticket.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Errorf("Stop() error = %v, want InvalidTransitionError", err)
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		result     *pipeline.Result
		wantStatus ticket.Status
		wantError  string
	}{
		{
			name:       "success",
			result:     &pipeline.Result{Success: true, Summary: "<p>ok</p>", TestBranch: "test/copilot/T-1"},
			wantStatus: ticket.StatusClosed,
		},
		{
			name:       "no changes",
			result:     &pipeline.Result{Err: pipeline.ErrNoChanges},
			wantStatus: ticket.StatusError,
			wantError:  pipeline.ErrNoChanges.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeResolver{result: tt.result}
			svc, _ := newService(t, "", &fakeWorktrees{}, r)

			got, res, err := svc.Resolve(context.Background(), "T-1")
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if res != tt.result {
				t.Error("pipeline result not returned")
			}
			if len(r.seen) != 1 || r.seen[0].Status != ticket.StatusWorking {
				t.Errorf("resolver saw %+v, want a working ticket", r.seen)
			}
			if got.Status != tt.wantStatus || got.Error != tt.wantError {
				t.Errorf("ticket = %+v", got)
			}
			if tt.wantStatus == ticket.StatusClosed && (got.ClosedAt == nil || got.Summary == "") {
				t.Errorf("closed ticket missing closedAt/summary: %+v", got)
			}
		})
	}
}

func TestDelete(t *testing.T) {
	wt := &fakeWorktrees{warnings: []string{"deleting branch copilot/T-1: locked"}}
	svc, store := newService(t, "", wt, nil)

	warnings, err := svc.Delete(context.Background(), "T-1")
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(warnings) != 1 {
		t.Errorf("warnings = %v", warnings)
	}
	if len(wt.torn) != 1 || wt.torn[0] != "T-1" {
		t.Errorf("teardown calls = %v", wt.torn)
	}
	if _, err := store.Get(context.Background(), "T-1"); !errors.Is(err, ticket.ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestDelete_WorkingIsBusy(t *testing.T) {
	wt := &fakeWorktrees{}
	svc, _ := newService(t, "", wt, nil)
	if _, err := svc.Start(context.Background(), "T-1"); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Delete(context.Background(), "T-1"); !errors.Is(err, ticket.ErrBusy) {
		t.Errorf("Delete() error = %v, want ErrBusy", err)
	}
	if len(wt.torn) != 0 {
		t.Error("teardown ran for a working ticket")
	}
}

func TestEdit_DescriptionWhileWorking(t *testing.T) {
	svc, _ := newService(t, "", &fakeWorktrees{}, nil)
	ctx := context.Background()

	got, err := svc.Edit(ctx, "T-1", nil, ticket.Ptr("fix logout bug"))
	if err != nil || got.Description != "fix logout bug" {
		t.Fatalf("Edit() = %+v, %v", got, err)
	}
	if _, err := svc.Start(ctx, "T-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Edit(ctx, "T-1", nil, ticket.Ptr("other")); !errors.Is(err, ticket.ErrBusy) {
		t.Errorf("Edit() while working error = %v, want ErrBusy", err)
	}
}
