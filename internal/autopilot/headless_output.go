package autopilot

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// HeadlessOutput prints run progress for non-interactive use, either as
// [PREFIX] tagged lines or as JSON Lines.
type HeadlessOutput struct {
	jsonl  bool
	mu     sync.Mutex
	writer io.Writer
}

// NewHeadlessOutput creates a formatter writing to stdout.
func NewHeadlessOutput(jsonl bool) *HeadlessOutput {
	return &HeadlessOutput{jsonl: jsonl, writer: os.Stdout}
}

// SetWriter sets a custom writer (mainly for testing).
func (h *HeadlessOutput) SetWriter(w io.Writer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writer = w
}

// Handle prints one progress event. It can be passed directly as the
// onProgress callback.
func (h *HeadlessOutput) Handle(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch e := ev.(type) {
	case NoTickets:
		if h.jsonl {
			h.writeJSON(map[string]interface{}{"type": string(e.Kind()), "run_id": e.RunID})
		} else {
			fmt.Fprintln(h.writer, "[IDLE] No pending tickets")
		}
	case Started:
		if h.jsonl {
			ids := make([]string, len(e.Tickets))
			for i, t := range e.Tickets {
				ids[i] = t.ID
			}
			h.writeJSON(map[string]interface{}{
				"type":    string(e.Kind()),
				"run_id":  e.RunID,
				"total":   e.Total,
				"tickets": ids,
			})
		} else {
			fmt.Fprintf(h.writer, "[START] Run %s: %d pending ticket(s)\n", e.RunID, e.Total)
		}
	case Processing:
		if h.jsonl {
			h.writeJSON(map[string]interface{}{
				"type":      string(e.Kind()),
				"ticket_id": e.Ticket.ID,
				"name":      e.Ticket.Name,
				"current":   e.Current,
				"total":     e.Total,
			})
		} else {
			fmt.Fprintf(h.writer, "[TICKET] (%d/%d) %s\n", e.Current, e.Total, e.Ticket.ID)
		}
	case TicketCompleted:
		if h.jsonl {
			h.writeJSON(map[string]interface{}{
				"type":        string(e.Kind()),
				"ticket_id":   e.Outcome.Ticket.ID,
				"current":     e.Current,
				"total":       e.Total,
				"test_branch": e.Outcome.TestBranch,
				"commit":      e.Outcome.CommitMessage,
				"duration_ms": e.Outcome.Duration.Milliseconds(),
			})
		} else {
			fmt.Fprintf(h.writer, "[CLOSED] (%d/%d) %s -> %s\n",
				e.Current, e.Total, e.Outcome.Ticket.ID, e.Outcome.TestBranch)
		}
		h.warnings(e.Outcome)
	case TicketFailed:
		if h.jsonl {
			h.writeJSON(map[string]interface{}{
				"type":        string(e.Kind()),
				"ticket_id":   e.Outcome.Ticket.ID,
				"current":     e.Current,
				"total":       e.Total,
				"error":       e.Error,
				"duration_ms": e.Outcome.Duration.Milliseconds(),
			})
		} else {
			fmt.Fprintf(h.writer, "[ERROR] (%d/%d) %s: %s\n", e.Current, e.Total, e.Outcome.Ticket.ID, e.Error)
		}
		h.warnings(e.Outcome)
	case Cancelled:
		if h.jsonl {
			h.writeJSON(map[string]interface{}{
				"type":      string(e.Kind()),
				"processed": e.Processed,
				"remaining": e.Remaining,
			})
		} else {
			fmt.Fprintf(h.writer, "[STOPPED] Stopped after %d ticket(s), %d left pending\n", e.Processed, e.Remaining)
		}
	case Completed:
		r := e.Result
		if h.jsonl {
			h.writeJSON(map[string]interface{}{
				"type":        string(e.Kind()),
				"run_id":      r.RunID,
				"completed":   len(r.Completed),
				"failed":      len(r.Failed),
				"cancelled":   r.Cancelled,
				"duration_ms": r.Duration.Milliseconds(),
			})
		} else {
			fmt.Fprintf(h.writer, "[COMPLETE] %d closed, %d failed in %v\n",
				len(r.Completed), len(r.Failed), r.Duration.Round(time.Second))
		}
	}
}

func (h *HeadlessOutput) warnings(o Outcome) {
	for _, w := range o.Warnings {
		if h.jsonl {
			h.writeJSON(map[string]interface{}{"type": "warning", "ticket_id": o.Ticket.ID, "message": w})
		} else {
			fmt.Fprintf(h.writer, "[WARN] %s: %s\n", o.Ticket.ID, w)
		}
	}
}

// Output prints streamed agent text for a ticket.
func (h *HeadlessOutput) Output(ticketID, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.jsonl {
		for _, line := range strings.Split(text, "\n") {
			if strings.TrimSpace(line) != "" {
				h.writeJSON(map[string]interface{}{
					"type":      "output",
					"ticket_id": ticketID,
					"text":      line,
				})
			}
		}
		return
	}
	fmt.Fprint(h.writer, text)
}

// Interrupted reports a hard interrupt.
func (h *HeadlessOutput) Interrupted() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.jsonl {
		h.writeJSON(map[string]interface{}{"type": "interrupted"})
	} else {
		fmt.Fprintln(h.writer, "\n[INTERRUPTED] Run interrupted by user")
	}
}

// writeJSON writes a JSON object as a single line.
func (h *HeadlessOutput) writeJSON(data map[string]interface{}) {
	b, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintln(h.writer, string(b))
}
