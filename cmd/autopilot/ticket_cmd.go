package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/edsandoval/autopilot/internal/ticket"
)

var ticketCmd = &cobra.Command{
	Use:     "ticket",
	Aliases: []string{"t"},
	Short:   "Create and manage tickets",
}

var ticketCreateCmd = &cobra.Command{
	Use:   "create <id> [description...]",
	Short: "Create a pending ticket",
	Long: `Create a pending ticket. The description is taken from the remaining
arguments, or from --file ("-" reads stdin).`,
	Args: usageArgs(cobra.MinimumNArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		description := strings.Join(args[1:], " ")
		if file, _ := cmd.Flags().GetString("file"); file != "" {
			data, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			description = strings.TrimSpace(string(data))
		}
		if description == "" {
			return usageError(fmt.Errorf("a description is required"))
		}

		a, err := loadApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()

		t, err := a.lifecycle(nil).Create(cmd.Context(), args[0], description)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", t.ID)
		return nil
	},
}

var ticketListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tickets",
	Args:    usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		if status != "" && !ticket.Status(status).Valid() {
			return usageError(fmt.Errorf("unknown status %q", status))
		}

		a, err := loadApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()

		all, err := a.store.List(cmd.Context())
		if err != nil {
			return err
		}
		var tickets []*ticket.Ticket
		for _, t := range all {
			if status == "" || t.Status == ticket.Status(status) {
				tickets = append(tickets, t)
			}
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			if tickets == nil {
				tickets = []*ticket.Ticket{}
			}
			return writeJSON(cmd.OutOrStdout(), tickets)
		}
		if len(tickets) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No tickets.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTickets(tickets))
		return nil
	},
}

var ticketShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a ticket",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()

		t, err := a.store.Get(cmd.Context(), args[0])
		if err != nil {
			return a.suggest(cmd.Context(), args[0], err)
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(cmd.OutOrStdout(), t)
		}
		printTicket(cmd.OutOrStdout(), t)
		return nil
	},
}

var ticketEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change a ticket's name or description",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		var name, description *string
		if cmd.Flags().Changed("name") {
			v, _ := cmd.Flags().GetString("name")
			name = &v
		}
		if cmd.Flags().Changed("description") {
			v, _ := cmd.Flags().GetString("description")
			description = &v
		}
		if name == nil && description == nil {
			return usageError(fmt.Errorf("nothing to change: pass --name or --description"))
		}

		a, err := loadApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()

		t, err := a.lifecycle(nil).Edit(cmd.Context(), args[0], name, description)
		if err != nil {
			return a.suggest(cmd.Context(), args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", t.ID)
		return nil
	},
}

// transitionCmd builds a command applying one lifecycle operation.
func transitionCmd(use, short, verb string, op func(a *app, cmd *cobra.Command, id string) (*ticket.Ticket, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			t, err := op(a, cmd, args[0])
			if err != nil {
				return a.suggest(cmd.Context(), args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", verb, t.ID, t.Status)
			if t.Branch != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Branch: %s\n", t.Branch)
			}
			return nil
		},
	}
}

var ticketStartCmd = transitionCmd("start", "Start working on a ticket", "Started",
	func(a *app, cmd *cobra.Command, id string) (*ticket.Ticket, error) {
		return a.lifecycle(nil).Start(cmd.Context(), id)
	})

var ticketStopCmd = transitionCmd("stop", "Pause work on a ticket", "Stopped",
	func(a *app, cmd *cobra.Command, id string) (*ticket.Ticket, error) {
		return a.lifecycle(nil).Stop(cmd.Context(), id)
	})

var ticketCloseCmd = transitionCmd("close", "Mark a ticket done", "Closed",
	func(a *app, cmd *cobra.Command, id string) (*ticket.Ticket, error) {
		return a.lifecycle(nil).Close(cmd.Context(), id)
	})

var ticketDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a ticket with its worktree and branches",
	Args:    usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()

		warnings, err := a.lifecycle(nil).Delete(cmd.Context(), args[0])
		for _, w := range warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", w)
		}
		if err != nil {
			return a.suggest(cmd.Context(), args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

var (
	statusStyles = map[ticket.Status]lipgloss.Style{
		ticket.StatusPending:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		ticket.StatusBranching: lipgloss.NewStyle().Foreground(lipgloss.Color("86")),
		ticket.StatusWorking:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		ticket.StatusStopped:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		ticket.StatusClosed:    lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
		ticket.StatusError:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func renderTickets(tickets []*ticket.Ticket) string {
	rows := make([][]string, len(tickets))
	for i, t := range tickets {
		rows[i] = []string{t.ID, string(t.Status), t.CreatedAt.Local().Format("2006-01-02 15:04"), oneLine(t.Description, 50)}
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("241"))).
		Headers("ID", "STATUS", "CREATED", "DESCRIPTION").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			if col == 1 && row >= 0 && row < len(tickets) {
				return statusStyles[tickets[row].Status].Padding(0, 1)
			}
			return tableCellStyle
		}).
		Render()
}

func printTicket(w io.Writer, t *ticket.Ticket) {
	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(w, "%-12s %s\n", label+":", value)
		}
	}
	stamp := func(ts *time.Time) string {
		if ts == nil {
			return ""
		}
		return ts.Local().Format(time.RFC3339)
	}

	field("ID", t.ID)
	if t.Name != t.ID {
		field("Name", t.Name)
	}
	field("Status", string(t.Status))
	field("Created", t.CreatedAt.Local().Format(time.RFC3339))
	field("Started", stamp(t.StartedAt))
	field("Stopped", stamp(t.StoppedAt))
	field("Closed", stamp(t.ClosedAt))
	field("Branch", t.Branch)
	field("Error", t.Error)
	fmt.Fprintf(w, "\n%s\n", t.Description)
	if t.Summary != "" {
		fmt.Fprintf(w, "\nSummary:\n%s\n", t.Summary)
	}
}

// suggest adds the closest ticket ids to a not-found error. Lookup itself
// stays exact.
func (a *app) suggest(ctx context.Context, query string, err error) error {
	if !errors.Is(err, ticket.ErrNotFound) {
		return err
	}
	tickets, lerr := a.store.List(ctx)
	if lerr != nil || len(tickets) == 0 {
		return err
	}
	ids := make([]string, len(tickets))
	for i, t := range tickets {
		ids[i] = t.ID
	}
	if names := closest(query, ids, 3); len(names) > 0 {
		return fmt.Errorf("%w (did you mean %s?)", err, strings.Join(names, ", "))
	}
	return err
}

func closest(query string, candidates []string, limit int) []string {
	matches := fuzzy.Find(strings.ToLower(query), lowerAll(candidates))
	var out []string
	for i, m := range matches {
		if i == limit {
			break
		}
		out = append(out, candidates[m.Index])
	}
	return out
}

func lowerAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToLower(s)
	}
	return out
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= max {
		return s
	}
	return string([]rune(s)[:max-3]) + "..."
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func init() {
	ticketCreateCmd.Flags().StringP("file", "f", "", "read the description from a file (- for stdin)")
	ticketListCmd.Flags().String("status", "", "only list tickets with this status")
	ticketListCmd.Flags().Bool("json", false, "print JSON")
	ticketShowCmd.Flags().Bool("json", false, "print JSON")
	ticketEditCmd.Flags().String("name", "", "new display name")
	ticketEditCmd.Flags().String("description", "", "new description")

	ticketCmd.AddCommand(ticketCreateCmd, ticketListCmd, ticketShowCmd, ticketEditCmd,
		ticketStartCmd, ticketStopCmd, ticketCloseCmd, ticketDeleteCmd)
	rootCmd.AddCommand(ticketCmd)
}
