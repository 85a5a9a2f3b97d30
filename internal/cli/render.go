package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/expense"
	"github.com/goliatone/go-query-cache/resourcecache"
)

const (
	headerColor = lipgloss.Color("33")
	mutedColor  = lipgloss.Color("245")
	warnColor   = lipgloss.Color("214")
)

// newTable returns a bordered table. Colors are only applied on a terminal
// so piped output and golden files stay plain.
func newTable(w io.Writer, headers ...string) *table.Table {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)
	if !isTerminal(w) {
		return t
	}
	header := lipgloss.NewStyle().Bold(true).Foreground(headerColor).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	return t.
		BorderStyle(lipgloss.NewStyle().Foreground(mutedColor)).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
}

func writeLine(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format+"\n", args...)
	return err
}

func warn(w io.Writer, msg string) string {
	if !isTerminal(w) {
		return msg
	}
	return lipgloss.NewStyle().Foreground(warnColor).Render(msg)
}

func renderExpenseList(w io.Writer, view resourcecache.ListView[expense.Expense], q expense.Query, loc *time.Location) error {
	if len(view.Items) == 0 {
		return writeLine(w, "No expenses found.")
	}
	t := newTable(w, "ID", "TITLE", "AMOUNT", "CATEGORY", "CREATED")
	for _, e := range view.Items {
		t.Row(
			string(e.ID),
			e.Title,
			expense.FormatAmount(e.Amount),
			expense.CategoryLabel(e.Category),
			expense.FormatCreatedAt(e.CreatedAt, loc),
		)
	}
	if err := writeLine(w, "%s", t.String()); err != nil {
		return err
	}

	summary := fmt.Sprintf("%d expenses, %d page(s), sorted by %s", len(view.Items), view.Pages, sortLabel(q.Sort))
	if q.Category != "" {
		summary += ", category " + expense.CategoryLabel(q.Category)
	}
	if view.HasNextPage {
		summary += ", more available"
	}
	if err := writeLine(w, "%s", summary); err != nil {
		return err
	}
	if view.IsStale {
		return writeLine(w, "%s", warn(w, "Showing cached data that may be out of date."))
	}
	return nil
}

func sortLabel(s expense.Sort) string {
	for _, opt := range expense.SortOptions() {
		if opt.Value == s.String() {
			return opt.Label
		}
	}
	return s.String()
}

func renderExpense(w io.Writer, e expense.Expense, loc *time.Location) error {
	t := newTable(w, "FIELD", "VALUE").Rows(
		[]string{"ID", string(e.ID)},
		[]string{"Title", e.Title},
		[]string{"Amount", expense.FormatAmount(e.Amount)},
		[]string{"Category", expense.CategoryLabel(e.Category)},
		[]string{"Notes", e.Notes},
		[]string{"Created", expense.FormatCreatedAt(e.CreatedAt, loc)},
	)
	return writeLine(w, "%s", t.String())
}

func renderQueue(w io.Writer, pending []cache.PendingMutation, loc *time.Location) error {
	if len(pending) == 0 {
		return writeLine(w, "No pending changes.")
	}
	t := newTable(w, "MUTATION", "TYPE", "RESOURCE", "RECORD", "ATTEMPTS", "QUEUED", "LAST ERROR")
	for _, m := range pending {
		t.Row(
			m.ID,
			string(m.Type),
			m.Resource,
			m.EntityID,
			fmt.Sprintf("%d", m.Attempts),
			m.CreatedAt.In(loc).Format(expense.CreatedAtLayout),
			m.LastError,
		)
	}
	return writeLine(w, "%s", t.String())
}

func renderResume(w io.Writer, report cache.ResumeReport) error {
	lines := []string{fmt.Sprintf("Synced %d change(s).", report.Applied)}
	for _, r := range report.Rejected {
		lines = append(lines, fmt.Sprintf("Dropped %s %s %s: %v", r.Mutation.Type, r.Mutation.Resource, r.Mutation.ID, r.Err))
	}
	if report.Remaining > 0 {
		lines = append(lines, fmt.Sprintf("%d change(s) still pending.", report.Remaining))
	}
	return writeLine(w, "%s", strings.Join(lines, "\n"))
}

func onlineLabel(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}
