package cli

import (
	"encoding/json"
	"fmt"
	"net/url"

	goerrors "github.com/goliatone/go-errors"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/expense"
	"github.com/goliatone/go-query-cache/resourcecache"
)

func newListCmd(a *app) *cobra.Command {
	var (
		category string
		sortBy   string
		pages    int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List expenses, newest first",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, _ []string) error {
			q, err := expense.ParseQuery(url.Values{"category": {category}, "sort": {sortBy}})
			if err != nil {
				return err
			}
			if pages < 1 {
				return goerrors.New(fmt.Sprintf("--pages must be at least 1, got %d", pages), goerrors.CategoryBadInput)
			}

			ctx := cmd.Context()
			lq, err := a.container.Expenses().FetchList(ctx, q.Filter())
			if err != nil {
				return err
			}
			for len(lq.Result().Data.Pages) < pages && lq.HasNextPage() {
				if _, err := lq.FetchNextPage(ctx); err != nil {
					return err
				}
			}
			return renderExpenseList(cmd.OutOrStdout(), resourcecache.NewListView(lq), q, a.loc)
		}),
	}
	cmd.Flags().StringVar(&category, "category", "", "only show this category (food, travel, shopping)")
	cmd.Flags().StringVar(&sortBy, "sort", expense.DefaultSort.String(), "sort order: amount_asc, amount_desc, createdAt_asc, createdAt_desc")
	cmd.Flags().IntVar(&pages, "pages", 1, "number of pages to load")
	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one expense",
		Args:  cobra.ExactArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			view, err := a.container.Expenses().FetchByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !view.Found {
				return goerrors.New(fmt.Sprintf("expense %s not found", args[0]), goerrors.CategoryNotFound)
			}
			return renderExpense(cmd.OutOrStdout(), view.Data, a.loc)
		}),
	}
}

// draftFlags collects the editable fields. Only flags the user set end up
// in the draft.
type draftFlags struct {
	title    string
	amount   string
	category string
	notes    string
}

func (f *draftFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "expense title")
	cmd.Flags().StringVar(&f.amount, "amount", "", "amount, e.g. 12.50")
	cmd.Flags().StringVar(&f.category, "category", "", "category (food, travel, shopping)")
	cmd.Flags().StringVar(&f.notes, "notes", "", "free form notes")
}

func (f *draftFlags) draft(cmd *cobra.Command) (expense.Draft, error) {
	var d expense.Draft
	if cmd.Flags().Changed("title") {
		d.Title = expense.String(f.title)
	}
	if cmd.Flags().Changed("amount") {
		amount, err := expense.ParseAmount(f.amount)
		if err != nil {
			return d, goerrors.NewValidation("invalid expense",
				goerrors.FieldError{Field: "amount", Message: "must be a number"})
		}
		d.Amount = &amount
	}
	if cmd.Flags().Changed("category") {
		d.Category = expense.String(f.category)
	}
	if cmd.Flags().Changed("notes") {
		d.Notes = expense.String(f.notes)
	}
	return d, nil
}

func newAddCmd(a *app) *cobra.Command {
	var flags draftFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a new expense",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, _ []string) error {
			d, err := flags.draft(cmd)
			if err != nil {
				return err
			}
			if err := d.ValidateCreate(); err != nil {
				return err
			}
			res, err := a.container.Expenses().Create().Mutate(cmd.Context(), d, resourcecache.Callbacks[expense.Expense]{})
			if err != nil {
				return err
			}
			return reportWrite(cmd, res, "Added")
		}),
	}
	flags.register(cmd)
	return cmd
}

func newUpdateCmd(a *app) *cobra.Command {
	var flags draftFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of an expense",
		Args:  cobra.ExactArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			d, err := flags.draft(cmd)
			if err != nil {
				return err
			}
			if d == (expense.Draft{}) {
				return goerrors.New("nothing to update: pass at least one of --title, --amount, --category, --notes", goerrors.CategoryBadInput)
			}
			if err := d.ValidateUpdate(); err != nil {
				return err
			}
			res, err := a.container.Expenses().Update().Mutate(cmd.Context(),
				resourcecache.UpdateInput{ID: args[0], Data: d},
				resourcecache.Callbacks[expense.Expense]{})
			if err != nil {
				return err
			}
			return reportWrite(cmd, res, "Updated")
		}),
	}
	flags.register(cmd)
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an expense",
		Args:  cobra.ExactArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			res, err := a.container.Expenses().Delete().Mutate(cmd.Context(), args[0], resourcecache.Callbacks[string]{})
			if err != nil {
				return err
			}
			if res.State == cache.MutationPaused {
				return writeQueued(cmd, res.ID)
			}
			return writeLine(cmd.OutOrStdout(), "Deleted expense %s.", args[0])
		}),
	}
}

func reportWrite(cmd *cobra.Command, res cache.MutationResult, verb string) error {
	if res.State == cache.MutationPaused {
		return writeQueued(cmd, res.ID)
	}
	var e expense.Expense
	if err := json.Unmarshal(res.Data, &e); err != nil {
		return writeLine(cmd.OutOrStdout(), "%s expense.", verb)
	}
	return writeLine(cmd.OutOrStdout(), "%s expense %s: %s (%s).", verb, e.ID, e.Title, expense.FormatAmount(e.Amount))
}

func writeQueued(cmd *cobra.Command, id string) error {
	return writeLine(cmd.OutOrStdout(), "Queued change %s. It will sync when you are back online.", id)
}
