package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-query-cache/cache"
)

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay queued changes against the API",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, _ []string) error {
			report, err := a.container.Cache().ResumePausedMutations(cmd.Context())
			if errors.Is(err, cache.ErrOffline) {
				return writeLine(cmd.OutOrStdout(), "%s", warn(cmd.OutOrStdout(),
					fmt.Sprintf("Offline: %d change(s) waiting to sync.", len(a.container.Cache().PendingMutations()))))
			}
			if rerr := renderResume(cmd.OutOrStdout(), report); rerr != nil {
				return rerr
			}
			return err
		}),
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connectivity and queued changes",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			cfg := a.container.Config()
			pending := a.container.Cache().PendingMutations()

			lines := []string{
				fmt.Sprintf("API:      %s/%s", strings.TrimRight(cfg.API.BaseURL, "/"), cfg.API.Resource),
				fmt.Sprintf("Network:  %s", onlineLabel(a.container.Monitor().IsOnline())),
				fmt.Sprintf("Cached:   %d queries", len(a.container.Cache().Entries())),
				fmt.Sprintf("Pending:  %d change(s)", len(pending)),
			}
			if cfg.Persist.Enabled {
				lines = append(lines, fmt.Sprintf("Storage:  %s", cfg.Persist.Backend))
			} else {
				lines = append(lines, "Storage:  disabled")
			}
			if err := writeLine(out, "%s", strings.Join(lines, "\n")); err != nil {
				return err
			}
			if len(pending) == 0 {
				return nil
			}
			return renderQueue(out, pending, a.loc)
		}),
	}
}

func newCancelCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <mutation-id>",
		Short: "Drop a queued change",
		Args:  cobra.ExactArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			if err := a.container.Cache().CancelMutation(cmd.Context(), args[0]); err != nil {
				return err
			}
			return writeLine(cmd.OutOrStdout(), "Cancelled change %s.", args[0])
		}),
	}
}

// FormatError renders err for the terminal, listing field errors one per
// line.
func FormatError(err error) string {
	if err == nil {
		return ""
	}
	var b strings.Builder
	fields, ok := goerrors.GetValidationErrors(err)
	var gerr *goerrors.Error
	if ok && goerrors.As(err, &gerr) {
		b.WriteString("Error: " + gerr.Message)
	} else {
		b.WriteString("Error: " + err.Error())
	}
	if ok {
		sorted := append(goerrors.ValidationErrors(nil), fields...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Field < sorted[j].Field })
		for _, f := range sorted {
			b.WriteString(fmt.Sprintf("\n  %s: %s", f.Field, f.Message))
		}
	}
	return b.String()
}
