package cli

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conorfennell/neurapath/internal/review"
	"github.com/conorfennell/neurapath/internal/sm2"
)

func newDueCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "due",
		Short: "List records due for review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				due := review.New(a.store, nil, a.logger).Due()
				if len(due) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing is due.")
					return nil
				}
				if limit > 0 && len(due) > limit {
					due = due[:limit]
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTYPE\tDUE\tTEXT")
				for _, r := range due {
					when := "new"
					if r.DueDate != nil {
						when = r.DueDate.Format("2006-01-02")
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.ContentType, when, snippet(r))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "show at most this many records")
	return cmd
}

func newGradeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grade <id> <0-5>",
		Short: "Record a review grade and reschedule the record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("grade must be a number from 0 to 5: %w", err)
			}
			g := sm2.Grade(n)
			if !g.IsValid() {
				return fmt.Errorf("%w: %d", sm2.ErrInvalidGrade, n)
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				rec, err := review.New(a.store, nil, a.logger).Grade(ctx, args[0], g)
				if err != nil {
					return err
				}
				a.fullSave = true
				fmt.Fprintf(cmd.OutOrStdout(), "Graded %s %s: next review in %d days (%s)\n",
					rec.ID, g, *rec.Interval, rec.DueDate.Format("2006-01-02"))
				return nil
			})
		},
	}
}
