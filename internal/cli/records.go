package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/conorfennell/neurapath/internal/domain"
	"github.com/conorfennell/neurapath/internal/store"
	"github.com/conorfennell/neurapath/internal/tree"
)

const snippetLength = 60

// snippet returns the first line of a record's text, shortened.
func snippet(r domain.Record) string {
	text := domain.PlainText(r.Content)
	if r.ContentType == domain.Image || r.ContentType == domain.Occlusion {
		text = r.URL
	}
	text, _, _ = strings.Cut(strings.TrimSpace(text), "\n")
	if utf8.RuneCountInString(text) > snippetLength {
		text = string([]rune(text)[:snippetLength-3]) + "..."
	}
	return text
}

// printTree writes records indented by depth below base.
func printTree(w io.Writer, records []domain.Record, base string) {
	baseDepth := 0
	if base != "" {
		baseDepth = strings.Count(base, tree.Separator)
	}
	for _, r := range records {
		depth := strings.Count(r.ID, tree.Separator) - baseDepth
		line := fmt.Sprintf("%s%s [%s]", strings.Repeat("  ", depth), tree.Name(r.ID), r.ContentType)
		if s := snippet(r); s != "" {
			line += " " + s
		}
		if r.IsFlagged {
			line += " (flagged)"
		}
		fmt.Fprintln(w, line)
	}
}

func newTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree [id]",
		Short: "Show the record tree, or the subtree below id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if len(args) == 0 {
					printTree(cmd.OutOrStdout(), a.store.Records(), "")
					return nil
				}
				records := a.store.Subtree(args[0])
				if len(records) == 0 {
					return fmt.Errorf("%w: %s", store.ErrNotFound, args[0])
				}
				printTree(cmd.OutOrStdout(), records, args[0])
				return nil
			})
		},
	}
}

func newAddCmd() *cobra.Command {
	var (
		kind     string
		url      string
		priority int
		flagged  bool
	)
	cmd := &cobra.Command{
		Use:   "add <id> [text]",
		Short: "Add a record",
		Long: `Add a record at id. Parent folders do not have to exist. With text and no
--type the record is an extract; without text it is a folder.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec := domain.Record{ID: args[0], URL: url, IsFlagged: flagged}
			if len(args) == 2 {
				rec.Content = domain.TextContent(args[1])
			}
			switch {
			case kind != "":
				rec.ContentType = domain.ContentType(kind)
			case url != "":
				rec.ContentType = domain.Image
			case len(args) == 2:
				rec.ContentType = domain.Extract
			default:
				rec.ContentType = domain.Folder
			}
			if cmd.Flags().Changed("priority") {
				rec.Priority = domain.Ptr(priority)
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				if _, exists := a.store.GetRecordByID(rec.ID); exists {
					return &store.ConflictError{ID: rec.ID}
				}
				if err := a.store.AddRecord(ctx, rec); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s [%s]\n", rec.ID, rec.ContentType)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "type", "", "content type: Folder, Extract, Cloze, Image or Occlusion")
	cmd.Flags().StringVar(&url, "image", "", "image URL")
	cmd.Flags().IntVar(&priority, "priority", 0, "review priority, lowest first")
	cmd.Flags().BoolVar(&flagged, "flag", false, "flag the record")
	return cmd
}

func newClozeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cloze <extract-id> <text>",
		Short: "Turn the first occurrence of text in an extract into a cloze",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				ext, ok := a.store.GetRecordByID(args[0])
				if !ok {
					return fmt.Errorf("%w: %s", store.ErrNotFound, args[0])
				}
				plain := domain.PlainText(ext.Content)
				i := strings.Index(plain, args[1])
				if i < 0 || args[1] == "" {
					return fmt.Errorf("%q does not occur in %s", args[1], args[0])
				}
				start := utf8.RuneCountInString(plain[:i])
				span := domain.ClozeSpan{
					Text:        args[1],
					StartOffset: start,
					StopOffset:  start + utf8.RuneCountInString(args[1]),
				}
				child, err := a.store.AddCloze(ctx, args[0], span)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s [%s]\n", child.ID, child.ContentType)
				return nil
			})
		},
	}
}

func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <id> <new-parent>",
		Short: "Move a record and its subtree below new-parent (\"/\" for the top level)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			parent := strings.Trim(args[1], tree.Separator)
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.store.MoveItem(ctx, args[0], parent); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Moved %s to %s\n", args[0], tree.Join(parent, tree.Name(args[0])))
				return nil
			})
		},
	}
}

func newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a record, keeping its subtree",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.store.RenameItem(ctx, args[0], args[1]); err != nil {
					return err
				}
				parent, _ := tree.ParentID(args[0])
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %s\n", args[0], tree.Join(parent, args[1]))
				return nil
			})
		},
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a record; folders are removed with their contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				rec, ok := a.store.GetRecordByID(args[0])
				if !ok {
					return fmt.Errorf("%w: %s", store.ErrNotFound, args[0])
				}
				if rec.ContentType == domain.Folder {
					n := len(a.store.Subtree(rec.ID))
					if err := a.store.RemoveFolderAndContents(ctx, rec.ID); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Removed %s and %s\n", rec.ID, plural(n-1, "record"))
					return nil
				}
				if err := a.store.RemoveRecordByID(ctx, rec.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", rec.ID)
				return nil
			})
		},
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}
