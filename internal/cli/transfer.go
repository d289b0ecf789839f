package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/conorfennell/neurapath/internal/domain"
	"github.com/conorfennell/neurapath/internal/export"
	"github.com/conorfennell/neurapath/internal/importer"
)

var errNeedsRemote = errors.New("this command needs a remote backend")

func newPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Download the remote database into the local data file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if a.remote == nil {
					return errNeedsRemote
				}
				db := a.store.Database()
				if err := writeLocal(a.cfg.Data.Path, db); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pulled %s into %s\n", plural(len(db.Items), "record"), a.cfg.Data.Path)
				return nil
			})
		},
	}
}

func newPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Replace the remote database with the local data file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if a.remote == nil {
					return errNeedsRemote
				}
				db, err := readLocal(a.cfg.Data.Path)
				if err != nil {
					return err
				}
				replace(a, db)
				fmt.Fprintf(cmd.OutOrStdout(), "Pushing %s from %s\n", plural(len(db.Items), "record"), a.cfg.Data.Path)
				return nil
			})
		},
	}
}

// replace swaps the store's contents for db and asks for a full save. The
// current profile is kept when db has none.
func replace(a *app, db domain.Database) {
	if db.Profile == nil {
		prof := a.store.Profile()
		db.Profile = &prof
	}
	a.store.Replace(db)
	a.fullSave = true
}

func formatFlag(cmd *cobra.Command, path string) (export.Format, error) {
	if name, _ := cmd.Flags().GetString("format"); name != "" {
		return export.ParseFormat(name)
	}
	if path == "-" {
		return export.JSON, nil
	}
	return export.FormatForPath(path)
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Write the database as JSON, YAML or CSV (\"-\" for stdout)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				path := "-"
				if len(args) == 1 {
					path = args[0]
				} else if name, _ := cmd.Flags().GetString("format"); name != "" {
					f, err := export.ParseFormat(name)
					if err != nil {
						return err
					}
					path = export.FileName(time.Now().Format("2006-01-02"), f)
				}
				format, err := formatFlag(cmd, path)
				if err != nil {
					return err
				}

				db := a.store.Database()
				if path == "-" {
					return export.Write(cmd.OutOrStdout(), db, format)
				}
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", path, err)
				}
				if err := export.Write(f, db, format); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return fmt.Errorf("failed to write %s: %w", path, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %s to %s\n", plural(len(db.Items), "record"), path)
				return nil
			})
		},
	}
	cmd.Flags().String("format", "", "json, yaml or csv (default from the file extension)")
	return cmd
}

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the database with an exported JSON, YAML or CSV file (\"-\" for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := formatFlag(cmd, args[0])
			if err != nil {
				return err
			}
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", args[0], err)
				}
				defer f.Close()
				r = f
			}
			db, err := export.Read(r, format)
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				replace(a, db)
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %s\n", plural(len(db.Items), "record"))
				return nil
			})
		},
	}
	cmd.Flags().String("format", "", "json, yaml or csv (default from the file extension)")
	return cmd
}

func newImportMarkdownCmd() *cobra.Command {
	var root string
	cmd := &cobra.Command{
		Use:   "import-md <file-or-dir>",
		Short: "Import markdown files as folders, extracts and clozes",
		Long: `Import markdown files. Each file becomes a folder named after its title,
headings become nested folders and paragraphs become extracts. {{text}} marks
a cloze, and a "Q: ... / A: ..." paragraph becomes an extract with a cloze
over the answer. Records that already exist are left alone, so importing the
same files again only adds what is new.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			im := importer.New()
			var records []domain.Record
			var errs []error

			err := filepath.WalkDir(args[0], func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
					return nil
				}
				fileRecords, parseErr := im.ImportFile(path, root)
				if parseErr != nil {
					errs = append(errs, fmt.Errorf("error importing %s: %w", path, parseErr))
				}
				records = append(records, fileRecords...)
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to walk %s: %w", args[0], err)
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				added := 0
				for _, rec := range records {
					if _, exists := a.store.GetRecordByID(rec.ID); exists {
						continue
					}
					if err := a.store.AddRecord(ctx, rec); err != nil {
						errs = append(errs, fmt.Errorf("error adding %s: %w", rec.ID, err))
						continue
					}
					added++
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Found %s, added %d, %s.\n", plural(len(records), "record"), added, plural(len(errs), "error"))
				if len(errs) > 0 {
					fmt.Fprintln(out, "\nErrors:")
					for _, e := range errs {
						fmt.Fprintf(out, "- %s\n", e)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "folder to import below")
	return cmd
}
