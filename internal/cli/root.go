// Package cli implements the neurapath command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conorfennell/neurapath/internal/config"
)

// NewRootCommand builds the command tree.
func NewRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "neurapath",
		Short: "neurapath - a tree of notes, extracts and flashcards",
		Long: `neurapath keeps a tree of folders, extracts, clozes and images, schedules
them for review with SM-2 and syncs them to a server, a database or a git
repository.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "YAML config file")
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newServeCmd(),
		newRegisterCmd(),
		newUnregisterCmd(),
		newShareCmd(),
		newPullCmd(),
		newPushCmd(),
		newSyncCmd(),
		newTreeCmd(),
		newAddCmd(),
		newClozeCmd(),
		newMvCmd(),
		newRenameCmd(),
		newRmCmd(),
		newDueCmd(),
		newGradeCmd(),
		newExportCmd(),
		newImportCmd(),
		newImportMarkdownCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute(version string) error {
	if err := NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
