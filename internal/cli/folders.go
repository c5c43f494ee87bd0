package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/docindex/internal/models"
)

func newFoldersCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folders",
		Short: "Manage the folders watched when watch runs without arguments",
	}
	cmd.AddCommand(
		newFoldersListCmd(opts),
		newFoldersAddCmd(opts),
		newFoldersUpdateCmd(opts),
		newFoldersRemoveCmd(opts),
	)
	return cmd
}

func newFoldersListCmd(opts *rootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List watch folders, highest priority first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			folders, err := a.DBClient.ListWatchFolders(cmd.Context(), !all)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(folders) == 0 {
				skipColor.Fprintln(out, "No watch folders registered")
				return nil
			}
			for _, f := range folders {
				printFolder(out, f)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include inactive folders")
	return cmd
}

func newFoldersAddCmd(opts *rootOptions) *cobra.Command {
	var (
		recursive bool
		types     []string
		priority  int
	)
	cmd := &cobra.Command{
		Use:   "add <dir>",
		Short: "Register a directory for the watch daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := folderPath(args[0])
			if err != nil {
				return err
			}
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			f := &models.WatchFolder{FolderPath: dir, Recursive: recursive, FileTypes: types, Priority: priority}
			if err := a.DBClient.AddWatchFolder(cmd.Context(), f); err != nil {
				return err
			}
			okColor.Fprint(cmd.OutOrStdout(), "Added ")
			printFolder(cmd.OutOrStdout(), *f)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Also watch subdirectories")
	cmd.Flags().StringSliceVar(&types, "types", nil, "File extensions to accept, e.g. pdf,md (default: all supported)")
	cmd.Flags().IntVar(&priority, "priority", 0, "Higher priorities are ingested first")
	return cmd
}

func newFoldersUpdateCmd(opts *rootOptions) *cobra.Command {
	var (
		path      string
		recursive bool
		types     []string
		priority  int
		active    bool
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change the settings of a watch folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFolderID(args[0])
			if err != nil {
				return err
			}
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			f, err := a.DBClient.GetWatchFolder(cmd.Context(), id)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("path") {
				if f.FolderPath, err = folderPath(path); err != nil {
					return err
				}
			}
			if flags.Changed("recursive") {
				f.Recursive = recursive
			}
			if flags.Changed("types") {
				f.FileTypes = types
			}
			if flags.Changed("priority") {
				f.Priority = priority
			}
			if flags.Changed("active") {
				f.Active = active
			}
			if err := a.DBClient.UpdateWatchFolder(cmd.Context(), f); err != nil {
				return err
			}
			okColor.Fprint(cmd.OutOrStdout(), "Updated ")
			printFolder(cmd.OutOrStdout(), *f)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "New directory")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Also watch subdirectories")
	cmd.Flags().StringSliceVar(&types, "types", nil, "File extensions to accept (empty accepts all supported)")
	cmd.Flags().IntVar(&priority, "priority", 0, "Higher priorities are ingested first")
	cmd.Flags().BoolVar(&active, "active", true, "Whether watch picks the folder up")
	return cmd
}

func newFoldersRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a watch folder",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFolderID(args[0])
			if err != nil {
				return err
			}
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.DBClient.DeleteWatchFolder(cmd.Context(), id); err != nil {
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "Removed watch folder %d\n", id)
			return nil
		},
	}
}

func printFolder(out io.Writer, f models.WatchFolder) {
	types := "all"
	if len(f.FileTypes) > 0 {
		types = strings.Join(f.FileTypes, ",")
	}
	state := "active"
	if !f.Active {
		state = "inactive"
	}
	fmt.Fprintf(out, "#%d %s (priority %d, recursive %t, types %s, %s)\n",
		f.ID, f.FolderPath, f.Priority, f.Recursive, types, state)
}

func folderPath(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}
	return abs, nil
}

func parseFolderID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid watch folder id %q", s)
	}
	return id, nil
}
