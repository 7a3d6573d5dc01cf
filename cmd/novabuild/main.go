package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/asakaida/placement/internal/build"
	"github.com/asakaida/placement/internal/infrastructure/config"
	"github.com/asakaida/placement/internal/infrastructure/logging"
	"github.com/asakaida/placement/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		root    string
		verbose bool
		logger  = zap.NewNop()
	)

	cmd := &cobra.Command{
		Use:          "novabuild",
		Short:        "Release tooling: version file, ChangeLog and installed scripts",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if root == "" {
				r, err := config.ProjectRoot()
				if err != nil {
					return err
				}
				root = r
			}
			l, err := logging.NewCLI(os.Getenv("ENV"), verbose)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&root, "root", "", "Project root (default: the directory holding go.mod)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	cmd.AddCommand(&cobra.Command{
		Use:   "version-file",
		Short: "Regenerate " + build.VersionFilePath + " from the git working copy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := build.WriteVersionFile(cmd.Context(), root, build.NewGit(), logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s:%s\n", info.BranchNick, info.RevisionID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "changelog",
		Short: "Write " + build.ChangeLogFile + " from the git history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wrote, err := build.WriteChangeLog(cmd.Context(), root, build.NewGit(), logger)
			if err != nil {
				return err
			}
			if !wrote {
				fmt.Fprintln(cmd.OutOrStdout(), "not a git working copy, ChangeLog not written")
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "scripts",
		Short: "List the installed entry points",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range build.Scripts() {
				fmt.Fprintln(cmd.OutOrStdout(), s.Path)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the release version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			meta := build.DistMetadata()
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", meta.Name, version.StringWithVCS(), meta.Description)
			return nil
		},
	})

	return cmd
}
