package cmd

import (
	"context"
	"fmt"

	"github.com/fioncat/dbutils/osutils"
	"github.com/spf13/cobra"
)

func Library() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "library",
		Short: "Manage the libraries installed in a session",
	}

	cmd.AddCommand(libraryList())
	cmd.AddCommand(libraryInstall())
	cmd.AddCommand(libraryInstallPyPI())
	cmd.AddCommand(libraryRestart())

	return cmd
}

func libraryList() *cobra.Command {
	var showJson bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed libraries",

		Args: cobra.ExactArgs(0),
	}

	buildWorkspaceCommand(cmd, func(opts *Options, _ []string) error {
		libs, err := opts.Utils.Library().List(context.Background())
		if err != nil {
			return err
		}
		if showJson {
			return printJson(libs)
		}
		if len(libs) == 0 {
			fmt.Println("No library")
			return nil
		}
		rows := make([][]string, len(libs))
		for i, lib := range libs {
			rows[i] = []string{string(lib.Kind), lib.String(), lib.Repo}
		}
		osutils.ShowTable([]string{"Kind", "Library", "Repo"}, rows)
		return nil
	})

	cmd.Flags().BoolVarP(&showJson, "json", "", false, "Print as json")
	return cmd
}

func libraryInstall() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install URI",
		Short: "Install a library file",

		Args: cobra.ExactArgs(1),
	}

	buildWorkspaceCommand(cmd, func(opts *Options, args []string) error {
		return opts.Utils.Library().Install(context.Background(), args[0])
	})

	return cmd
}

func libraryInstallPyPI() *cobra.Command {
	var version, repo, extras string
	cmd := &cobra.Command{
		Use:   "install-pypi PROJECT [--version VERSION] [--repo REPO] [--extras EXTRAS]",
		Short: "Install a package index project",

		Args: cobra.ExactArgs(1),
	}

	buildWorkspaceCommand(cmd, func(opts *Options, args []string) error {
		return opts.Utils.Library().InstallPyPI(context.Background(), args[0], version, repo, extras)
	})

	flags := cmd.Flags()
	flags.StringVarP(&version, "version", "", "", "The project version")
	flags.StringVarP(&repo, "repo", "", "", "The package index url")
	flags.StringVarP(&extras, "extras", "", "", "The project extras")
	return cmd
}

func libraryRestart() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Reset the session libraries and the assumed role",

		Args: cobra.ExactArgs(0),
	}

	buildWorkspaceCommand(cmd, func(opts *Options, _ []string) error {
		return opts.Utils.Library().RestartPython(context.Background())
	})

	return cmd
}
