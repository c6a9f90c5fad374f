package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/fatih/color"
	"github.com/fioncat/dbutils/cmd"
	"github.com/fioncat/dbutils/types"
	"github.com/spf13/cobra"
)

var (
	Version     = "N/A"
	BuildType   = "N/A"
	BuildCommit = "N/A"
	BuildTime   = "N/A"
)

var rootCmd = &cobra.Command{
	Use: "dbutils",

	Short: "The dbutils command line tool",

	SilenceErrors: true,
	SilenceUsage:  true,

	Version: Version,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show dbutils full version info",

	Args: cobra.ExactArgs(0),

	RunE: func(_ *cobra.Command, _ []string) error {
		fmt.Printf("dbutils %s\n", Version)
		fmt.Printf("golang %s\n", strings.TrimPrefix(runtime.Version(), "go"))
		fmt.Println("")
		fmt.Printf("Build type:   %s\n", BuildType)
		fmt.Printf("Build target: %s-%s\n", runtime.GOOS, runtime.GOARCH)
		fmt.Printf("Commit SHA:   %s\n", BuildCommit)
		fmt.Printf("Build time:   %s\n", BuildTime)
		fmt.Println("")

		cfg, err := types.LoadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Config path: %s\n", cfg.Path)
		fmt.Printf("Base path:   %s\n", cfg.BaseDir)
		fmt.Printf("DBFS root:   %s\n", cfg.DBFSRoot)

		return nil
	},
}

func main() {
	cmd.AddGlobalFlags(rootCmd)

	rootCmd.AddCommand(cmd.FS())
	rootCmd.AddCommand(cmd.Secrets())
	rootCmd.AddCommand(cmd.Library())
	rootCmd.AddCommand(cmd.Data())
	rootCmd.AddCommand(cmd.Fuse())

	rootCmd.AddCommand(versionCmd)

	err := rootCmd.Execute()
	if err != nil {
		fmt.Printf("%s: %v\n", color.RedString("Error"), err)
		os.Exit(1)
	}
}
