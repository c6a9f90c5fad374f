package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/fioncat/dbutils/dbutils"
	"github.com/fioncat/dbutils/types"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Options are shared by every command that opens the workspace.
type Options struct {
	Config *types.Config

	Workspace *dbutils.Workspace

	Utils *dbutils.DBUtils
}

var session string

// AddGlobalFlags registers the flags every command understands.
func AddGlobalFlags(cmd *cobra.Command) {
	var debug bool
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&debug, "debug", "", false, "Set log level to debug")
	flags.StringVarP(&session, "session", "s", "cli", "The session scoping widgets and libraries")

	cmd.PersistentPreRun = func(_ *cobra.Command, _ []string) {
		if debug {
			logrus.SetLevel(logrus.DebugLevel)
		}
	}
}

func buildWorkspaceCommand(cmd *cobra.Command, action func(opts *Options, args []string) error) {
	cmd.RunE = func(c *cobra.Command, args []string) error {
		cfg, err := types.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logrus.Debugf("The config value is: %+v", cfg)

		ws, err := dbutils.OpenWorkspace(cfg)
		if err != nil {
			return err
		}
		defer ws.Close()

		u := dbutils.New(ws, dbutils.WithSession(session))
		defer u.Close()

		opts := &Options{
			Config:    cfg,
			Workspace: ws,
			Utils:     u,
		}
		return action(opts, args)
	}
}

func printJson(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
