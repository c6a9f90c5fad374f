package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/fioncat/dbutils/fs"
	"github.com/fioncat/dbutils/metrics"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func Fuse() *cobra.Command {
	var path string
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "fuse --path PATH [--metrics-addr ADDR]",
		Short: "Serve a read-only FUSE view of dbfs:/",

		Args: cobra.ExactArgs(0),
	}

	buildWorkspaceCommand(cmd, func(opts *Options, _ []string) error {
		if path == "" {
			return errors.New("Path could not be empty")
		}

		err := fs.Prepare(path)
		if err != nil {
			return err
		}

		root, err := fs.NewRoot(context.Background(), opts.Utils.FS().View(), opts.Config.Fs.EntryTimeout)
		if err != nil {
			return err
		}

		server, err := fs.Mount(root, path, opts.Config)
		if err != nil {
			return err
		}
		defer server.Unmount()

		refresh := opts.Workspace.Events.Subscribe()
		defer opts.Workspace.Events.Unsubscribe(refresh)
		server.Watch(root, refresh)

		if metricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			httpServer := &http.Server{Addr: metricsAddr, Handler: mux}
			go func() {
				logrus.Infof("Serve metrics on %s", metricsAddr)
				err := httpServer.ListenAndServe()
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					logrus.Errorf("Metrics server error: %v", err)
				}
			}()
			defer httpServer.Close()
		}

		sigStop := make(chan os.Signal, 1)
		signal.Notify(sigStop, os.Interrupt)

		select {
		case <-sigStop:
			logrus.Info("Received interrupt signal, stop server")

		case <-server.UnmountChan():
			logrus.Info("The view was unmountted by user, stop server")
		}

		return nil
	})

	flags := cmd.Flags()
	flags.StringVarP(&path, "path", "p", "", "The mount path")
	cmd.MarkFlagRequired("path")
	flags.StringVarP(&metricsAddr, "metrics-addr", "", "", "Serve prometheus metrics on this address")

	cmd.AddCommand(fuseStatus())
	cmd.AddCommand(fuseRelease())

	return cmd
}

func fuseStatus() *cobra.Command {
	return &cobra.Command{
		Use:   "status PATH",
		Short: "Show whether a view is served at a path",

		Args: cobra.ExactArgs(1),

		RunE: func(_ *cobra.Command, args []string) error {
			status, msg := fs.GetStatus(args[0])
			if msg != "" {
				fmt.Printf("%s: %s\n", status.Color(), msg)
				return nil
			}
			fmt.Println(status.Color())
			return nil
		},
	}
}

func fuseRelease() *cobra.Command {
	return &cobra.Command{
		Use:   "release PATH",
		Short: "Unmount a view left behind by a stopped server",

		Args: cobra.ExactArgs(1),

		RunE: func(_ *cobra.Command, args []string) error {
			return fs.Release(args[0])
		},
	}
}
