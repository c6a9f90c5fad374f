package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fioncat/dbutils/osutils"
	"github.com/spf13/cobra"
)

func Secrets() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage secret scopes and secrets",
	}

	cmd.AddCommand(secretsListScopes())
	cmd.AddCommand(secretsList())
	cmd.AddCommand(secretsGet())
	cmd.AddCommand(secretsCreateScope())
	cmd.AddCommand(secretsDeleteScope())
	cmd.AddCommand(secretsPut())
	cmd.AddCommand(secretsDelete())

	return cmd
}

func secretsListScopes() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list-scopes",
		Short: "List secret scopes",

		Args: cobra.ExactArgs(0),
	}

	buildWorkspaceCommand(cmd, func(opts *Options, _ []string) error {
		scopes, err := opts.Utils.Secrets().ListScopes(context.Background())
		if err != nil {
			return err
		}
		if len(scopes) == 0 {
			fmt.Println("No scope")
			return nil
		}
		rows := make([][]string, len(scopes))
		for i, scope := range scopes {
			rows[i] = []string{scope.GetName()}
		}
		osutils.ShowTable([]string{"Scope"}, rows)
		return nil
	})

	return cmd
}

func secretsList() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list SCOPE",
		Short: "List the keys of a scope",

		Args: cobra.ExactArgs(1),
	}

	buildWorkspaceCommand(cmd, func(opts *Options, args []string) error {
		metas, err := opts.Utils.Secrets().List(context.Background(), args[0])
		if err != nil {
			return err
		}
		if len(metas) == 0 {
			fmt.Println("No secret")
			return nil
		}
		rows := make([][]string, len(metas))
		for i, meta := range metas {
			rows[i] = []string{meta.Key}
		}
		osutils.ShowTable([]string{"Key"}, rows)
		return nil
	})

	return cmd
}

func secretsGet() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get SCOPE KEY",
		Short: "Print a secret value",

		Args: cobra.ExactArgs(2),
	}

	buildWorkspaceCommand(cmd, func(opts *Options, args []string) error {
		value, err := opts.Utils.Secrets().GetBytes(context.Background(), args[0], args[1])
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(value)
		return err
	})

	return cmd
}

func secretsCreateScope() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-scope SCOPE",
		Short: "Create a secret scope",

		Args: cobra.ExactArgs(1),
	}

	buildWorkspaceCommand(cmd, func(opts *Options, args []string) error {
		return opts.Workspace.Store.CreateScope(args[0])
	})

	return cmd
}

func secretsDeleteScope() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete-scope SCOPE",
		Short: "Delete a secret scope and its secrets",

		Args: cobra.ExactArgs(1),
	}

	buildWorkspaceCommand(cmd, func(opts *Options, args []string) error {
		return opts.Workspace.Store.DeleteScope(args[0])
	})

	return cmd
}

func secretsPut() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put SCOPE KEY",
		Short: "Store a secret, the value is read from stdin",

		Args: cobra.ExactArgs(2),
	}

	buildWorkspaceCommand(cmd, func(opts *Options, args []string) error {
		value, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read secret from stdin: %w", err)
		}
		return opts.Workspace.Store.PutSecret(args[0], args[1], value)
	})

	return cmd
}

func secretsDelete() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete SCOPE KEY",
		Short: "Delete a secret",

		Args: cobra.ExactArgs(2),
	}

	buildWorkspaceCommand(cmd, func(opts *Options, args []string) error {
		return opts.Workspace.Store.DeleteSecret(args[0], args[1])
	})

	return cmd
}
