package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"
	"github.com/fioncat/dbutils/dbutils"
	"github.com/fioncat/dbutils/osutils"
	"github.com/fioncat/dbutils/types"
	"github.com/spf13/cobra"
)

func FS() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fs",
		Short: "Manipulate the workspace filesystem",
	}

	cmd.AddCommand(fsList())
	cmd.AddCommand(fsHead())
	cmd.AddCommand(fsCopy())
	cmd.AddCommand(fsMove())
	cmd.AddCommand(fsPut())
	cmd.AddCommand(fsRemove())
	cmd.AddCommand(fsMakeDirs())
	cmd.AddCommand(fsMount())
	cmd.AddCommand(fsMounts())
	cmd.AddCommand(fsUnmount())
	cmd.AddCommand(fsRefreshMounts())

	return cmd
}

func fsList() *cobra.Command {
	var match string
	var showJson bool
	cmd := &cobra.Command{
		Use:   "ls [--match GLOB] [URI]",
		Short: "List a directory",

		Args: cobra.MaximumNArgs(1),
	}

	buildWorkspaceCommand(cmd, func(opts *Options, args []string) error {
		uri := "dbfs:/"
		if len(args) > 0 {
			uri = args[0]
		}
		if match != "" && !doublestar.ValidatePattern(match) {
			return fmt.Errorf("invalid match pattern %q", match)
		}

		files, err := opts.Utils.FS().List(context.Background(), uri)
		if err != nil {
			return err
		}
		if match != "" {
			matched := files[:0]
			for _, file := range files {
				ok, _ := doublestar.Match(match, strings.TrimSuffix(file.Name, "/"))
				if ok {
					matched = append(matched, file)
				}
			}
			files = matched
		}

		if showJson {
			return printJson(files)
		}
		if len(files) == 0 {
			fmt.Println("No file")
			return nil
		}

		rows := make([][]string, len(files))
		for i, file := range files {
			size := ""
			if file.IsFile() {
				size = humanize.Bytes(uint64(file.Size))
			}
			modTime := ""
			if !file.ModificationTime.IsZero() {
				modTime = humanize.Time(file.ModificationTime)
			}
			rows[i] = []string{file.Path, size, modTime}
		}
		osutils.ShowTable([]string{"Path", "Size", "Modified"}, rows)
		return nil
	})

	cmd.Flags().StringVarP(&match, "match", "m", "", "Only show entries whose name matches the glob")
	cmd.Flags().BoolVarP(&showJson, "json", "J", false, "Show json output")

	return cmd
}

func fsHead() *cobra.Command {
	var maxBytes int
	cmd := &cobra.Command{
		Use:   "head [-n BYTES] URI",
		Short: "Print the beginning of a file",

		Args: cobra.ExactArgs(1),
	}

	buildWorkspaceCommand(cmd, func(opts *Options, args []string) error {
		content, err := opts.Utils.FS().Head(context.Background(), args[0], maxBytes)
		if err != nil {
			return err
		}
		fmt.Print(content)
		return nil
	})

	cmd.Flags().IntVarP(&maxBytes, "bytes", "n", dbutils.DefaultHeadBytes, "Max bytes to read")

	return cmd
}

func fsCopy() *cobra.Command {
	var recurse bool
	cmd := &cobra.Command{
		Use:   "cp [-r] SRC DST",
		Short: "Copy a file or directory, possibly across filesystems",

		Args: cobra.ExactArgs(2),
	}

	buildWorkspaceCommand(cmd, func(opts *Options, args []string) error {
		return opts.Utils.FS().Copy(context.Background(), args[0], args[1], recurse)
	})

	cmd.Flags().BoolVarP(&recurse, "recurse", "r", false, "Copy directories recursively")

	return cmd
}

func fsMove() *cobra.Command {
	var recurse bool
	cmd := &cobra.Command{
		Use:   "mv [-r] SRC DST",
		Short: "Move a file or directory, possibly across filesystems",

		Args: cobra.ExactArgs(2),
	}

	buildWorkspaceCommand(cmd, func(opts *Options, args []string) error {
		return opts.Utils.FS().Move(context.Background(), args[0], args[1], recurse)
	})

	cmd.Flags().BoolVarP(&recurse, "recurse", "r", false, "Move directories recursively")

	return cmd
}

func fsPut() *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "put [-f] URI [CONTENTS]",
		Short: "Write text to a file, read from stdin without CONTENTS",

		Args: cobra.RangeArgs(1, 2),
	}

	buildWorkspaceCommand(cmd, func(opts *Options, args []string) error {
		var contents string
		if len(args) == 2 {
			contents = args[1]
		} else {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			contents = string(data)
		}
		return opts.Utils.FS().Put(context.Background(), args[0], contents, overwrite)
	})

	cmd.Flags().BoolVarP(&overwrite, "overwrite", "f", false, "Overwrite an existing file")

	return cmd
}

func fsRemove() *cobra.Command {
	var recurse bool
	cmd := &cobra.Command{
		Use:   "rm [-r] URI",
		Short: "Remove a file or directory",

		Args: cobra.ExactArgs(1),
	}

	buildWorkspaceCommand(cmd, func(opts *Options, args []string) error {
		return opts.Utils.FS().Remove(context.Background(), args[0], recurse)
	})

	cmd.Flags().BoolVarP(&recurse, "recurse", "r", false, "Remove directories recursively")

	return cmd
}

func fsMakeDirs() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mkdirs URI",
		Short: "Create a directory and its parents",

		Args: cobra.ExactArgs(1),
	}

	buildWorkspaceCommand(cmd, func(opts *Options, args []string) error {
		return opts.Utils.FS().MakeDirs(context.Background(), args[0])
	})

	return cmd
}

func fsMount() *cobra.Command {
	var mountOpts dbutils.MountOptions
	cmd := &cobra.Command{
		Use:   "mount [-e ENCRYPTION] [-c KEY=VALUE]... SOURCE MOUNT_POINT",
		Short: "Mount a source below /mnt",

		Args: cobra.ExactArgs(2),
	}

	buildWorkspaceCommand(cmd, func(opts *Options, args []string) error {
		err := opts.Utils.FS().Mount(context.Background(), args[0], args[1], mountOpts)
		if err != nil {
			return err
		}
		fmt.Printf("Mounted %q on %q\n", types.RedactSource(args[0]), args[1])
		return nil
	})

	flags := cmd.Flags()
	flags.StringVarP(&mountOpts.EncryptionType, "encryption", "e", "", "Encryption type: sse-s3, sse-kms or sse-kms:KEY_ID")
	flags.StringToStringVarP(&mountOpts.ExtraConfigs, "config", "c", nil, "Extra configs passed to the source")

	return cmd
}

func fsMounts() *cobra.Command {
	var showJson bool
	cmd := &cobra.Command{
		Use:   "mounts",
		Short: "Show the mounts",

		Args: cobra.ExactArgs(0),
	}

	buildWorkspaceCommand(cmd, func(opts *Options, _ []string) error {
		mounts, err := opts.Utils.FS().Mounts(context.Background())
		if err != nil {
			return err
		}
		if showJson {
			return printJson(mounts)
		}
		if len(mounts) == 0 {
			fmt.Println("No mount")
			return nil
		}

		rows := make([][]string, len(mounts))
		for i, mount := range mounts {
			rows[i] = []string{mount.MountPoint, mount.Source, mount.EncryptionType}
		}
		osutils.ShowTable([]string{"Mount Point", "Source", "Encryption"}, rows)
		return nil
	})

	cmd.Flags().BoolVarP(&showJson, "json", "J", false, "Show json output")

	return cmd
}

func fsUnmount() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unmount MOUNT_POINT",
		Short: "Remove a mount",

		Args: cobra.ExactArgs(1),
	}

	buildWorkspaceCommand(cmd, func(opts *Options, args []string) error {
		err := opts.Utils.FS().Unmount(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Unmounted %q\n", args[0])
		return nil
	})

	return cmd
}

func fsRefreshMounts() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh-mounts",
		Short: "Make every facade reload the mount table",

		Args: cobra.ExactArgs(0),
	}

	buildWorkspaceCommand(cmd, func(opts *Options, _ []string) error {
		return opts.Utils.FS().RefreshMounts(context.Background())
	})

	return cmd
}
