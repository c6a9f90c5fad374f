package cmd

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fioncat/dbutils/dbutils"
	"github.com/spf13/cobra"
)

func Data() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Inspect tabular data",
	}

	cmd.AddCommand(dataSummarize())

	return cmd
}

func dataSummarize() *cobra.Command {
	var precise bool
	var showJson bool
	cmd := &cobra.Command{
		Use:   "summarize [--precise] CSV_PATH",
		Short: "Summarize a csv file stored in dbfs:/, use \"-\" to read stdin",

		Args: cobra.ExactArgs(1),
	}

	buildWorkspaceCommand(cmd, func(opts *Options, args []string) error {
		ctx := context.Background()

		var data []byte
		var err error
		if args[0] == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			p := strings.TrimPrefix(args[0], "dbfs:")
			if !strings.HasPrefix(p, "/") {
				return fmt.Errorf("csv path %q must be an absolute dbfs path", args[0])
			}
			data, err = opts.Utils.FS().View().ReadFile(ctx, p, 0)
		}
		if err != nil {
			return fmt.Errorf("read csv: %w", err)
		}

		table, err := readCSV(data)
		if err != nil {
			return err
		}

		summary, err := opts.Utils.Data().Summarize(ctx, table, precise)
		if err != nil {
			return err
		}
		if showJson {
			return printJson(summary)
		}
		fmt.Print(summary.String())
		return nil
	})

	flags := cmd.Flags()
	flags.BoolVarP(&precise, "precise", "", false, "Count distinct values exactly")
	flags.BoolVarP(&showJson, "json", "", false, "Print as json")
	return cmd
}

// readCSV treats the first record as the header.
func readCSV(data []byte) (*dbutils.Table, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("csv is empty")
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	table := &dbutils.Table{Columns: header}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		row := make([]any, len(record))
		for i, value := range record {
			row[i] = value
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}
