package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/exportappend/internal/importer"
)

// errImportFailed signals a failed import whose outcome was already printed.
var errImportFailed = errors.New("import failed")

func newAppendCmd(a *app) *cobra.Command {
	var (
		req     importer.Request
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "append",
		Short: "Append one CSV export to a staging table and run the merge procedures",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close()
			}

			p, err := a.pipeline(st, nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			rep := importer.NewReporter(func(ev importer.Progress) {
				if !jsonOut {
					printProgress(out, ev)
				}
			})
			outcome := p.Run(cmd.Context(), req, rep)

			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(outcome); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "%s (%s)\n", outcome.Message, outcome.Duration.Round(time.Millisecond))
				if hint := importer.FormatUserError(outcome.Err); !outcome.OK && hint != "" {
					fmt.Fprintln(out, hint)
				}
			}
			if !outcome.OK {
				cmd.SilenceErrors = true
				return errImportFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Table, "table", "", "Target staging table (required)")
	cmd.Flags().StringVar(&req.CSVPath, "csv", "", "Path to the CSV export (required)")
	cmd.Flags().BoolVar(&req.HasHeader, "header", false, "Skip the first CSV row")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the result as JSON instead of progress lines")
	_ = cmd.MarkFlagRequired("table")
	_ = cmd.MarkFlagRequired("csv")
	return cmd
}

// printProgress renders one progress event as a single line.
func printProgress(w io.Writer, ev importer.Progress) {
	switch {
	case ev.Phase.Terminal():
		// The outcome line follows.
	case ev.RowsInserted != nil && ev.RowsParsed != nil:
		fmt.Fprintf(w, "%-9s %s/%s rows\n", ev.Phase, humanize.Comma(int64(*ev.RowsInserted)), humanize.Comma(int64(*ev.RowsParsed)))
	case ev.RowsParsed != nil:
		fmt.Fprintf(w, "%-9s %s rows\n", ev.Phase, humanize.Comma(int64(*ev.RowsParsed)))
	default:
		fmt.Fprintf(w, "%-9s %s\n", ev.Phase, ev.Message)
	}
}
