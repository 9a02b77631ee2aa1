package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fieldroute/fieldroute/internal/engine"
	"github.com/spf13/cobra"
)

func newInferCommand() *cobra.Command {
	var flags parseFlags
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "infer <source>",
		Short: "Analyze a batch sample and report the detected schema",
		Long: `Infer parses a sample batch from a local file or an http(s) URL and
reports the detected fields: semantic type, confidence, required flag,
uniqueness, and whether the field looks like a record identifier.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, opts, err := flags.options()
			if err != nil {
				return err
			}

			data, err := fetchBatch(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			parsed, err := engine.Parse(data, format, opts)
			if err != nil {
				return err
			}
			report := engine.InferSchema(parsed)

			if jsonOut {
				return writeJSON(cmd, report)
			}

			rows := make([][]string, 0, len(report.Fields))
			for _, f := range report.Fields {
				rows = append(rows, []string{
					f.Name,
					string(f.Type),
					fmt.Sprintf("%.2f", f.Confidence),
					boolMark(f.Required),
					strconv.Itoa(f.UniqueValues),
					boolMark(f.LooksLikeID),
					truncate(strings.Join(f.Samples, ", "), 48),
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Field", "Type", "Conf", "Req", "Unique", "ID?", "Samples"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft, alignLeft},
			))

			fmt.Fprintf(out, "Rows: %d", report.TotalRows)
			if report.FailedRows > 0 {
				fmt.Fprintf(out, " (%d failed to parse)", report.FailedRows)
			}
			fmt.Fprintln(out)
			if report.SuggestedPrimaryID != "" {
				fmt.Fprintf(out, "Suggested primary identifier: %s\n", report.SuggestedPrimaryID)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the full report as JSON")
	return cmd
}

func boolMark(b bool) string {
	if b {
		return "yes"
	}
	return ""
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "..."
}
