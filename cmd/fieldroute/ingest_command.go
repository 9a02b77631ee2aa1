package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/fieldroute/fieldroute/internal/engine"
	"github.com/fieldroute/fieldroute/internal/registry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// maxPrintedFailures caps the failure table so a bad batch stays readable.
const maxPrintedFailures = 20

func newIngestCommand() *cobra.Command {
	var flags parseFlags
	var (
		mappingsPath string
		rulesPath    string
		queuesPath   string
		dryRun       bool
		jsonOut      bool
		workers      int
	)

	cmd := &cobra.Command{
		Use:   "ingest <source>",
		Short: "Run a batch through field mappings and routing rules",
		Long: `Ingest parses a batch from a local file or an http(s) URL, applies the
mapping set, evaluates the routing rules against each record, and reports
per-queue volumes. With --dry-run the projection is identical but no task
requests are emitted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, opts, err := flags.options()
			if err != nil {
				return err
			}

			var mappings []engine.FieldMapping
			if err := readJSONFile(mappingsPath, &mappings); err != nil {
				return err
			}
			var rules []engine.RoutingRule
			if rulesPath != "" {
				if err := readJSONFile(rulesPath, &rules); err != nil {
					return err
				}
			}
			queueNames := make(map[uuid.UUID]string)
			if queuesPath != "" {
				var queues []registry.Queue
				if err := readJSONFile(queuesPath, &queues); err != nil {
					return err
				}
				for _, q := range queues {
					queueNames[q.ID] = q.Name
				}
			}

			data, err := fetchBatch(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			result, err := engine.Ingest(cmd.Context(), engine.IngestRequest{
				Data:     data,
				Format:   format,
				Options:  opts,
				Mappings: mappings,
				Rules:    rules,
				DryRun:   dryRun,
				Workers:  workers,
			})
			if err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd, result)
			}

			out := cmd.OutOrStdout()
			mode := "commit"
			if result.DryRun {
				mode = "dry-run"
			}
			fmt.Fprintf(out, "Batch %s (%s)\n", result.Status, mode)

			fmt.Fprintln(out, renderTable(
				[]string{"Metric", "Count"},
				[][]string{
					{"Found", strconv.Itoa(result.Counts.Found)},
					{"Mapped", strconv.Itoa(result.Counts.Mapped)},
					{"Routed", strconv.Itoa(result.Counts.Routed)},
					{"Unrouted", strconv.Itoa(result.Counts.Unrouted)},
					{"Failed", strconv.Itoa(result.Counts.Failed)},
					{"Skipped", strconv.Itoa(result.Counts.Skipped)},
				},
				[]columnAlignment{alignLeft, alignRight},
			))

			if len(result.QueueVolumes) > 0 {
				rows := make([][]string, 0, len(result.QueueVolumes))
				for id, n := range result.QueueVolumes {
					name := queueNames[id]
					if name == "" {
						name = id.String()
					}
					rows = append(rows, []string{name, strconv.Itoa(n)})
				}
				sort.Slice(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })
				fmt.Fprintln(out, renderTable(
					[]string{"Queue", "Records"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))
			}

			printFailures(cmd, result)

			if !result.DryRun {
				fmt.Fprintf(out, "Task requests emitted: %d\n", len(result.Tasks))
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&mappingsPath, "mappings", "", "JSON file with the field mapping set (required)")
	cmd.Flags().StringVar(&rulesPath, "rules", "", "JSON file with the routing rules")
	cmd.Flags().StringVar(&queuesPath, "queues", "", "JSON file with queue definitions, used to label volumes")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Project the run without emitting task requests")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the full result as JSON")
	cmd.Flags().IntVar(&workers, "workers", 0, "Evaluation pool size; 0 uses all CPUs")
	cmd.MarkFlagRequired("mappings")
	return cmd
}

func printFailures(cmd *cobra.Command, result *engine.BatchResult) {
	var rows [][]string
	total := 0
	for _, out := range result.Outcomes {
		if out.Err == nil {
			continue
		}
		total++
		if len(rows) < maxPrintedFailures {
			rows = append(rows, []string{
				strconv.Itoa(out.Err.Row),
				out.Err.Field,
				out.Err.Reason,
			})
		}
	}
	if total == 0 {
		return
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, renderTable(
		[]string{"Row", "Field", "Problem"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft},
	))
	if total > maxPrintedFailures {
		fmt.Fprintf(w, "... and %d more failed rows\n", total-maxPrintedFailures)
	}
}
