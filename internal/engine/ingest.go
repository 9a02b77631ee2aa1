package engine

// ingest.go sequences a full batch run: parse -> map -> route -> collect.
//
// Per-record work shares no mutable state, so mapping and routing fan out
// across a bounded worker pool for large batches; evaluations are written
// into a row-indexed slice and merged with the parse-stage failures by row
// number, so the outcome list keeps the original row order even when
// malformed rows sit between good ones. Duplicate primary identifiers are
// resolved sequentially before the fan-out, first occurrence wins.
//
// Dry-run mode runs the identical pipeline but emits no task creation
// requests, so projected counts always match what a commit would do.

import (
	"context"
	"log/slog"
	"runtime"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// batchState tracks the orchestration progress of one run, for logging.
type batchState string

const (
	stateParsed batchState = "parsed"
	stateMapped batchState = "mapped"
	stateRouted batchState = "routed"
	stateStaged batchState = "staged"
	stateDone   batchState = "committed"
)

// IngestRequest carries everything one batch run needs. The configuration
// (mappings, rules) is expected to have been validated at save time; Ingest
// re-validates cheaply and refuses to start on a bad set rather than fail
// mid-batch.
type IngestRequest struct {
	Data     []byte
	Format   Format
	Options  ParseOptions
	Mappings []FieldMapping
	Rules    []RoutingRule
	DryRun   bool
	// Workers bounds the evaluation pool; 0 means GOMAXPROCS.
	Workers int
}

// Ingest runs one batch synchronously. A fatal parse problem returns a
// FatalParseError and no result; invalid configuration returns a
// ConfigError. Row-level failures never abort the batch.
func Ingest(ctx context.Context, req IngestRequest) (*BatchResult, error) {
	if vr := ValidateMappings(req.Mappings); !vr.Valid {
		return nil, &ConfigError{Errors: vr.Errors}
	}
	fieldTypes := FieldTypes(req.Mappings)
	for _, rule := range req.Rules {
		if vr := ValidateRule(fieldTypes, rule); !vr.Valid {
			return nil, &ConfigError{Errors: vr.Errors}
		}
	}

	parsed, err := Parse(req.Data, req.Format, req.Options)
	if err != nil {
		return nil, err
	}
	logState(ctx, stateParsed, "rows", parsed.TotalRows, "parse_failures", parsed.FailedRows)

	result := &BatchResult{
		DryRun:       req.DryRun,
		QueueVolumes: make(map[uuid.UUID]int),
	}
	result.Counts.Found = parsed.TotalRows
	result.Counts.Failed = parsed.FailedRows

	skips := duplicateSkips(parsed.Records, req.Mappings)

	evals := make([]evaluation, len(parsed.Records))
	workers := req.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range parsed.Records {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			evals[i] = processRecord(parsed.Records[i], parsed.Rows[i], req, fieldTypes, skips[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	logState(ctx, stateRouted, "rows", len(evals))

	for _, ev := range evals {
		out := ev.out
		result.Outcomes = append(result.Outcomes, out)
		switch {
		case out.Err != nil:
			result.Counts.Failed++
		case out.Skipped:
			result.Counts.Skipped++
		default:
			result.Counts.Mapped++
			if out.TargetQueueID != nil {
				result.Counts.Routed++
				result.QueueVolumes[*out.TargetQueueID]++
				if !req.DryRun {
					result.Tasks = append(result.Tasks, taskRequest(ev.mapped, out, req.Mappings))
				}
			} else {
				result.Counts.Unrouted++
			}
		}
	}

	// Parse-stage failures slot back in at their original row positions.
	for _, re := range parsed.RowErrors {
		re := re
		result.Outcomes = append(result.Outcomes, Outcome{Row: re.Row, Err: &re})
	}
	sort.SliceStable(result.Outcomes, func(i, j int) bool {
		return result.Outcomes[i].Row < result.Outcomes[j].Row
	})

	if req.DryRun {
		logState(ctx, stateStaged, "projected_tasks", result.Counts.Routed)
	} else {
		logState(ctx, stateDone, "tasks", len(result.Tasks))
	}

	result.Status = BatchCompleted
	if result.Counts.Failed > 0 {
		result.Status = BatchPartial
	}
	return result, nil
}

// evaluation pairs one record's outcome with its mapped form, so task
// building never has to re-apply the mappings.
type evaluation struct {
	out    Outcome
	mapped Record
}

// processRecord maps one record and routes it. The returned outcome carries
// exactly one of: a row error, a skip, a matched queue, or nothing
// (unrouted); the mapped record is set only when mapping succeeded.
func processRecord(rec Record, row int, req IngestRequest, fieldTypes map[string]FieldType, skipReason string) evaluation {
	if skipReason != "" {
		return evaluation{out: Outcome{Row: row, Skipped: true, SkipReason: skipReason}}
	}

	mapped, rowErr := ApplyMappings(rec, req.Mappings, row)
	if rowErr != nil {
		return evaluation{out: Outcome{Row: row, Err: rowErr}}
	}

	out := EvaluateRules(mapped, req.Rules, fieldTypes)
	out.Row = row
	return evaluation{out: out, mapped: mapped}
}

// duplicateSkips resolves the duplicate-primary-id policy ahead of the
// parallel fan-out: the first record with a given identifier wins, later
// ones are skipped. Records with an empty identifier are left to the
// required-field check.
func duplicateSkips(records []Record, mappings []FieldMapping) map[int]string {
	skips := make(map[int]string)
	primary, ok := primaryMapping(mappings)
	if !ok {
		return skips
	}
	seen := make(map[string]bool, len(records))
	for i, rec := range records {
		id := rec[primary.SourceField]
		if id == "" {
			id = primary.Default
		}
		if id == "" {
			continue
		}
		if seen[id] {
			skips[i] = "duplicate primary identifier " + id
			continue
		}
		seen[id] = true
	}
	return skips
}

// taskRequest builds the creation request for one routed record in commit
// mode, from the already-mapped record.
func taskRequest(mapped Record, out Outcome, mappings []FieldMapping) TaskRequest {
	primaryID := ""
	if primary, ok := primaryMapping(mappings); ok {
		primaryID = mapped[primary.TargetField]
	}
	return TaskRequest{
		Row:       out.Row,
		QueueID:   *out.TargetQueueID,
		PrimaryID: primaryID,
		Fields:    mapped,
	}
}

func logState(ctx context.Context, state batchState, args ...any) {
	slog.DebugContext(ctx, "batch state", append([]any{"state", string(state)}, args...)...)
}
