package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func testMappings() []FieldMapping {
	return []FieldMapping{
		{SourceField: "id", TargetField: "id", PrimaryID: true, Required: true, Type: TypeString},
		{SourceField: "state", TargetField: "state", Required: true, Type: TypeString},
	}
}

func testRules() []RoutingRule {
	return []RoutingRule{
		rule("california", 1, queueA, Condition{Field: "state", Operator: OpEquals, Value: "CA"}),
		rule("catch all", 2, queueB),
	}
}

func TestIngestDryRun(t *testing.T) {
	// Three rows: two clean, one with an empty required state.
	data := []byte("id,state\n1,CA\n2,NY\n3,\n")

	res, err := Ingest(context.Background(), IngestRequest{
		Data:     data,
		Format:   FormatCSV,
		Mappings: testMappings(),
		Rules:    testRules(),
		DryRun:   true,
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	want := BatchCounts{Found: 3, Mapped: 2, Routed: 2, Unrouted: 0, Failed: 1, Skipped: 0}
	if res.Counts != want {
		t.Errorf("Counts = %+v, want %+v", res.Counts, want)
	}
	if res.Status != BatchPartial {
		t.Errorf("Status = %q, want partial", res.Status)
	}
	if len(res.Tasks) != 0 {
		t.Errorf("dry run emitted %d tasks", len(res.Tasks))
	}
	if res.QueueVolumes[queueA] != 1 || res.QueueVolumes[queueB] != 1 {
		t.Errorf("QueueVolumes = %v", res.QueueVolumes)
	}

	// Row 3's failure names the required field.
	var failed *Outcome
	for i := range res.Outcomes {
		if res.Outcomes[i].Row == 3 {
			failed = &res.Outcomes[i]
		}
	}
	if failed == nil || failed.Err == nil || failed.Err.Field != "state" {
		t.Errorf("row 3 outcome = %+v", failed)
	}
}

func TestIngestCommitEmitsTasks(t *testing.T) {
	data := []byte("id,state\n1,CA\n2,NY\n")

	res, err := Ingest(context.Background(), IngestRequest{
		Data:     data,
		Format:   FormatCSV,
		Mappings: testMappings(),
		Rules:    testRules(),
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if res.Status != BatchCompleted {
		t.Errorf("Status = %q, want completed", res.Status)
	}
	if len(res.Tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(res.Tasks))
	}
	first := res.Tasks[0]
	if first.QueueID != queueA || first.PrimaryID != "1" || first.Fields["state"] != "CA" {
		t.Errorf("first task = %+v", first)
	}
}

func TestIngestDuplicatePrimaryIDSkipped(t *testing.T) {
	data := []byte("id,state\n1,CA\n1,NY\n2,NY\n")

	res, err := Ingest(context.Background(), IngestRequest{
		Data:     data,
		Format:   FormatCSV,
		Mappings: testMappings(),
		Rules:    testRules(),
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if res.Counts.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", res.Counts.Skipped)
	}
	if res.Counts.Mapped != 2 {
		t.Errorf("Mapped = %d, want 2 (first occurrence wins)", res.Counts.Mapped)
	}
	// First occurrence routed to A, the duplicate was skipped, not routed.
	if res.QueueVolumes[queueA] != 1 {
		t.Errorf("queue A volume = %d, want 1", res.QueueVolumes[queueA])
	}
	if res.Outcomes[1].SkipReason == "" || !res.Outcomes[1].Skipped {
		t.Errorf("duplicate outcome = %+v", res.Outcomes[1])
	}
}

func TestIngestRowOrderPreserved(t *testing.T) {
	var b strings.Builder
	b.WriteString("id,state\n")
	for i := 1; i <= 500; i++ {
		fmt.Fprintf(&b, "%d,CA\n", i)
	}

	res, err := Ingest(context.Background(), IngestRequest{
		Data:     []byte(b.String()),
		Format:   FormatCSV,
		Mappings: testMappings(),
		Rules:    testRules(),
		Workers:  8,
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(res.Outcomes) != 500 {
		t.Fatalf("outcomes = %d, want 500", len(res.Outcomes))
	}
	for i, out := range res.Outcomes {
		if out.Row != i+1 {
			t.Fatalf("outcome %d has row %d; order not preserved", i, out.Row)
		}
	}
}

func TestIngestInvalidConfigurationRefused(t *testing.T) {
	t.Run("two primary ids", func(t *testing.T) {
		bad := []FieldMapping{
			{SourceField: "id", TargetField: "id", PrimaryID: true},
			{SourceField: "state", TargetField: "state", PrimaryID: true},
		}
		_, err := Ingest(context.Background(), IngestRequest{
			Data:     []byte("id,state\n1,CA\n"),
			Format:   FormatCSV,
			Mappings: bad,
		})
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("err = %v, want ConfigError", err)
		}
	})

	t.Run("rule referencing unknown field", func(t *testing.T) {
		rules := []RoutingRule{
			rule("bad", 1, queueA, Condition{Field: "ghost", Operator: OpEquals, Value: "x"}),
		}
		_, err := Ingest(context.Background(), IngestRequest{
			Data:     []byte("id,state\n1,CA\n"),
			Format:   FormatCSV,
			Mappings: testMappings(),
			Rules:    rules,
		})
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("err = %v, want ConfigError", err)
		}
	})
}

func TestIngestFatalParse(t *testing.T) {
	_, err := Ingest(context.Background(), IngestRequest{
		Data:     []byte("   "),
		Format:   FormatCSV,
		Mappings: testMappings(),
		Rules:    testRules(),
	})
	var fatal *FatalParseError
	if !errors.As(err, &fatal) {
		t.Fatalf("err = %v, want FatalParseError", err)
	}
}

func TestIngestParseFailuresCounted(t *testing.T) {
	data := []byte("id,state\n1,CA\n\"broken\"x,NY\n3,NY\n")

	res, err := Ingest(context.Background(), IngestRequest{
		Data:     data,
		Format:   FormatCSV,
		Mappings: testMappings(),
		Rules:    testRules(),
		DryRun:   true,
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Counts.Found != 3 {
		t.Errorf("Found = %d, want 3", res.Counts.Found)
	}
	if res.Counts.Failed != 1 {
		t.Errorf("Failed = %d, want 1", res.Counts.Failed)
	}
	if res.Counts.Routed != 2 {
		t.Errorf("Routed = %d, want 2", res.Counts.Routed)
	}
	if res.Status != BatchPartial {
		t.Errorf("Status = %q, want partial", res.Status)
	}
}

func TestIngestOutcomeOrderWithParseFailures(t *testing.T) {
	// The malformed row sits between two good rows; outcomes must still come
	// back in original row order.
	data := []byte("id,state\n1,CA\n\"broken\"x,NY\n3,NY\n")

	res, err := Ingest(context.Background(), IngestRequest{
		Data:     data,
		Format:   FormatCSV,
		Mappings: testMappings(),
		Rules:    testRules(),
		DryRun:   true,
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if len(res.Outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(res.Outcomes))
	}
	for i, out := range res.Outcomes {
		if out.Row != i+1 {
			t.Fatalf("outcome %d has row %d; order not preserved", i, out.Row)
		}
	}
	if res.Outcomes[1].Err == nil {
		t.Errorf("row 2 outcome = %+v, want the parse failure", res.Outcomes[1])
	}
	if res.Outcomes[0].Err != nil || res.Outcomes[2].Err != nil {
		t.Errorf("good rows carry errors: %+v", res.Outcomes)
	}
}

func TestIngestTaskFieldsUseMappedRecord(t *testing.T) {
	// Renamed target and a static default must both land on the emitted task.
	mappings := []FieldMapping{
		{SourceField: "id", TargetField: "order_id", PrimaryID: true, Required: true, Type: TypeString},
		{SourceField: "st", TargetField: "state", Type: TypeString, Default: "NA"},
	}
	rules := []RoutingRule{rule("catch all", 1, queueA)}

	res, err := Ingest(context.Background(), IngestRequest{
		Data:     []byte("id,st\n1,\n"),
		Format:   FormatCSV,
		Mappings: mappings,
		Rules:    rules,
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(res.Tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(res.Tasks))
	}
	task := res.Tasks[0]
	if task.PrimaryID != "1" {
		t.Errorf("PrimaryID = %q, want %q", task.PrimaryID, "1")
	}
	if task.Fields["order_id"] != "1" || task.Fields["state"] != "NA" {
		t.Errorf("Fields = %v, want renamed target and default applied", task.Fields)
	}
}

func TestIngestUnroutedIsNotFailure(t *testing.T) {
	rules := []RoutingRule{
		rule("california only", 1, queueA, Condition{Field: "state", Operator: OpEquals, Value: "CA"}),
	}
	res, err := Ingest(context.Background(), IngestRequest{
		Data:     []byte("id,state\n1,TX\n"),
		Format:   FormatCSV,
		Mappings: testMappings(),
		Rules:    rules,
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Counts.Unrouted != 1 || res.Counts.Failed != 0 {
		t.Errorf("Counts = %+v, want one unrouted, zero failed", res.Counts)
	}
	if res.Status != BatchCompleted {
		t.Errorf("Status = %q, want completed", res.Status)
	}
	if len(res.Tasks) != 0 {
		t.Errorf("unrouted record produced %d tasks", len(res.Tasks))
	}
}

func TestIngestNoRules(t *testing.T) {
	res, err := Ingest(context.Background(), IngestRequest{
		Data:     []byte("id,state\n1,CA\n"),
		Format:   FormatCSV,
		Mappings: testMappings(),
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Counts.Unrouted != 1 {
		t.Errorf("Counts = %+v, want one unrouted", res.Counts)
	}
}

func TestIngestTaskOrder(t *testing.T) {
	data := []byte("id,state\n3,CA\n1,CA\n2,CA\n")
	res, err := Ingest(context.Background(), IngestRequest{
		Data:     data,
		Format:   FormatCSV,
		Mappings: testMappings(),
		Rules:    testRules(),
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	wantIDs := []string{"3", "1", "2"}
	if len(res.Tasks) != 3 {
		t.Fatalf("tasks = %d, want 3", len(res.Tasks))
	}
	for i, task := range res.Tasks {
		if task.PrimaryID != wantIDs[i] {
			t.Errorf("task %d primary = %q, want %q (row order)", i, task.PrimaryID, wantIDs[i])
		}
	}
}
