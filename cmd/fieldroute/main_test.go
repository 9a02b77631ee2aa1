package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fieldroute/fieldroute/internal/engine"
	"github.com/google/uuid"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestInferCommandJSON(t *testing.T) {
	csv := writeTempFile(t, "batch.csv",
		"order_id,state,amount\nA-1,CA,10.50\nA-2,NY,20.00\nA-3,TX,7.25\n")

	out, err := runCommand(t, "infer", csv, "--json")
	if err != nil {
		t.Fatalf("infer: %v", err)
	}

	var report engine.SchemaReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v (output %q)", err, out)
	}
	if len(report.Fields) != 3 {
		t.Fatalf("fields = %d, want 3", len(report.Fields))
	}
	if report.TotalRows != 3 {
		t.Errorf("totalRows = %d, want 3", report.TotalRows)
	}
}

func TestInferCommandTable(t *testing.T) {
	csv := writeTempFile(t, "batch.csv",
		"id,email\n1,a@example.com\n2,b@example.com\n")

	out, err := runCommand(t, "infer", csv)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if !strings.Contains(out, "email") {
		t.Errorf("table output missing field name:\n%s", out)
	}
	if !strings.Contains(out, "Rows: 2") {
		t.Errorf("output missing row count:\n%s", out)
	}
}

func TestInferCommandMissingFile(t *testing.T) {
	_, err := runCommand(t, "infer", filepath.Join(t.TempDir(), "missing.csv"))
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestIngestCommandDryRun(t *testing.T) {
	queueID := uuid.New()

	csv := writeTempFile(t, "batch.csv",
		"order_id,state,amount\nA-1,CA,10.50\nA-2,NY,20.00\n")
	mappings := writeTempFile(t, "mappings.json", `[
		{"sourceField":"order_id","targetField":"order_id","isPrimaryId":true,"required":true,"detectedType":"string"},
		{"sourceField":"state","targetField":"state","detectedType":"string"},
		{"sourceField":"amount","targetField":"amount","detectedType":"number"}
	]`)
	rules := writeTempFile(t, "rules.json", `[
		{"id":"`+uuid.NewString()+`","name":"california","priority":1,
		 "conditions":{"combinator":"and","conditions":[{"field":"state","operator":"equals","value":"CA"}]},
		 "targetQueueId":"`+queueID.String()+`"}
	]`)

	out, err := runCommand(t, "ingest", csv,
		"--mappings", mappings, "--rules", rules, "--dry-run", "--json")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	var result engine.BatchResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode result: %v (output %q)", err, out)
	}
	if !result.DryRun {
		t.Error("result not flagged as dry run")
	}
	if result.Counts.Routed != 1 || result.Counts.Unrouted != 1 {
		t.Errorf("counts = %+v, want 1 routed and 1 unrouted", result.Counts)
	}
	if len(result.Tasks) != 0 {
		t.Errorf("dry run emitted %d tasks", len(result.Tasks))
	}
}

func TestIngestCommandRequiresMappings(t *testing.T) {
	csv := writeTempFile(t, "batch.csv", "id\n1\n")
	_, err := runCommand(t, "ingest", csv)
	if err == nil {
		t.Fatal("expected an error without --mappings")
	}
}

func TestIngestCommandTableOutput(t *testing.T) {
	csv := writeTempFile(t, "batch.csv", "order_id\nA-1\nA-2\n")
	mappings := writeTempFile(t, "mappings.json", `[
		{"sourceField":"order_id","targetField":"order_id","isPrimaryId":true,"detectedType":"string"}
	]`)

	out, err := runCommand(t, "ingest", csv, "--mappings", mappings)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !strings.Contains(out, "Unrouted") {
		t.Errorf("summary table missing:\n%s", out)
	}
	if !strings.Contains(out, "Task requests emitted: 0") {
		t.Errorf("task line missing:\n%s", out)
	}
}
