// Package engine implements the ingestion core: record parsing, field type
// inference, field mapping, and rule-based routing.
//
// The package is a pure transformation layer. It turns (raw bytes +
// configuration) into (routed records + diagnostics) and nothing else: it
// does not fetch bytes, does not persist configuration or results, and keeps
// no state between calls. Byte fetching lives in internal/loader,
// configuration storage in internal/registry, and the HTTP surface in
// internal/web.
//
// The main entry points are:
//
//   - Parse: raw bytes of a declared format -> ordered flat records
//   - InferSchema: a parsed sample -> detected fields with types and a
//     suggested primary identifier
//   - GenerateMappings / ValidateMappings: detected fields -> editable
//     source-to-target bindings
//   - EvaluateRules: one record + an ordered rule set -> a routing outcome
//   - Ingest: the full batch orchestration, with an optional dry-run mode
package engine
