package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fieldroute/fieldroute/internal/engine"
	"github.com/fieldroute/fieldroute/internal/loader"
	"github.com/spf13/cobra"
)

// parseFlags are the parse settings shared by commands that read a raw batch.
type parseFlags struct {
	format    string
	delimiter string
	quote     string
	noHeader  bool
	skipRows  int
}

func (f *parseFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.format, "format", "csv", "Batch format: csv, json, or jsonl")
	cmd.Flags().StringVar(&f.delimiter, "delimiter", "", "CSV delimiter (default \",\")")
	cmd.Flags().StringVar(&f.quote, "quote", "", "CSV quote character (default `\"`)")
	cmd.Flags().BoolVar(&f.noHeader, "no-header", false, "Treat the first row as data and synthesize column names")
	cmd.Flags().IntVar(&f.skipRows, "skip-rows", 0, "Leading rows to drop before the header")
}

func (f *parseFlags) options() (engine.Format, engine.ParseOptions, error) {
	var opts engine.ParseOptions
	if f.delimiter != "" {
		opts.Delimiter = []rune(f.delimiter)[0]
	}
	if f.quote != "" {
		opts.Quote = []rune(f.quote)[0]
	}
	if f.skipRows < 0 {
		return "", opts, fmt.Errorf("--skip-rows must not be negative")
	}
	opts.NoHeader = f.noHeader
	opts.SkipRows = f.skipRows
	return engine.Format(f.format), opts, nil
}

// fetchBatch loads raw batch bytes from a local path or an http(s) URL.
func fetchBatch(ctx context.Context, source string) ([]byte, error) {
	var l loader.Loader
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		l = &loader.HTTPLoader{URL: source}
	} else {
		l = &loader.FileLoader{Path: source}
	}
	return l.Fetch(ctx)
}

// readJSONFile decodes one JSON configuration file into v.
func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// writeJSON pretty-prints v for --json output.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
