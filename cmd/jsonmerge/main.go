// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sam-fredrickson/jsonmerge"
)

var version = "dev"

// DefaultMaxDocuments is how many documents are accepted unless -max says otherwise.
const DefaultMaxDocuments = 20

// config carries the flag values into [Run].
type config struct {
	keys    identifierKeys
	common  bool
	lenient bool
	maxDocs int
	indent  string
	format  format
	logger  jsonmerge.Logger
}

func main() {
	var failed bool
	defer func() {
		if failed {
			os.Exit(1)
		}
	}()

	program := os.Args[0]
	var cfg config
	var outputPath string
	var verbose bool
	var showVersion bool

	flag.Usage = func() {
		out := flag.CommandLine.Output()
		fmt.Fprintf(out, "usage: %s [flags] FILE...\n\n", program)
		fmt.Fprintf(out, "Merges JSON documents (or YAML, TOML) into one, preferring non-empty values.\n")
		fmt.Fprintf(out, "Items in arrays of objects are matched by identifier fields and deep-merged.\n")
		fmt.Fprintf(out, "Use - to read a JSON document from stdin.\n\n")
		fmt.Fprintf(out, "Example:\n")
		fmt.Fprintf(out, "  # merge exports from two systems\n")
		fmt.Fprintf(out, "  %s -out merged.json a.json b.json\n\n", program)
		fmt.Fprintf(out, "  # list the key paths every document has\n")
		fmt.Fprintf(out, "  %s -common a.json b.json c.json\n\n", program)
		fmt.Fprintf(out, "Flags:\n")
		flag.PrintDefaults()
	}

	flag.Var(&cfg.keys, "keys", `comma-separated identifier keys; empty disables grouping (default "itemID,id,uuid,name")`)
	flag.BoolVar(&cfg.common, "common", false, "print the key paths common to all documents instead of merging")
	flag.BoolVar(&cfg.lenient, "lenient", false, "skip malformed documents instead of failing")
	flag.IntVar(&cfg.maxDocs, "max", DefaultMaxDocuments, "maximum number of documents (0 for no limit)")
	flag.StringVar(&cfg.indent, "indent", "  ", "indentation for JSON output")
	flag.StringVar(&outputPath, "out", "", "output file path (defaults to stdout)")
	flag.Var(&cfg.format, "format", `output format [json, yaml, toml] (defaults to first file's format)`)
	flag.BoolVar(&verbose, "v", false, "log merge decisions to stderr")
	flag.BoolVar(&showVersion, "version", false, "show version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	cfg.logger = jsonmerge.NewSlogAdapter(
		slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
	)

	files := flag.Args()
	var output io.Writer
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err)
			failed = true
			return
		}
		defer f.Close()
		output = f
	} else {
		output = os.Stdout
	}

	if err := Run(cfg, files, os.Stdin, output); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		_, _ = fmt.Fprintf(os.Stderr, "usage: %s [flags] FILE...\n", program)
		failed = true
		return
	}
}

// Run reads files, merges them (or finds their common keys) and writes the result.
func Run(cfg config, files []string, stdin io.Reader, output io.Writer) error {
	if len(files) == 0 {
		return fmt.Errorf("no files to merge")
	}
	if cfg.maxDocs > 0 && len(files) > cfg.maxDocs {
		return fmt.Errorf("too many files: %d (at most %d allowed)", len(files), cfg.maxDocs)
	}
	logger := cfg.logger
	if logger == nil {
		logger = jsonmerge.NopLogger{}
	}

	merger, err := jsonmerge.NewMerger(jsonmerge.Options{
		IdentifierKeys: cfg.keys.Keys(),
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	outputFormat := cfg.format
	var values []jsonmerge.Value
	var malformed []error
	for i, file := range files {
		doc, fileFormat, err := readDocument(file, stdin)
		if outputFormat == "" {
			outputFormat = fileFormat
		}
		var parseErr *jsonmerge.MalformedInputError
		switch {
		case errors.As(err, &parseErr):
			parseErr.DocIndex = i
			malformed = append(malformed, fmt.Errorf("failed to parse %s: %w", file, err))
			continue
		case errors.Is(err, jsonmerge.ErrUnsupportedValue):
			malformed = append(malformed, fmt.Errorf("failed to convert %s: %w", file, err))
			continue
		case err != nil:
			return fmt.Errorf("failed to read %s: %w", file, err)
		case doc == nil:
			logger.Debug("skipping blank document", "file", file)
			continue
		}
		values = append(values, *doc)
	}

	if len(malformed) > 0 {
		if !cfg.lenient {
			return errors.Join(malformed...)
		}
		for _, err := range malformed {
			logger.Warn("skipping malformed document", "error", err)
		}
	}
	if len(values) == 0 {
		return fmt.Errorf("no valid documents in %v", files)
	}

	var rendered []byte
	if cfg.common {
		if len(values) < 2 {
			return fmt.Errorf("need at least two valid documents to find common keys, got %d", len(values))
		}
		keys := jsonmerge.CommonKeys(values...)
		logger.Debug("found common keys", "documents", len(values), "keys", len(keys))
		rendered = []byte(jsonmerge.FormatKeys(keys) + "\n")
	} else {
		merged := merger.Merge(values...)
		rendered, err = outputFormat.Marshal(merged, cfg.indent)
		if err != nil {
			return fmt.Errorf("failed to marshal result as %s: %w", outputFormat, err)
		}
	}

	if _, err := output.Write(rendered); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// readDocument parses a file by extension. A nil document means the file is blank.
// Syntax errors are returned as *jsonmerge.MalformedInputError and values with no
// JSON counterpart as *jsonmerge.UnsupportedValueError.
func readDocument(file string, stdin io.Reader) (*jsonmerge.Value, format, error) {
	var f format
	var contents []byte
	var err error
	if file == "-" {
		f = validFormats["json"]
		contents, err = io.ReadAll(stdin)
	} else {
		contents, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, f, err
	}

	var parse func([]byte) (jsonmerge.Value, error)
	if file != "-" {
		extension := strings.ToLower(filepath.Ext(file))
		switch extension {
		case ".json":
			f = validFormats["json"]
		case ".yaml", ".yml":
			f = validFormats["yaml"]
		case ".toml":
			f = validFormats["toml"]
		default:
			return nil, f, fmt.Errorf("unsupported file format: %s", extension)
		}
	}
	switch f {
	case "json":
		parse = jsonmerge.Parse
	case "yaml":
		parse = jsonmerge.ParseYAML
	case "toml":
		parse = jsonmerge.ParseTOML
	}

	if len(bytes.TrimSpace(contents)) == 0 {
		return nil, f, nil
	}
	doc, err := parse(contents)
	if err != nil {
		return nil, f, err
	}
	return &doc, f, nil
}

type identifierKeys struct {
	keys []string
	set  bool
}

func (k *identifierKeys) String() string {
	return strings.Join(k.keys, ",")
}

func (k *identifierKeys) Set(value string) error {
	k.set = true
	if value == "" {
		k.keys = []string{}
		return nil
	}
	for _, key := range strings.Split(value, ",") {
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("empty identifier key in %q", value)
		}
		k.keys = append(k.keys, key)
	}
	return nil
}

// Keys returns nil when the flag was never set, so the library default applies.
func (k *identifierKeys) Keys() []string {
	if !k.set {
		return nil
	}
	if k.keys == nil {
		return []string{}
	}
	return k.keys
}

type format string

var validFormats = map[string]format{
	"":     format(""),
	"json": format("json"),
	"yaml": format("yaml"),
	"toml": format("toml"),
}

func (f *format) String() string {
	return string(*f)
}

func (f *format) Set(value string) error {
	value = strings.ToLower(value)
	format, ok := validFormats[value]
	if !ok {
		return fmt.Errorf("invalid format %q", value)
	}
	*f = format
	return nil
}

func (f format) Marshal(doc jsonmerge.Value, indent string) ([]byte, error) {
	switch f {
	case "json":
		return jsonmerge.Format(doc, indent)
	case "yaml":
		return jsonmerge.FormatYAML(doc)
	case "toml":
		return jsonmerge.FormatTOML(doc)
	default:
		return nil, fmt.Errorf("invalid format %q", string(f))
	}
}
