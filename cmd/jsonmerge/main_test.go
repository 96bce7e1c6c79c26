// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-json"
	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sam-fredrickson/jsonmerge"
)

const (
	baseJSON = `{
  "name": "svc",
  "owner": "",
  "replicas": 1,
  "users": [
    {"name": "alice", "role": ""},
    {"name": "bob", "role": "user"}
  ]
}`
	overlayJSON = `{
  "owner": "team",
  "users": [
    {"name": "alice", "role": "admin"}
  ]
}`
	baseYAML = `
name: svc
owner: ""
replicas: 1
users:
  - name: alice
    role: ""
  - name: bob
    role: user
`
	overlayYAML = `
owner: team
users:
  - name: alice
    role: admin
`
	baseTOML = `
name = "svc"
owner = ""
replicas = 1

[[users]]
name = "alice"
role = ""

[[users]]
name = "bob"
role = "user"
`
	overlayTOML = `
owner = "team"

[[users]]
name = "alice"
role = "admin"
`
	expectedJSON = `{
  "name": "svc",
  "owner": "team",
  "replicas": 1,
  "users": [
    {"name": "alice", "role": "admin"},
    {"name": "bob", "role": "user"}
  ]
}`
)

// writeFile creates a file named name in dir holding content.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// normalize decodes output in the given format and re-encodes it as generic JSON,
// so results from YAML, JSON and TOML compare equal.
func normalize(t *testing.T, f format, output []byte) map[string]any {
	t.Helper()
	var result map[string]any
	switch f {
	case "json":
		require.NoError(t, json.Unmarshal(output, &result))
	case "yaml":
		require.NoError(t, yaml.Unmarshal(output, &result))
	case "toml":
		require.NoError(t, toml.Unmarshal(output, &result))
	}
	encoded, err := json.Marshal(result)
	require.NoError(t, err)
	var normalized map[string]any
	require.NoError(t, json.Unmarshal(encoded, &normalized))
	return normalized
}

func TestRunMergeFormats(t *testing.T) {
	dir := t.TempDir()
	bases := map[string]string{
		"json": writeFile(t, dir, "base.json", baseJSON),
		"yaml": writeFile(t, dir, "base.yaml", baseYAML),
		"toml": writeFile(t, dir, "base.toml", baseTOML),
	}
	overlays := map[string]string{
		"json": writeFile(t, dir, "overlay.json", overlayJSON),
		"yaml": writeFile(t, dir, "overlay.yml", overlayYAML),
		"toml": writeFile(t, dir, "overlay.toml", overlayTOML),
	}

	var expected map[string]any
	require.NoError(t, json.Unmarshal([]byte(expectedJSON), &expected))

	tests := []struct {
		name         string
		base         string
		overlay      string
		outputFormat format
	}{
		{"json to json", "json", "json", "json"},
		{"json to yaml", "json", "json", "yaml"},
		{"json to toml", "json", "json", "toml"},
		{"yaml to json", "yaml", "yaml", "json"},
		{"yaml to yaml", "yaml", "yaml", "yaml"},
		{"toml to json", "toml", "toml", "json"},
		{"toml to toml", "toml", "toml", "toml"},
		{"yaml base, json overlay to json", "yaml", "json", "json"},
		{"json base, toml overlay to yaml", "json", "toml", "yaml"},
		{"toml base, yaml overlay, default format", "toml", "yaml", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var output bytes.Buffer
			cfg := config{format: tt.outputFormat, indent: "  "}
			err := Run(cfg, []string{bases[tt.base], overlays[tt.overlay]}, nil, &output)
			require.NoError(t, err)

			outputFormat := tt.outputFormat
			if outputFormat == "" {
				outputFormat = format(tt.base)
			}
			assert.Equal(t, expected, normalize(t, outputFormat, output.Bytes()))
		})
	}
}

func TestRunKeepsKeyOrder(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.json", `{"zeta": 1, "alpha": {"note": "", "size": 2}}`)
	b := writeFile(t, dir, "b.yaml", "mid: true\nalpha:\n  note: set\n")

	var output bytes.Buffer
	require.NoError(t, Run(config{format: "yaml"}, []string{a, b}, nil, &output))
	out := output.String()
	assert.Less(t, strings.Index(out, "zeta:"), strings.Index(out, "alpha:"))
	assert.Less(t, strings.Index(out, "alpha:"), strings.Index(out, "mid:"))
	assert.Less(t, strings.Index(out, "note: set"), strings.Index(out, "size: 2"))

	output.Reset()
	require.NoError(t, Run(config{indent: "  "}, []string{a, b}, nil, &output))
	merged, err := jsonmerge.Parse(output.Bytes())
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":1,"alpha":{"note":"set","size":2},"mid":true}`, merged.String())
}

func TestRunCommonKeys(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeFile(t, dir, "a.json", `{"id": 1, "tags": [{"k": "x", "v": 1}], "meta": {"owner": "a"}}`),
		writeFile(t, dir, "b.json", `{"id": 2, "tags": [{"k": "y"}], "meta": {}}`),
		writeFile(t, dir, "c.yaml", "id: 3\ntags:\n  - k: z\nmeta: {owner: c}\n"),
	}

	var output bytes.Buffer
	require.NoError(t, Run(config{common: true}, files, nil, &output))
	assert.Equal(t, "id\nmeta\ntags\ntags[0].k\ntags[].k\n", output.String())
}

func TestRunCommonKeysNeedsTwoDocuments(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.json", `{"a": 1}`)
	blank := writeFile(t, dir, "blank.json", "  \n")

	var output bytes.Buffer
	err := Run(config{common: true}, []string{a, blank}, nil, &output)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least two")
}

func TestRunStdin(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.json", `{"a": "", "b": 1}`)

	var output bytes.Buffer
	stdin := strings.NewReader(`{"a": "from stdin"}`)
	require.NoError(t, Run(config{indent: "  "}, []string{a, "-"}, stdin, &output))

	merged, err := jsonmerge.Parse(output.Bytes())
	require.NoError(t, err)
	assert.Equal(t, `{"a":"from stdin","b":1}`, merged.String())
}

func TestRunIdentifierKeys(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.json", `{"l": [{"sku": "x", "id": 1, "q": ""}]}`)
	b := writeFile(t, dir, "b.json", `{"l": [{"sku": "x", "id": 2, "q": "5"}]}`)

	run := func(keys string) string {
		var k identifierKeys
		require.NoError(t, k.Set(keys))
		var output bytes.Buffer
		require.NoError(t, Run(config{keys: k}, []string{a, b}, nil, &output))
		merged, err := jsonmerge.Parse(output.Bytes())
		require.NoError(t, err)
		return merged.String()
	}

	assert.Equal(t, `{"l":[{"sku":"x","id":1,"q":"5"}]}`, run("sku"))
	assert.Equal(t, `{"l":[{"sku":"x","id":1,"q":""},{"sku":"x","id":2,"q":"5"}]}`, run("id"))
	assert.Equal(t, `{"l":[{"sku":"x","id":2,"q":"5"}]}`, run(""))
}

func TestRunMalformed(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.json", `{"a": 1}`)
	bad := writeFile(t, dir, "bad.json", `{"a": `)
	badYAML := writeFile(t, dir, "bad.yaml", "a: [1, 2\n")
	other := writeFile(t, dir, "other.json", `{"b": 2}`)
	files := []string{good, bad, badYAML, other}

	var output bytes.Buffer
	err := Run(config{}, files, nil, &output)
	require.Error(t, err)
	assert.ErrorIs(t, err, jsonmerge.ErrMalformedInput)
	assert.Contains(t, err.Error(), "bad.json")
	assert.Contains(t, err.Error(), "bad.yaml")
	assert.Empty(t, output.String())

	var logs bytes.Buffer
	logger := jsonmerge.NewSlogAdapter(slog.New(slog.NewTextHandler(&logs, nil)))
	require.NoError(t, Run(config{lenient: true, logger: logger}, files, nil, &output))
	merged, err := jsonmerge.Parse(output.Bytes())
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2}`, merged.String())
	assert.Equal(t, 2, strings.Count(logs.String(), "skipping malformed document"))
}

func TestRunUnsupportedValues(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.json", `{"a": 1}`)
	nan := writeFile(t, dir, "nan.yaml", "a: .nan\n")
	files := []string{good, nan}

	var output bytes.Buffer
	err := Run(config{}, files, nil, &output)
	require.Error(t, err)
	assert.ErrorIs(t, err, jsonmerge.ErrUnsupportedValue)
	assert.Contains(t, err.Error(), "nan.yaml")
	assert.Empty(t, output.String())

	var logs bytes.Buffer
	logger := jsonmerge.NewSlogAdapter(slog.New(slog.NewTextHandler(&logs, nil)))
	require.NoError(t, Run(config{lenient: true, logger: logger, format: "json"}, files, nil, &output))
	merged, err := jsonmerge.Parse(output.Bytes())
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, merged.String())
	assert.Contains(t, logs.String(), "skipping malformed document")
}

func TestRunNoValidDocuments(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.json", `nope`)

	var output bytes.Buffer
	err := Run(config{lenient: true}, []string{bad}, nil, &output)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no valid documents")
}

func TestRunMissingFiles(t *testing.T) {
	var output bytes.Buffer
	err := Run(config{}, []string{}, nil, &output)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no files")
}

func TestRunTooManyFiles(t *testing.T) {
	dir := t.TempDir()
	files := make([]string, 3)
	for i := range files {
		files[i] = writeFile(t, dir, string(rune('a'+i))+".json", `{}`)
	}

	var output bytes.Buffer
	err := Run(config{maxDocs: 2}, files, nil, &output)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many files")

	require.NoError(t, Run(config{maxDocs: 3}, files, nil, &output))
	require.NoError(t, Run(config{maxDocs: 0}, files, nil, &output))
}

func TestRunFileNotFound(t *testing.T) {
	var output bytes.Buffer
	err := Run(config{lenient: true}, []string{"nonexistent.json"}, nil, &output)
	assert.Error(t, err)
}

func TestRunUnknownFormat(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "test.unknown", `{"key": "value"}`)

	var output bytes.Buffer
	err := Run(config{}, []string{file}, nil, &output)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file format")
}

func TestRunInvalidKeys(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "a.json", `{}`)

	cfg := config{keys: identifierKeys{keys: []string{""}, set: true}}
	var output bytes.Buffer
	err := Run(cfg, []string{file}, nil, &output)
	assert.ErrorIs(t, err, jsonmerge.ErrInvalidOptions)
}

func TestTOMLMarshalNonObjectRoot(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "base.json", `[{"name": "a", "value": 1}]`)
	overlay := writeFile(t, dir, "overlay.json", `[{"name": "b", "value": 2}]`)

	var output bytes.Buffer
	err := Run(config{format: "toml"}, []string{base, overlay}, nil, &output)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOML")
}

func TestIdentifierKeysFlag(t *testing.T) {
	tests := []struct {
		name     string
		inputs   []string
		expected []string
		valid    bool
	}{
		{"unset", nil, nil, true},
		{"single key", []string{"name"}, []string{"name"}, true},
		{"multiple keys", []string{"name,id"}, []string{"name", "id"}, true},
		{"spaces trimmed", []string{" sku , id "}, []string{"sku", "id"}, true},
		{"multiple calls", []string{"name", "id"}, []string{"name", "id"}, true},
		{"empty disables", []string{""}, []string{}, true},
		{"empty entry", []string{"a,,b"}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var keys identifierKeys
			var err error
			for _, input := range tt.inputs {
				if err = keys.Set(input); err != nil {
					break
				}
			}
			if !tt.valid {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, keys.Keys())
		})
	}
}

func TestFormatFlag(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"json", "json", true},
		{"yaml", "yaml", true},
		{"toml", "toml", true},
		{"upper case", "JSON", true},
		{"empty", "", true},
		{"invalid", "xml", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f format
			err := f.Set(tt.input)
			if (err == nil) != tt.valid {
				t.Errorf("expected valid=%v, got error=%v", tt.valid, err)
			}
		})
	}
}
