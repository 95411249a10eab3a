// Package output renders CLI results as tables, markdown, CSV, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
)

var formatAliases = map[string]Format{
	"":         FormatTable,
	"table":    FormatTable,
	"markdown": FormatMarkdown,
	"md":       FormatMarkdown,
	"csv":      FormatCSV,
	"json":     FormatJSON,
	"yaml":     FormatYAML,
	"yml":      FormatYAML,
}

var extensions = map[Format]string{
	FormatMarkdown: "md",
	FormatCSV:      "csv",
	FormatJSON:     "json",
	FormatYAML:     "yaml",
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	if f, ok := formatAliases[strings.ToLower(strings.TrimSpace(value))]; ok {
		return f, nil
	}
	return "", fmt.Errorf("unsupported output format: %s", value)
}

// Extension returns the file extension used when writing format to disk.
func (f Format) Extension() string {
	if ext, ok := extensions[f]; ok {
		return ext
	}
	return "txt"
}

// Structured reports whether the format encodes the payload rather than the
// table.
func (f Format) Structured() bool {
	return f == FormatJSON || f == FormatYAML
}

// Render encodes payload for the structured formats and draws tbl for the
// others.
func Render(format Format, tbl Table, payload any) (string, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(payload, "", "  ")
		return string(data), err
	case FormatYAML:
		return renderYAML(payload)
	default:
		return tbl.render(format), nil
	}
}

// renderYAML goes through JSON so keys match the json tags of core types.
func renderYAML(payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", err
	}
	data, err := yaml.Marshal(generic)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\n"), nil
}
