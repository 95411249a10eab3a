package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/botwire/botwire/internal/output"
)

// outputOptions are the shared --output-format/--out/--out-dir flags.
type outputOptions struct {
	format string
	out    string
	outDir string
}

func addOutputFlags(cmd *cobra.Command, opts *outputOptions) {
	cmd.Flags().StringVar(&opts.format, "output-format", string(output.FormatTable), "Output format: table|markdown|csv|json|yaml")
	cmd.Flags().StringVar(&opts.out, "out", "", "Write output to a file (default stdout)")
	cmd.Flags().StringVar(&opts.outDir, "out-dir", "", "Write output to a directory")
}

type outputSink struct {
	writer io.Writer
	close  func() error
	path   string
}

var nonFilename = regexp.MustCompile(`[^a-z0-9._-]+`)

func sanitizeFilename(value string) string {
	clean := strings.ToLower(strings.TrimSpace(value))
	clean = nonFilename.ReplaceAllString(clean, "-")
	clean = strings.Trim(clean, "-.")
	if clean == "" {
		return "output"
	}
	return clean
}

// emit renders tbl (or payload for JSON) to the sink chosen by the flags.
// name is the file stem used with --out-dir.
func (o outputOptions) emit(name string, tbl output.Table, payload any) error {
	format, err := output.ParseFormat(o.format)
	if err != nil {
		return err
	}

	path, err := o.target(name, format)
	if err != nil {
		return err
	}
	sink, err := openSink(path)
	if err != nil {
		return err
	}
	defer func() { _ = sink.close() }()

	rendered, err := output.Render(format, tbl, payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(sink.writer, rendered)
	return err
}

func (o outputOptions) target(name string, format output.Format) (string, error) {
	outPath := strings.TrimSpace(o.out)
	outDir := strings.TrimSpace(o.outDir)
	if outPath != "" && outDir != "" {
		return "", fmt.Errorf("--out and --out-dir are mutually exclusive")
	}
	if outDir == "" {
		return outPath, nil
	}
	dir, err := ensureOutDir(outDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, sanitizeFilename(name)+"."+format.Extension()), nil
}

func openSink(path string) (*outputSink, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || trimmed == "-" {
		return &outputSink{writer: os.Stdout, close: func() error { return nil }, path: "-"}, nil
	}

	if err := os.MkdirAll(filepath.Dir(trimmed), 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(trimmed)
	if err != nil {
		return nil, err
	}
	return &outputSink{writer: file, close: file.Close, path: trimmed}, nil
}

func ensureOutDir(dir string) (string, error) {
	clean := strings.TrimSpace(dir)
	if err := os.MkdirAll(clean, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return clean, nil
	}
	return abs, nil
}
