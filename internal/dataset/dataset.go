package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/roach88/chartflow/internal/ir"
)

// Format selects the decoder.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatJSON Format = "json"
)

// Parse hints for individual fields.
const (
	ParseAuto    = "auto"
	ParseNumber  = "number"
	ParseBoolean = "boolean"
	ParseString  = "string"
)

// Options configures decoding. All fields are optional.
type Options struct {
	// Format overrides the format inferred from the file extension.
	Format Format

	// Comma is the CSV field delimiter. When zero, ',' is used (tab for TSV).
	Comma rune

	// TrimSpace trims leading/trailing spaces from each CSV cell.
	TrimSpace bool

	// Parse maps field names to a parse hint, overriding inference.
	Parse map[string]string

	// Property is a dotted path to the array inside a JSON document,
	// e.g. "data.items". Empty means the document itself is the array.
	Property string
}

// utf8BOM is stripped from the first header cell if present.
const utf8BOM = "\uFEFF"

// ErrUnknownFormat is returned when no decoder matches a file.
var ErrUnknownFormat = errors.New("unknown dataset format")

// Load reads the file at path into a table.
func Load(path string, opts Options) (ir.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return ir.Table{}, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	format := opts.Format
	if format == "" {
		format = Format(strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
	}

	var t ir.Table
	switch format {
	case FormatCSV:
		t, err = ReadCSV(f, opts)
	case FormatTSV:
		if opts.Comma == 0 {
			opts.Comma = '\t'
		}
		t, err = ReadCSV(f, opts)
	case FormatJSON:
		t, err = ReadJSON(f, opts)
	default:
		return ir.Table{}, fmt.Errorf("%s: %w %q", path, ErrUnknownFormat, format)
	}
	if err != nil {
		return ir.Table{}, fmt.Errorf("%s: %w", path, err)
	}

	slog.Debug("dataset loaded",
		"path", path,
		"format", format,
		"rows", t.Len(),
		"fields", len(t.Fields),
	)
	return t, nil
}

// ReadCSV decodes delimited text with a header row.
func ReadCSV(r io.Reader, opts Options) (ir.Table, error) {
	cr := csv.NewReader(r)
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}
	cr.TrimLeadingSpace = opts.TrimSpace
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return ir.Table{Fields: []string{}, Rows: []ir.Row{}}, nil
	}
	if err != nil {
		return ir.Table{}, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ir.Table{}, fmt.Errorf("read record: %w", err)
		}
		if opts.TrimSpace {
			for i := range rec {
				rec[i] = strings.TrimSpace(rec[i])
			}
		}
		records = append(records, rec)
	}

	parsers := make([]func(string) ir.Value, len(header))
	for col, field := range header {
		hint := opts.Parse[field]
		if hint == "" || hint == ParseAuto {
			hint = inferColumn(records, col)
		}
		p, err := parser(hint)
		if err != nil {
			return ir.Table{}, fmt.Errorf("field %q: %w", field, err)
		}
		parsers[col] = p
	}

	rows := make([]ir.Row, len(records))
	for i, rec := range records {
		row := make(ir.Row, len(header))
		for col, field := range header {
			if col >= len(rec) {
				row[field] = ir.Null{}
				continue
			}
			row[field] = parsers[col](rec[col])
		}
		rows[i] = row
	}
	return ir.NewTableWithFields(header, rows), nil
}

// inferColumn picks the narrowest type every non-empty cell of col fits.
func inferColumn(records [][]string, col int) string {
	numeric, boolean, seen := true, true, false
	for _, rec := range records {
		if col >= len(rec) || rec[col] == "" {
			continue
		}
		seen = true
		cell := rec[col]
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			numeric = false
		}
		if cell != "true" && cell != "false" {
			boolean = false
		}
		if !numeric && !boolean {
			break
		}
	}
	switch {
	case !seen:
		return ParseString
	case numeric:
		return ParseNumber
	case boolean:
		return ParseBoolean
	}
	return ParseString
}

func parser(hint string) (func(string) ir.Value, error) {
	switch hint {
	case ParseString:
		return func(s string) ir.Value { return ir.String(s) }, nil
	case ParseNumber:
		return func(s string) ir.Value {
			if s == "" {
				return ir.Null{}
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return ir.Null{}
			}
			return ir.Number(f)
		}, nil
	case ParseBoolean:
		return func(s string) ir.Value {
			switch strings.ToLower(s) {
			case "true", "1":
				return ir.Bool(true)
			case "false", "0":
				return ir.Bool(false)
			}
			return ir.Null{}
		}, nil
	}
	return nil, fmt.Errorf("unknown parse hint %q", hint)
}

// ReadJSON decodes an array of objects, optionally nested under
// opts.Property. Parse hints coerce the named fields.
func ReadJSON(r io.Reader, opts Options) (ir.Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return ir.Table{}, fmt.Errorf("read json: %w", err)
	}
	doc, err := ir.UnmarshalValue(data)
	if err != nil {
		return ir.Table{}, fmt.Errorf("decode json: %w", err)
	}

	if opts.Property != "" {
		for _, key := range strings.Split(opts.Property, ".") {
			obj, ok := doc.(ir.Object)
			if !ok {
				return ir.Table{}, fmt.Errorf("property %q: %q is not an object", opts.Property, key)
			}
			if doc, ok = obj[key]; !ok {
				return ir.Table{}, fmt.Errorf("property %q: missing %q", opts.Property, key)
			}
		}
	}

	list, ok := doc.(ir.List)
	if !ok {
		return ir.Table{}, fmt.Errorf("want an array of objects, got %T", doc)
	}

	rows := make([]ir.Row, len(list))
	for i, elem := range list {
		obj, ok := elem.(ir.Object)
		if !ok {
			return ir.Table{}, fmt.Errorf("element %d: want object, got %T", i, elem)
		}
		row := ir.Row(obj)
		for field, hint := range opts.Parse {
			v, present := row[field]
			if !present || hint == ParseAuto {
				continue
			}
			p, err := parser(hint)
			if err != nil {
				return ir.Table{}, fmt.Errorf("field %q: %w", field, err)
			}
			if _, isString := v.(ir.String); !isString {
				v = ir.String(ir.ToString(v))
			}
			row[field] = p(string(v.(ir.String)))
		}
		rows[i] = row
	}
	return ir.NewTable(rows), nil
}

// Spec is a named dataset source given on the command line as name=path.
type Spec struct {
	Name string
	Path string
}

// ParseSpec parses "name=path". A bare path is named after its file stem.
func ParseSpec(s string) (Spec, error) {
	name, path, found := strings.Cut(s, "=")
	if !found {
		path = s
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if name == "" || path == "" {
		return Spec{}, fmt.Errorf("invalid dataset %q, want name=path", s)
	}
	return Spec{Name: name, Path: path}, nil
}
