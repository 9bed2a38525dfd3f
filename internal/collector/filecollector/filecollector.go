// Package filecollector implements a Collector over a newline-delimited
// JSON file: the demo data source the CLI wires up so collect/delete can be
// exercised end to end without a live upstream.
package filecollector

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/nholding/tsingest/internal/calendar"
	"github.com/nholding/tsingest/internal/collector"
	"github.com/nholding/tsingest/internal/schema"
)

// Collector reads one JSON object per line from Path, keeps the rows whose
// TimeColumn falls inside the requested interval and whose fields match
// every requested param, and coerces the remaining fields to DataSchema's
// declared types.
type Collector struct {
	Path       string
	TimeColumn string
	DataSchema schema.Schema
}

func (c *Collector) Retrieve(ctx context.Context, interval collector.Interval, unit calendar.Unit, params map[string]string) (schema.Batch, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, fmt.Errorf("filecollector: open %s: %w", c.Path, err)
	}
	defer f.Close()

	var batch schema.Batch
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var raw map[string]any
		if err := json.Unmarshal(line, &raw); err != nil {
			return nil, fmt.Errorf("filecollector: %s line %d: %w", c.Path, lineNo, err)
		}

		row, ts, err := coerceRow(raw, c.DataSchema, c.TimeColumn)
		if err != nil {
			return nil, fmt.Errorf("filecollector: %s line %d: %w", c.Path, lineNo, err)
		}

		if ts.Before(interval.Start) || ts.After(interval.End) {
			continue
		}
		if !matchesParams(raw, params) {
			continue
		}

		batch = append(batch, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("filecollector: scan %s: %w", c.Path, err)
	}

	return batch, nil
}

func matchesParams(raw map[string]any, params map[string]string) bool {
	for k, want := range params {
		got, ok := raw[k]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != want {
			return false
		}
	}
	return true
}

// coerceRow converts a JSON-decoded row into DataSchema's declared Go types
// and reports the parsed value of timeCol for interval filtering.
func coerceRow(raw map[string]any, sch schema.Schema, timeCol string) (schema.Row, time.Time, error) {
	row := make(schema.Row, len(sch.Columns))
	var ts time.Time

	for _, col := range sch.Columns {
		v, ok := raw[col.Name]
		if !ok {
			return nil, time.Time{}, fmt.Errorf("missing column %q", col.Name)
		}

		switch col.Type {
		case schema.Integer:
			f, ok := v.(float64)
			if !ok {
				return nil, time.Time{}, fmt.Errorf("column %q: expected number, got %T", col.Name, v)
			}
			row[col.Name] = int64(f)
		case schema.Real:
			f, ok := v.(float64)
			if !ok {
				return nil, time.Time{}, fmt.Errorf("column %q: expected number, got %T", col.Name, v)
			}
			row[col.Name] = f
		case schema.Bool:
			b, ok := v.(bool)
			if !ok {
				return nil, time.Time{}, fmt.Errorf("column %q: expected bool, got %T", col.Name, v)
			}
			row[col.Name] = b
		case schema.Text:
			s, ok := v.(string)
			if !ok {
				return nil, time.Time{}, fmt.Errorf("column %q: expected string, got %T", col.Name, v)
			}
			row[col.Name] = s
		case schema.Timestamp:
			s, ok := v.(string)
			if !ok {
				return nil, time.Time{}, fmt.Errorf("column %q: expected RFC3339 string, got %T", col.Name, v)
			}
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return nil, time.Time{}, fmt.Errorf("column %q: %w", col.Name, err)
			}
			row[col.Name] = t
			if col.Name == timeCol {
				ts = t
			}
		default:
			return nil, time.Time{}, fmt.Errorf("column %q: unknown type %q", col.Name, col.Type)
		}
	}

	if ts.IsZero() {
		return nil, time.Time{}, fmt.Errorf("time column %q not found in schema", timeCol)
	}
	return row, ts, nil
}
