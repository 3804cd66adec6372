// Package ingest reads inventory snapshots from CSV. Column headers are
// matched by name with a few common aliases; the engine consumes the
// canonical five fields regardless of what the export called them.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"warescan/internal/logging"
	"warescan/internal/types"
)

// headerAliases maps accepted column names to canonical fields.
var headerAliases = map[string]string{
	"pallet_id":      "pallet_id",
	"pallet":         "pallet_id",
	"lpn":            "pallet_id",
	"location":       "location_code",
	"location_code":  "location_code",
	"description":    "description",
	"product":        "description",
	"receipt":        "receipt_number",
	"receipt_number": "receipt_number",
	"lot":            "receipt_number",
	"creation_date":  "creation_date",
	"created":        "creation_date",
	"created_at":     "creation_date",
}

// timeLayouts are tried in order when parsing creation dates. Layouts
// without a zone are read as UTC.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Result is a parsed snapshot plus per-row diagnostics.
type Result struct {
	Rows     []types.InventoryRow
	Warnings []string
}

// ReadFile parses a snapshot CSV from disk.
func ReadFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses a snapshot CSV. The first record must be a header naming at
// least pallet and location columns. Rows with missing or unparseable
// fields are kept, with a warning; downstream integrity rules flag them.
func Read(r io.Reader) (*Result, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	cols := mapHeader(header)
	if _, ok := cols["pallet_id"]; !ok {
		return nil, fmt.Errorf("no pallet column in header %v", header)
	}
	if _, ok := cols["location_code"]; !ok {
		return nil, fmt.Errorf("no location column in header %v", header)
	}

	res := &Result{}
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		row := types.InventoryRow{
			PalletID:      field("pallet_id"),
			LocationCode:  field("location_code"),
			Description:   field("description"),
			ReceiptNumber: field("receipt_number"),
		}
		if raw := field("creation_date"); raw != "" {
			ts, err := parseTime(raw)
			if err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("line %d: bad creation_date %q", line, raw))
			} else {
				row.CreationDate = ts
			}
		}
		if row.PalletID == "" {
			res.Warnings = append(res.Warnings, fmt.Sprintf("line %d: missing pallet_id", line))
		}
		if row.LocationCode == "" {
			res.Warnings = append(res.Warnings, fmt.Sprintf("line %d: missing location", line))
		}
		res.Rows = append(res.Rows, row)
	}

	logging.Ingest("parsed %d rows, %d warnings", len(res.Rows), len(res.Warnings))
	return res, nil
}

func mapHeader(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		canonical, ok := headerAliases[key]
		if !ok {
			continue
		}
		if _, dup := cols[canonical]; dup {
			continue
		}
		cols[canonical] = i
	}
	return cols
}

func parseTime(raw string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if ts, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format")
}
