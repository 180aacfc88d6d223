package sheet

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// Row is one spreadsheet row keyed by header cell. Values are kept as the
// raw cell text; the normalizer decides how to interpret them.
type Row map[string]string

// Decoder turns raw spreadsheet bytes into rows, one slice per sheet. Vendors
// disagree on everything else, so this is the only contract the pipeline
// relies on.
type Decoder interface {
	Decode(data []byte) (map[string][]Row, error)
}

// CSV decodes a comma-separated export as a single unnamed sheet whose first
// record is the header.
type CSV struct{}

// csvSheetName keys the single sheet a CSV file produces.
const csvSheetName = "Sheet1"

func (CSV) Decode(data []byte) (map[string][]Row, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("sheet: parse csv: %w", err)
	}
	if len(records) == 0 {
		return map[string][]Row{csvSheetName: nil}, nil
	}
	return map[string][]Row{csvSheetName: zipRows(records[0], records[1:])}, nil
}

// zipRows pairs each record with the header, skipping blank records and
// tolerating ragged widths. Header cells keep their original spelling,
// whitespace included; some vendors ship headers like " Amount " and the
// normalizer's alias lists account for them.
func zipRows(header []string, records [][]string) []Row {
	var rows []Row
	for _, record := range records {
		row := make(Row, len(header))
		empty := true
		for i, name := range header {
			if strings.TrimSpace(name) == "" || i >= len(record) {
				continue
			}
			row[name] = record[i]
			if strings.TrimSpace(record[i]) != "" {
				empty = false
			}
		}
		if !empty {
			rows = append(rows, row)
		}
	}
	return rows
}
