package sheet

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// XLSX decodes an Excel workbook. Every sheet is returned under its own name
// with the first row as the header.
type XLSX struct{}

func (XLSX) Decode(data []byte) (map[string][]Row, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("sheet: open workbook: %w", err)
	}
	defer f.Close()

	sheets := make(map[string][]Row)
	for _, name := range f.GetSheetList() {
		records, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("sheet: read %q: %w", name, err)
		}
		if len(records) == 0 {
			sheets[name] = nil
			continue
		}
		sheets[name] = zipRows(records[0], records[1:])
	}
	return sheets, nil
}
