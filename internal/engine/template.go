package engine

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"importer/internal/sheet"
)

// Template names one vendor's export format: which decoder to use and the
// classification values fixed for every row of that vendor's files. Unset
// fields fall back to the row's own columns.
type Template struct {
	Name   string `yaml:"name"`
	Format string `yaml:"format"`
	Batch  string `yaml:"batch"`
	Source string `yaml:"source"`
	Method string `yaml:"method"`
	Fund   string `yaml:"fund"`
}

// Overrides returns the fixed classification values for this template.
func (t Template) Overrides() Overrides {
	return Overrides{Batch: t.Batch, Source: t.Source, Method: t.Method, Fund: t.Fund}
}

// Decoder selects the spreadsheet decoder for the template's format. An empty
// format means CSV.
func (t Template) Decoder() (sheet.Decoder, error) {
	switch t.Format {
	case "", "csv":
		return sheet.CSV{}, nil
	case "xlsx":
		return sheet.XLSX{}, nil
	default:
		return nil, fmt.Errorf("importer: unknown template format %q", t.Format)
	}
}

// LoadTemplates parses a YAML list of templates keyed by name.
func LoadTemplates(data []byte) (map[string]Template, error) {
	var list []Template
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("importer: parse templates: %w", err)
	}
	templates := make(map[string]Template, len(list))
	for _, t := range list {
		if t.Name == "" {
			return nil, fmt.Errorf("importer: template without a name")
		}
		if _, err := t.Decoder(); err != nil {
			return nil, err
		}
		templates[t.Name] = t
	}
	return templates, nil
}
