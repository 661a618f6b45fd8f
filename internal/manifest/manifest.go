// Package manifest reads pipeline template manifest files.
//
// A template manifest declares custom pipeline templates beyond the built-in
// full, hotfix and quickfix ones. Each row adds one stage to one template;
// stage ids may use legacy aliases.
//
// CSV format:
//
//	template,stage,note
//	docs-only,triage,
//	docs-only,review,human sign-off
//	docs-only,release,
//	spike,plan,
//	spike,deliberation,
//
// Only the template and stage columns are required. Row order within a
// template does not matter: stages always run in pipeline order.
package manifest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"storyflow/internal/pipeline"
)

// TemplateEntry represents a single row in the template manifest CSV.
type TemplateEntry struct {
	// Template is the template name referenced by story snapshots.
	Template string

	// Stage is the canonical stage id.
	Stage pipeline.StageID

	// Note is free text for humans; it is not interpreted.
	Note string
}

// Manifest holds all template entries parsed from a manifest CSV file.
type Manifest struct {
	// Entries are the template rows in file order.
	Entries []TemplateEntry
}

// ReadFromFile reads and parses a template manifest CSV file.
func ReadFromFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	return readFromReader(f)
}

// ReadFromString parses a template manifest from a CSV string.
func ReadFromString(data string) (*Manifest, error) {
	return readFromReader(strings.NewReader(data))
}

func readFromReader(r io.Reader) (*Manifest, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest header: %w", err)
	}

	colIndex := buildColumnIndex(header)
	if err := validateColumns(colIndex); err != nil {
		return nil, err
	}

	var entries []TemplateEntry
	lineNum := 1 // header was line 1
	for {
		lineNum++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest line %d: %w", lineNum, err)
		}

		name := getField(record, colIndex, "template")
		if name == "" {
			return nil, fmt.Errorf("manifest line %d: template name is required", lineNum)
		}
		if name == pipeline.TemplateFull {
			return nil, fmt.Errorf("manifest line %d: template %q is reserved", lineNum, name)
		}

		raw := getField(record, colIndex, "stage")
		stage, ok := pipeline.Canonical(raw)
		if !ok {
			return nil, fmt.Errorf("manifest line %d: unknown stage %q", lineNum, raw)
		}

		entries = append(entries, TemplateEntry{
			Template: name,
			Stage:    stage,
			Note:     getField(record, colIndex, "note"),
		})
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("manifest contains no template entries")
	}

	return &Manifest{Entries: entries}, nil
}

// requiredColumns are the columns that must be present in the manifest CSV.
var requiredColumns = []string{"template", "stage"}

func buildColumnIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.TrimSpace(strings.ToLower(col))] = i
	}
	return index
}

func validateColumns(colIndex map[string]int) error {
	for _, col := range requiredColumns {
		if _, ok := colIndex[col]; !ok {
			return fmt.Errorf("manifest missing required column: %s", col)
		}
	}
	return nil
}

func getField(record []string, colIndex map[string]int, column string) string {
	idx, ok := colIndex[column]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// Templates returns the unique template names in order of first appearance.
func (m *Manifest) Templates() []string {
	seen := make(map[string]bool)
	var names []string
	for _, e := range m.Entries {
		if !seen[e.Template] {
			seen[e.Template] = true
			names = append(names, e.Template)
		}
	}
	return names
}

// Stages returns the stage ids declared for a template, deduplicated, in
// file order. Returns nil for unknown templates.
func (m *Manifest) Stages(template string) []pipeline.StageID {
	seen := make(map[pipeline.StageID]bool)
	var ids []pipeline.StageID
	for _, e := range m.Entries {
		if e.Template != template || seen[e.Stage] {
			continue
		}
		seen[e.Stage] = true
		ids = append(ids, e.Stage)
	}
	return ids
}

// HasTemplate returns true if the manifest declares the given template.
func (m *Manifest) HasTemplate(name string) bool {
	for _, e := range m.Entries {
		if e.Template == name {
			return true
		}
	}
	return false
}

// Apply returns a copy of the catalog with every manifest template
// registered. Manifest templates replace built-in ones of the same name.
func (m *Manifest) Apply(c *pipeline.Catalog) *pipeline.Catalog {
	for _, name := range m.Templates() {
		c = c.WithTemplate(name, m.Stages(name))
	}
	return c
}
