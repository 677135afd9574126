// Package vocabulary loads the reference table that drives classification:
// garment class names per segmentation class index, and the allowed label
// values per label category. The table is data: categories and values can
// grow without code changes.
package vocabulary

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/anshultibby/pocket-fashion/internal/core/domain"
)

type Category struct {
	Name   string   `yaml:"name"`
	Labels []string `yaml:"labels"`
}

type tableFile struct {
	GarmentClasses map[string]string `yaml:"garment_classes"`
	Categories     []Category        `yaml:"categories"`
}

// Table is the loaded vocabulary. The flat label index (category order as in
// the file, values in file order within each category) matches the
// classification model's output layout.
type Table struct {
	GarmentClasses map[string]string
	Categories     []Category

	flat  []labelRef
	known map[string]struct{}
}

type labelRef struct {
	category domain.LabelCategory
	value    string
}

func Load(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary table: %w", err)
	}
	var parsed tableFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse vocabulary table: %w", err)
	}
	return build(parsed)
}

func build(parsed tableFile) (*Table, error) {
	if len(parsed.GarmentClasses) == 0 {
		return nil, fmt.Errorf("vocabulary table has no garment classes")
	}
	if len(parsed.Categories) == 0 {
		return nil, fmt.Errorf("vocabulary table has no label categories")
	}

	table := &Table{
		GarmentClasses: parsed.GarmentClasses,
		Categories:     parsed.Categories,
		known:          make(map[string]struct{}, len(parsed.Categories)),
	}
	for _, category := range parsed.Categories {
		if category.Name == "" {
			return nil, fmt.Errorf("vocabulary category without a name")
		}
		if len(category.Labels) == 0 {
			return nil, fmt.Errorf("vocabulary category %q has no labels", category.Name)
		}
		table.known[category.Name] = struct{}{}
		for _, value := range category.Labels {
			table.flat = append(table.flat, labelRef{
				category: domain.LabelCategory(category.Name),
				value:    value,
			})
		}
	}
	return table, nil
}

// Size is the total label count, i.e. the classification model's output width.
func (t *Table) Size() int {
	return len(t.flat)
}

// At resolves a flat model-output index to its category and value.
func (t *Table) At(i int) (domain.LabelCategory, string) {
	if i < 0 || i >= len(t.flat) {
		return domain.CategoryUnknown, ""
	}
	ref := t.flat[i]
	return ref.category, ref.value
}

// CategoryFor maps a category name to its typed form; names outside the table
// land in the unknown bucket instead of being invented.
func (t *Table) CategoryFor(name string) domain.LabelCategory {
	if _, ok := t.known[name]; ok {
		return domain.LabelCategory(name)
	}
	return domain.CategoryUnknown
}

// ClassName resolves a segmentation class key to its garment class name.
func (t *Table) ClassName(key string) string {
	if name, ok := t.GarmentClasses[key]; ok {
		return name
	}
	return "class_" + key
}
