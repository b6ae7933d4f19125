package pdfgen

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/mintcal/mintcal/internal/domain"
)

// DefaultTemplateID is used when a calendar row names no template.
const DefaultTemplateID = "classic-year"

//go:embed templates.yaml
var templatesYAML []byte

// PageSpec is the physical print geometry of a template.
type PageSpec struct {
	WidthIn  float64 `yaml:"width_in"`
	HeightIn float64 `yaml:"height_in"`
	DPI      int     `yaml:"dpi"`
}

// StyleSpec carries the template palette. Colors are #rrggbb.
type StyleSpec struct {
	Background string `yaml:"background"`
	Ink        string `yaml:"ink"`
	Accent     string `yaml:"accent"`
	Muted      string `yaml:"muted"`
	Weekend    string `yaml:"weekend"`
	FontFamily string `yaml:"font_family"`
}

// Template is one entry of the embedded print catalog.
type Template struct {
	ID    string    `yaml:"id"`
	Name  string    `yaml:"name"`
	Page  PageSpec  `yaml:"page"`
	Style StyleSpec `yaml:"style"`
}

type catalogFile struct {
	Templates []Template `yaml:"templates"`
}

// Catalog is the parsed template set. Construct it once at startup.
type Catalog struct {
	byID  map[string]Template
	order []string
}

// LoadCatalog parses and validates the embedded catalog.
func LoadCatalog() (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(templatesYAML, &f); err != nil {
		return nil, fmt.Errorf("op=pdfgen.load_catalog: %w", err)
	}
	return NewCatalog(f.Templates)
}

// NewCatalog validates and indexes a template set. The default template
// must be present.
func NewCatalog(templates []Template) (*Catalog, error) {
	if len(templates) == 0 {
		return nil, fmt.Errorf("op=pdfgen.load_catalog: catalog is empty")
	}
	c := &Catalog{byID: make(map[string]Template, len(templates))}
	for _, t := range templates {
		if t.ID == "" {
			return nil, fmt.Errorf("op=pdfgen.load_catalog: template without id")
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("op=pdfgen.load_catalog: duplicate template %q", t.ID)
		}
		if t.Page.WidthIn <= 0 || t.Page.HeightIn <= 0 || t.Page.DPI <= 0 {
			return nil, fmt.Errorf("op=pdfgen.load_catalog: template %q has a degenerate page", t.ID)
		}
		c.byID[t.ID] = t
		c.order = append(c.order, t.ID)
	}
	if _, ok := c.byID[DefaultTemplateID]; !ok {
		return nil, fmt.Errorf("op=pdfgen.load_catalog: default template %q missing", DefaultTemplateID)
	}
	return c, nil
}

// Get returns the template for id; empty id selects the default.
func (c *Catalog) Get(id string) (Template, error) {
	if id == "" {
		id = DefaultTemplateID
	}
	t, ok := c.byID[id]
	if !ok {
		return Template{}, fmt.Errorf("op=pdfgen.catalog_get: template %q: %w", id, domain.ErrNotFound)
	}
	return t, nil
}

// IDs returns template ids in catalog order.
func (c *Catalog) IDs() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}
