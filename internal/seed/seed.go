// Package seed loads the static catalog (categories and postcodes) into the store.
package seed

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/returnordie/til-i-allt-sub001/internal/models"
)

// Catalog is the YAML seed file layout.
type Catalog struct {
	Categories []CategorySeed `yaml:"categories"`
	Postcodes  []PostcodeSeed `yaml:"postcodes"`
}

// CategorySeed is a category with its direct children. Children inherit the section.
type CategorySeed struct {
	Section  string         `yaml:"section"`
	Slug     string         `yaml:"slug"`
	Name     string         `yaml:"name"`
	Position int            `yaml:"position"`
	Children []CategorySeed `yaml:"children"`
}

type PostcodeSeed struct {
	Code  string `yaml:"code"`
	Place string `yaml:"place"`
}

// CategoryUpserter stores a category keyed by section and slug.
type CategoryUpserter interface {
	Upsert(ctx context.Context, c *models.Category) (*models.Category, error)
}

type PostcodeUpserter interface {
	Upsert(ctx context.Context, p models.Postcode) error
}

// Result counts what Apply wrote.
type Result struct {
	Categories int
	Postcodes  int
}

// LoadFile reads and validates a catalog file.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a catalog and rejects unknown fields, bad sections and duplicates.
func Decode(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var c Catalog
	if err := dec.Decode(&c); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	seen := map[string]bool{}
	for _, root := range c.Categories {
		if !models.Section(root.Section).Valid() {
			return fmt.Errorf("category %q: unknown section %q", root.Slug, root.Section)
		}
		nodes := append([]CategorySeed{root}, root.Children...)
		for i, n := range nodes {
			if n.Slug == "" || n.Name == "" {
				return fmt.Errorf("category under %s needs slug and name", root.Section)
			}
			if i > 0 && len(n.Children) > 0 {
				return fmt.Errorf("category %q: categories nest one level only", n.Slug)
			}
			key := root.Section + "/" + n.Slug
			if seen[key] {
				return fmt.Errorf("duplicate category %s", key)
			}
			seen[key] = true
		}
	}
	codes := map[string]bool{}
	for _, p := range c.Postcodes {
		if p.Code == "" {
			return fmt.Errorf("postcode without code (place %q)", p.Place)
		}
		if codes[p.Code] {
			return fmt.Errorf("duplicate postcode %s", p.Code)
		}
		codes[p.Code] = true
	}
	return nil
}

// Apply upserts the catalog. Running it twice leaves the store unchanged.
func Apply(ctx context.Context, c *Catalog, categories CategoryUpserter, postcodes PostcodeUpserter) (Result, error) {
	var res Result
	for _, root := range c.Categories {
		section := models.Section(root.Section)
		parent, err := categories.Upsert(ctx, &models.Category{
			Section:  section,
			Slug:     root.Slug,
			Name:     root.Name,
			Position: root.Position,
		})
		if err != nil {
			return res, err
		}
		res.Categories++
		for _, child := range root.Children {
			parentID := parent.ID
			if _, err := categories.Upsert(ctx, &models.Category{
				Section:  section,
				Slug:     child.Slug,
				Name:     child.Name,
				Position: child.Position,
				ParentID: &parentID,
			}); err != nil {
				return res, err
			}
			res.Categories++
		}
	}
	for _, p := range c.Postcodes {
		if err := postcodes.Upsert(ctx, models.Postcode{Code: p.Code, Place: p.Place}); err != nil {
			return res, fmt.Errorf("failed to upsert postcode %s: %w", p.Code, err)
		}
		res.Postcodes++
	}
	zap.L().Info("catalog seeded", zap.Int("categories", res.Categories), zap.Int("postcodes", res.Postcodes))
	return res, nil
}
