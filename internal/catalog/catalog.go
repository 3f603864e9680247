// Package catalog loads the static game tables: shop items, bond kinds and
// link types.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

type Item struct {
	Code  string `yaml:"code" json:"code"`
	Name  string `yaml:"name" json:"name"`
	Price int64  `yaml:"price" json:"price"`
}

type BondKind struct {
	Kind        string `yaml:"kind" json:"kind"`
	Exclusive   bool   `yaml:"exclusive" json:"exclusive"`
	Description string `yaml:"description" json:"description,omitempty"`
}

type Catalog struct {
	Items     []Item     `yaml:"items" json:"items"`
	BondKinds []BondKind `yaml:"bond_kinds" json:"bond_kinds"`
	LinkTypes []string   `yaml:"link_types" json:"link_types"`

	items map[string]Item
	bonds map[string]BondKind
	links map[string]struct{}
}

// Default returns the catalog shipped with the binary.
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("default catalog: %v", err))
	}
	return c
}

// Load reads a catalog file. An empty path yields the default catalog.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func Parse(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("catalog yaml: %w", err)
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) index() error {
	c.items = make(map[string]Item, len(c.Items))
	for i, it := range c.Items {
		it.Code = strings.ToLower(strings.TrimSpace(it.Code))
		if it.Code == "" {
			return fmt.Errorf("item %d: code is required", i)
		}
		if it.Price <= 0 {
			return fmt.Errorf("item %s: price must be > 0", it.Code)
		}
		if _, dup := c.items[it.Code]; dup {
			return fmt.Errorf("item %s: duplicate code", it.Code)
		}
		c.Items[i] = it
		c.items[it.Code] = it
	}

	c.bonds = make(map[string]BondKind, len(c.BondKinds))
	for i, bk := range c.BondKinds {
		bk.Kind = strings.ToLower(strings.TrimSpace(bk.Kind))
		if bk.Kind == "" {
			return fmt.Errorf("bond kind %d: kind is required", i)
		}
		if _, dup := c.bonds[bk.Kind]; dup {
			return fmt.Errorf("bond kind %s: duplicate", bk.Kind)
		}
		c.BondKinds[i] = bk
		c.bonds[bk.Kind] = bk
	}

	c.links = make(map[string]struct{}, len(c.LinkTypes))
	for i, lt := range c.LinkTypes {
		lt = strings.ToLower(strings.TrimSpace(lt))
		if lt == "" {
			return fmt.Errorf("link type %d: empty", i)
		}
		c.LinkTypes[i] = lt
		c.links[lt] = struct{}{}
	}
	sort.Slice(c.Items, func(i, j int) bool { return c.Items[i].Code < c.Items[j].Code })
	return nil
}

func (c *Catalog) Item(code string) (Item, bool) {
	it, ok := c.items[strings.ToLower(strings.TrimSpace(code))]
	return it, ok
}

func (c *Catalog) BondKind(kind string) (BondKind, bool) {
	bk, ok := c.bonds[strings.ToLower(strings.TrimSpace(kind))]
	return bk, ok
}

func (c *Catalog) HasLinkType(linkType string) bool {
	_, ok := c.links[strings.ToLower(strings.TrimSpace(linkType))]
	return ok
}
