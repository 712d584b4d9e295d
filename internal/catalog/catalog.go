// Package catalog describes the voxel materials the terrain generator and
// logs refer to by name. Material ids are wire-significant: the deployed
// client population renders them by id, so the catalog pins explicit ids
// instead of deriving them from order.
package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// Material is one voxel substance.
type Material struct {
	ID    uint16 `json:"id"`
	Name  string `json:"name"`
	Solid bool   `json:"solid"`
}

// Catalog is the material table plus lookup indexes.
type Catalog struct {
	Version   int        `json:"version"`
	Materials []Material `json:"materials"`

	// Digest is the sha256 of the raw document the catalog came from; empty
	// for the built-in table.
	Digest string `json:"-"`

	byName map[string]uint16
	byID   map[uint16]string
}

// Load reads a catalog document from path.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	var c Catalog
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	sum := sha256.Sum256(raw)
	c.Digest = hex.EncodeToString(sum[:])
	if err := c.index(); err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	return &c, nil
}

// Default returns the built-in material table matching the deployed client
// palette. Used when no catalog file is configured.
func Default() *Catalog {
	c := &Catalog{Version: 1, Materials: defaultMaterials()}
	if err := c.index(); err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) index() error {
	if len(c.Materials) == 0 {
		return fmt.Errorf("no materials")
	}
	c.byName = make(map[string]uint16, len(c.Materials))
	c.byID = make(map[uint16]string, len(c.Materials))
	for _, m := range c.Materials {
		if m.Name == "" {
			return fmt.Errorf("material %d has no name", m.ID)
		}
		if _, dup := c.byName[m.Name]; dup {
			return fmt.Errorf("duplicate material name %q", m.Name)
		}
		if _, dup := c.byID[m.ID]; dup {
			return fmt.Errorf("duplicate material id %d", m.ID)
		}
		c.byName[m.Name] = m.ID
		c.byID[m.ID] = m.Name
	}
	if name, ok := c.byID[0]; !ok || name != "AIR" {
		return fmt.Errorf("material 0 must be AIR")
	}
	return nil
}

// ID resolves a material name.
func (c *Catalog) ID(name string) (uint16, bool) {
	id, ok := c.byName[name]
	return id, ok
}

// Name returns the material name for id, or the empty string when unknown.
func (c *Catalog) Name(id uint16) string {
	return c.byID[id]
}

func defaultMaterials() []Material {
	return []Material{
		{ID: 0, Name: "AIR", Solid: false},
		{ID: 1, Name: "GRASS", Solid: true},
		{ID: 2, Name: "SAND", Solid: true},
		{ID: 3, Name: "STONE", Solid: true},
		{ID: 4, Name: "BRICK", Solid: true},
		{ID: 5, Name: "WOOD", Solid: true},
		{ID: 6, Name: "CEMENT", Solid: true},
		{ID: 7, Name: "DIRT", Solid: true},
		{ID: 8, Name: "PLANK", Solid: true},
		{ID: 9, Name: "SNOW", Solid: true},
		{ID: 10, Name: "GLASS", Solid: true},
		{ID: 11, Name: "COBBLE", Solid: true},
		{ID: 12, Name: "LIGHT_STONE", Solid: true},
		{ID: 13, Name: "DARK_STONE", Solid: true},
		{ID: 14, Name: "CHEST", Solid: true},
		{ID: 15, Name: "LEAVES", Solid: true},
		{ID: 16, Name: "CLOUD", Solid: false},
		{ID: 17, Name: "TALL_GRASS", Solid: false},
		{ID: 18, Name: "YELLOW_FLOWER", Solid: false},
		{ID: 19, Name: "RED_FLOWER", Solid: false},
		{ID: 20, Name: "PURPLE_FLOWER", Solid: false},
		{ID: 21, Name: "SUN_FLOWER", Solid: false},
		{ID: 22, Name: "WHITE_FLOWER", Solid: false},
		{ID: 23, Name: "BLUE_FLOWER", Solid: false},
	}
}
