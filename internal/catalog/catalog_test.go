package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalogIndexes(t *testing.T) {
	c := Default()
	id, ok := c.ID("GRASS")
	if !ok || id != 1 {
		t.Fatalf("GRASS = (%d, %v), want (1, true)", id, ok)
	}
	if name := c.Name(3); name != "STONE" {
		t.Fatalf("Name(3) = %q, want STONE", name)
	}
	if name := c.Name(999); name != "" {
		t.Fatalf("Name(999) = %q, want empty", name)
	}
	if _, ok := c.ID("BEDROCK"); ok {
		t.Fatalf("unknown name resolved")
	}
}

func TestLoadShippedCatalogMatchesDefault(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "catalogs", "materials.json"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if c.Digest == "" {
		t.Fatalf("loaded catalog missing digest")
	}
	def := Default()
	if len(c.Materials) != len(def.Materials) {
		t.Fatalf("shipped catalog has %d materials, built-in has %d", len(c.Materials), len(def.Materials))
	}
	for i, m := range def.Materials {
		if c.Materials[i] != m {
			t.Fatalf("material %d differs: %+v vs %+v", i, c.Materials[i], m)
		}
	}
}

func TestLoadRejectsBrokenCatalogs(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"no air", `{"version":1,"materials":[{"id":1,"name":"GRASS","solid":true}]}`},
		{"air not zero", `{"version":1,"materials":[{"id":1,"name":"AIR","solid":false}]}`},
		{"dup name", `{"version":1,"materials":[{"id":0,"name":"AIR","solid":false},{"id":1,"name":"AIR","solid":true}]}`},
		{"dup id", `{"version":1,"materials":[{"id":0,"name":"AIR","solid":false},{"id":0,"name":"GRASS","solid":true}]}`},
		{"empty", `{"version":1,"materials":[]}`},
	}
	dir := t.TempDir()
	for _, tc := range cases {
		path := filepath.Join(dir, "materials.json")
		if err := os.WriteFile(path, []byte(tc.doc), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}
