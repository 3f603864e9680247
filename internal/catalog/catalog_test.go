package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	sword, ok := c.Item("SWORD")
	if !ok || sword.Price != 75 {
		t.Fatalf("sword = %+v, %v", sword, ok)
	}
	bk, ok := c.BondKind("parabatai")
	if !ok || !bk.Exclusive {
		t.Fatalf("parabatai = %+v, %v", bk, ok)
	}
	if bk, _ := c.BondKind("pact"); bk.Exclusive {
		t.Fatalf("pact must not be exclusive")
	}
	if !c.HasLinkType("parent") {
		t.Fatalf("expected parent link type")
	}
	if c.HasLinkType("nemesis") {
		t.Fatalf("unexpected link type")
	}
}

func TestParseRejectsBadCatalogs(t *testing.T) {
	cases := map[string]string{
		"zero price":     "items:\n  - code: rock\n    price: 0\n",
		"duplicate item": "items:\n  - code: a\n    price: 1\n  - code: A\n    price: 2\n",
		"empty kind":     "bond_kinds:\n  - kind: \"\"\n",
		"duplicate kind": "bond_kinds:\n  - kind: pact\n  - kind: pact\n",
		"bad yaml":       "items: [",
	}
	for name, raw := range cases {
		if _, err := Parse([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	raw := "items:\n  - code: Mortal_Cup\n    name: Mortal Cup\n    price: 9000\nbond_kinds:\n  - kind: parabatai\n    exclusive: true\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	it, ok := c.Item("mortal_cup")
	if !ok || it.Price != 9000 || it.Name != "Mortal Cup" {
		t.Fatalf("item = %+v, %v", it, ok)
	}
	if _, ok := c.BondKind("spouse"); ok {
		t.Fatalf("file catalog must replace the default one")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if c, err := Load(""); err != nil || len(c.Items) == 0 {
		t.Fatalf("empty path should load default: %v", err)
	}
}
