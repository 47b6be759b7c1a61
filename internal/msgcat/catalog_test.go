package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderLobbyName(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := c.Render("lobby.name", map[string]string{
		"Prefix": "VASH", "TeamA": "Red", "TeamB": "Blue",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "VASH: (Red) vs (Blue)" {
		t.Fatalf("lobby name = %q", got)
	}
}

func TestRenderMissingKey(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Render("no.such.key", nil); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestOverrideDirectoryWins(t *testing.T) {
	dir := t.TempDir()
	override := "lobby:\n  waiting: \"Custom waiting line\"\n"
	if err := os.WriteFile(filepath.Join(dir, "10-custom.yaml"), []byte(override), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}

	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := c.Render("lobby.waiting", nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "Custom waiting line" {
		t.Fatalf("override not applied: %q", got)
	}

	// untouched keys keep the embedded defaults
	name, err := c.Render("lobby.name", map[string]string{"Prefix": "V", "TeamA": "A", "TeamB": "B"})
	if err != nil || !strings.Contains(name, "vs") {
		t.Fatalf("default lost after override: %q err=%v", name, err)
	}
}

func TestDuplicateOverrideKeysRejected(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yaml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("match:\n  won: \"x\"\n"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if _, err := New(dir); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}
