package loader

import (
	"os"
	"path/filepath"
	"testing"
)

func writeScript(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}

const validScript = `// ==UserScript==
// @name Greeter
// @match http://example.com/*
// ==/UserScript==
alert(1);
`

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeScript(t, dir, "a.user.js", validScript)
	writeScript(t, dir, "notes.txt", "not a script")

	scripts, err := Load([]string{dir})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(scripts) != 1 {
		t.Fatalf("loaded %d scripts, want 1", len(scripts))
	}
	if scripts[0].Name() != "Greeter" {
		t.Errorf("script name = %q, want %q", scripts[0].Name(), "Greeter")
	}
}

func TestLoadSkipsBrokenScripts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeScript(t, dir, "a.user.js", validScript)
	writeScript(t, dir, "broken.user.js", "alert(1); // no metadata block")

	scripts, err := Load([]string{dir})
	if err == nil {
		t.Error("Load reported no error for a broken script")
	}
	if len(scripts) != 1 {
		t.Fatalf("loaded %d scripts, want 1", len(scripts))
	}
}

func TestLoadMissingDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeScript(t, dir, "a.user.js", validScript)

	scripts, err := Load([]string{filepath.Join(dir, "does-not-exist"), dir})
	if err == nil {
		t.Error("Load reported no error for a missing directory")
	}
	if len(scripts) != 1 {
		t.Fatalf("loaded %d scripts, want 1", len(scripts))
	}
}

func TestLoadOrderIsDeterministic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeScript(t, dir, "b.user.js", "// ==UserScript==\n// @name Second\n// ==/UserScript==\n")
	writeScript(t, dir, "a.user.js", "// ==UserScript==\n// @name First\n// ==/UserScript==\n")

	scripts, err := Load([]string{dir})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(scripts) != 2 || scripts[0].Name() != "First" || scripts[1].Name() != "Second" {
		names := make([]string, len(scripts))
		for i, s := range scripts {
			names[i] = s.Name()
		}
		t.Errorf("load order = %v, want [First Second]", names)
	}
}
