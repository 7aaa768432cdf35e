package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func writePack(t *testing.T, root, dir, manifest, tools string) {
	t.Helper()
	packDir := filepath.Join(root, dir)
	if err := os.MkdirAll(packDir, 0750); err != nil {
		t.Fatal(err)
	}
	if manifest != "" {
		if err := os.WriteFile(filepath.Join(packDir, "PACK.md"), []byte(manifest), 0640); err != nil {
			t.Fatal(err)
		}
	}
	if tools != "" {
		if err := os.WriteFile(filepath.Join(packDir, "tools.toml"), []byte(tools), 0640); err != nil {
			t.Fatal(err)
		}
	}
}

const calcManifest = `---
name: calculator
version: 1.0.0
description: Basic math tools
---

# Calculator pack
`

const calcTools = `[[tools]]
name = "add"
description = "Add two numbers"
handler = "add"

[tools.params.a]
type = "number"
description = "First addend"

[tools.params.b]
type = "number"
description = "Second addend"
`

func addHandler(_ context.Context, args map[string]any) (any, error) {
	a, _ := args["a"].(float64)
	b, _ := args["b"].(float64)
	return a + b, nil
}

func TestLoadListInvoke(t *testing.T) {
	root := t.TempDir()
	writePack(t, root, "calc", calcManifest, calcTools)

	reg := New(root, map[string]Handler{"add": addHandler}, testLogger())
	if err := reg.Load(); err != nil {
		t.Fatal(err)
	}

	tools := reg.List()
	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(tools))
	}
	d := tools[0]
	if d.Name != "add" || d.Package != "calculator" {
		t.Errorf("unexpected descriptor: %+v", d)
	}
	if d.Parameters["a"].Type != "number" {
		t.Errorf("unexpected param spec: %+v", d.Parameters)
	}

	result, err := reg.Invoke(context.Background(), "add", map[string]any{"a": 2.0, "b": 3.0})
	if err != nil {
		t.Fatal(err)
	}
	if result != 5.0 {
		t.Errorf("expected 5, got %v", result)
	}
}

func TestInvokeUnknownTool(t *testing.T) {
	reg := New(t.TempDir(), nil, testLogger())
	if err := reg.Load(); err != nil {
		t.Fatal(err)
	}

	_, err := reg.Invoke(context.Background(), "nope", nil)
	if !errors.Is(err, ErrToolNotFound) {
		t.Errorf("expected ErrToolNotFound, got %v", err)
	}
}

func TestInvokeWrapsHandlerError(t *testing.T) {
	root := t.TempDir()
	writePack(t, root, "calc", calcManifest, calcTools)

	boom := func(_ context.Context, _ map[string]any) (any, error) {
		return nil, fmt.Errorf("boom")
	}
	reg := New(root, map[string]Handler{"add": boom}, testLogger())
	if err := reg.Load(); err != nil {
		t.Fatal(err)
	}

	_, err := reg.Invoke(context.Background(), "add", nil)
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecError, got %v", err)
	}
	if execErr.Tool != "add" {
		t.Errorf("unexpected tool in error: %s", execErr.Tool)
	}
}

func TestInvokeRecoversPanic(t *testing.T) {
	root := t.TempDir()
	writePack(t, root, "calc", calcManifest, calcTools)

	panicky := func(_ context.Context, _ map[string]any) (any, error) {
		panic("handler exploded")
	}
	reg := New(root, map[string]Handler{"add": panicky}, testLogger())
	if err := reg.Load(); err != nil {
		t.Fatal(err)
	}

	_, err := reg.Invoke(context.Background(), "add", nil)
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecError from panic, got %v", err)
	}
}

func TestLoadSkipsBrokenPack(t *testing.T) {
	root := t.TempDir()
	writePack(t, root, "good", calcManifest, calcTools)
	// No frontmatter at all
	writePack(t, root, "broken", "just a readme\n", calcTools)
	// Manifest present but TOML malformed
	writePack(t, root, "badtoml", calcManifest, "[[tools\nname=")

	reg := New(root, map[string]Handler{"add": addHandler}, testLogger())
	if err := reg.Load(); err != nil {
		t.Fatal(err)
	}
	if reg.Count() != 1 {
		t.Errorf("expected only the good pack's tool, got %d tools", reg.Count())
	}
}

func TestLoadSkipsUnknownHandler(t *testing.T) {
	root := t.TempDir()
	writePack(t, root, "calc", calcManifest, calcTools)

	reg := New(root, map[string]Handler{}, testLogger())
	if err := reg.Load(); err != nil {
		t.Fatal(err)
	}
	if reg.Count() != 0 {
		t.Errorf("expected 0 tools with empty catalog, got %d", reg.Count())
	}
}

func TestLoadLastWinsOnCollision(t *testing.T) {
	root := t.TempDir()
	writePack(t, root, "a-first", calcManifest, calcTools)

	secondManifest := `---
name: zeta
version: 0.1.0
description: Overriding pack
---
`
	writePack(t, root, "z-second", secondManifest, calcTools)

	reg := New(root, map[string]Handler{"add": addHandler}, testLogger())
	if err := reg.Load(); err != nil {
		t.Fatal(err)
	}

	tools := reg.List()
	if len(tools) != 1 {
		t.Fatalf("expected 1 tool after collision, got %d", len(tools))
	}
	// os.ReadDir is sorted, so z-second loads after a-first and wins.
	if tools[0].Package != "zeta" {
		t.Errorf("expected last-loaded pack to win, got %s", tools[0].Package)
	}
}

func TestLoadMissingDir(t *testing.T) {
	reg := New(filepath.Join(t.TempDir(), "missing"), nil, testLogger())
	if err := reg.Load(); err != nil {
		t.Errorf("missing dir should not be an error, got %v", err)
	}
	if reg.Count() != 0 {
		t.Errorf("expected empty registry")
	}
}

func TestParseManifestFrontmatter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "PACK.md")
	if err := os.WriteFile(path, []byte(calcManifest), 0640); err != nil {
		t.Fatal(err)
	}

	m, err := parseManifest(path)
	if err != nil {
		t.Fatal(err)
	}
	if m.Name != "calculator" || m.Version != "1.0.0" {
		t.Errorf("unexpected manifest: %+v", m)
	}
}
