package registry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDir_FiltersGGUF(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"a.gguf", "b.GGUF", "not-model.txt", "model.bin"} {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("x"), 0o644); err != nil {
			t.Fatalf("write temp file: %v", err)
		}
	}
	models, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(models))
	}
	for _, m := range models {
		if !strings.HasSuffix(strings.ToLower(m.FileName), ".gguf") {
			t.Fatalf("file not gguf: %s", m.FileName)
		}
		if m.Backend != KindNative || m.URL != "" {
			t.Fatalf("unexpected descriptor: %+v", m)
		}
		if err := m.Validate(); err != nil {
			t.Fatalf("sideloaded descriptor invalid: %v", err)
		}
	}
}

func TestLoadDir_Missing(t *testing.T) {
	models, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	if err != nil || len(models) != 0 {
		t.Fatalf("models=%v err=%v", models, err)
	}
}

func TestLoadFile_Formats(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"c.yaml": "models:\n  - name: Local\n    file_name: l.gguf\n    url: https://example.com/l.gguf\n    min_valid_bytes: 10\n    backend: native\n",
		"c.json": `{"models":[{"name":"Local","file_name":"l.gguf","url":"https://example.com/l.gguf","min_valid_bytes":10,"backend":"native"}]}`,
		"c.toml": "[[models]]\nname = \"Local\"\nfile_name = \"l.gguf\"\nurl = \"https://example.com/l.gguf\"\nmin_valid_bytes = 10\nbackend = \"native\"\n",
	}
	for name, body := range files {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		got, err := LoadFile(p)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(got) != 1 || got[0].Name != "Local" || got[0].Backend != KindNative || got[0].MinValidBytes != 10 {
			t.Fatalf("%s: unexpected %+v", name, got)
		}
	}
	p := filepath.Join(dir, "c.ini")
	_ = os.WriteFile(p, []byte("x"), 0o644)
	if _, err := LoadFile(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}

func TestCatalog_FindDefaultsToFirst(t *testing.T) {
	c, err := NewCatalog(Builtin())
	if err != nil {
		t.Fatalf("builtin catalog invalid: %v", err)
	}
	first := c.List()[0]
	if got := c.Find("no such model"); got.Name != first.Name {
		t.Fatalf("expected fallback %q, got %q", first.Name, got.Name)
	}
	if got := c.Find("SmolVLM 500M"); got.Backend != KindNative || got.FileName != "smolvlm-500m-instruct-q8_0.gguf" {
		t.Fatalf("unexpected %+v", got)
	}
	if _, ok := c.Lookup("Remote"); !ok {
		t.Fatalf("remote entry missing")
	}
}

func TestCatalog_Rejects(t *testing.T) {
	if _, err := NewCatalog(nil); err == nil {
		t.Fatalf("expected empty catalog error")
	}
	d := Descriptor{Name: "A", FileName: "a.gguf", Backend: KindNative}
	if _, err := NewCatalog([]Descriptor{d, d}); err == nil {
		t.Fatalf("expected duplicate error")
	}
	bad := []Descriptor{
		{Name: "", FileName: "a.gguf", Backend: KindNative},
		{Name: "NoFile", Backend: KindManaged},
		{Name: "BadKind", FileName: "a.gguf", Backend: "mediapipe"},
		{Name: "BadURL", FileName: "a.gguf", URL: "not a url", Backend: KindNative},
		{Name: "Traversal", FileName: "../a.gguf", Backend: KindNative},
	}
	for _, b := range bad {
		if err := b.Validate(); err == nil {
			t.Fatalf("expected validation error for %+v", b)
		}
	}
}

func TestFormattedName(t *testing.T) {
	d := Descriptor{Name: "Moondream2", Backend: KindNative, Vision: true, SizeLabel: "~1.5GB"}
	if got := d.FormattedName(); got != "Moondream2 (vision) [llama.cpp] ~1.5GB" {
		t.Fatalf("got %q", got)
	}
}

func TestMerge(t *testing.T) {
	base := []Descriptor{{Name: "a"}, {Name: "b"}}
	out := Merge(base, []Descriptor{{Name: "b"}, {Name: "c"}})
	if len(out) != 3 || out[2].Name != "c" {
		t.Fatalf("unexpected merge: %+v", out)
	}
}

func TestMerge_SkipsKnownArtifacts(t *testing.T) {
	base := []Descriptor{{Name: "Gemma", FileName: "gemma.gguf", Backend: KindManaged}}
	side := []Descriptor{{Name: "gemma.gguf", FileName: "gemma.gguf"}, {Name: "own.gguf", FileName: "own.gguf"}}
	out := Merge(base, side)
	if len(out) != 2 || out[1].Name != "own.gguf" {
		t.Fatalf("unexpected merge: %+v", out)
	}
}
